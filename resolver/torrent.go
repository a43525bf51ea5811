package resolver

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"onedl/internal"
)

var errBencode = errors.New("invalid bencode")

// torrentMeta is the part of a .torrent file needed to build a magnet
type torrentMeta struct {
	InfoHash string
	Name     string
	Trackers []string
}

// TorrentToMagnet converts raw .torrent bytes into a Magnet resource. The
// info hash is the SHA-1 of the exact bencoded "info" value.
func TorrentToMagnet(data []byte) (internal.Resource, error) {
	meta, err := parseTorrent(data)
	if err != nil {
		return internal.Resource{}, internal.NewInvalidInputError("torrent", err.Error()).WithCause(err)
	}

	var b strings.Builder
	b.WriteString("magnet:?xt=urn:btih:")
	b.WriteString(meta.InfoHash)
	if meta.Name != "" {
		b.WriteString("&dn=")
		b.WriteString(url.QueryEscape(meta.Name))
	}
	for _, tr := range meta.Trackers {
		b.WriteString("&tr=")
		b.WriteString(url.QueryEscape(tr))
	}

	return internal.NewMagnet(b.String(), meta.InfoHash, meta.Name), nil
}

// InfoHash returns the lower-case hex info hash of a .torrent file
func InfoHash(data []byte) (string, error) {
	meta, err := parseTorrent(data)
	if err != nil {
		return "", err
	}
	return meta.InfoHash, nil
}

func parseTorrent(data []byte) (*torrentMeta, error) {
	if len(data) == 0 || data[0] != 'd' {
		return nil, fmt.Errorf("%w: torrent must be a bencoded dictionary", errBencode)
	}

	root, end, err := decodeBencode(data, 0)
	if err != nil {
		return nil, err
	}
	if end != len(data) {
		return nil, fmt.Errorf("%w: trailing data after dictionary", errBencode)
	}

	dict := root.(*bdict)
	info, ok := dict.values["info"].(*bdict)
	if !ok {
		return nil, fmt.Errorf("%w: missing info dictionary", errBencode)
	}

	span := dict.spans["info"]
	sum := sha1.Sum(data[span[0]:span[1]]) //nolint:gosec // SHA1 is required for BitTorrent info hash
	meta := &torrentMeta{InfoHash: hex.EncodeToString(sum[:])}

	if name, ok := info.values["name.utf-8"].([]byte); ok {
		meta.Name = string(name)
	} else if name, ok := info.values["name"].([]byte); ok {
		meta.Name = string(name)
	}

	seen := make(map[string]bool)
	addTracker := func(v interface{}) {
		if s, ok := v.([]byte); ok && len(s) > 0 && !seen[string(s)] {
			seen[string(s)] = true
			meta.Trackers = append(meta.Trackers, string(s))
		}
	}
	addTracker(dict.values["announce"])
	if tiers, ok := dict.values["announce-list"].([]interface{}); ok {
		for _, tier := range tiers {
			if list, ok := tier.([]interface{}); ok {
				for _, tr := range list {
					addTracker(tr)
				}
			}
		}
	}

	return meta, nil
}

// bdict is a decoded dictionary; spans hold the byte range of each value
// so the info dictionary can be hashed exactly as encoded.
type bdict struct {
	values map[string]interface{}
	spans  map[string][2]int
}

// decodeBencode decodes the value at pos and returns it with the offset
// just past it. Strings decode to []byte, integers to int64, lists to
// []interface{} and dictionaries to *bdict.
func decodeBencode(data []byte, pos int) (interface{}, int, error) {
	if pos >= len(data) {
		return nil, pos, fmt.Errorf("%w: unexpected end of data", errBencode)
	}

	switch c := data[pos]; {
	case c == 'i':
		end := bytes.IndexByte(data[pos+1:], 'e')
		if end < 0 {
			return nil, pos, fmt.Errorf("%w: unterminated integer", errBencode)
		}
		n, err := strconv.ParseInt(string(data[pos+1:pos+1+end]), 10, 64)
		if err != nil {
			return nil, pos, fmt.Errorf("%w: bad integer at %d", errBencode, pos)
		}
		return n, pos + end + 2, nil

	case c == 'l':
		var list []interface{}
		pos++
		for pos < len(data) && data[pos] != 'e' {
			v, next, err := decodeBencode(data, pos)
			if err != nil {
				return nil, pos, err
			}
			list = append(list, v)
			pos = next
		}
		if pos >= len(data) {
			return nil, pos, fmt.Errorf("%w: unterminated list", errBencode)
		}
		return list, pos + 1, nil

	case c == 'd':
		d := &bdict{values: make(map[string]interface{}), spans: make(map[string][2]int)}
		pos++
		for pos < len(data) && data[pos] != 'e' {
			k, next, err := decodeBencode(data, pos)
			if err != nil {
				return nil, pos, err
			}
			key, ok := k.([]byte)
			if !ok {
				return nil, pos, fmt.Errorf("%w: dictionary key is not a string", errBencode)
			}
			start := next
			v, end, err := decodeBencode(data, start)
			if err != nil {
				return nil, pos, err
			}
			d.values[string(key)] = v
			d.spans[string(key)] = [2]int{start, end}
			pos = end
		}
		if pos >= len(data) {
			return nil, pos, fmt.Errorf("%w: unterminated dictionary", errBencode)
		}
		return d, pos + 1, nil

	case c >= '0' && c <= '9':
		colon := bytes.IndexByte(data[pos:], ':')
		if colon < 0 {
			return nil, pos, fmt.Errorf("%w: string without length", errBencode)
		}
		length, err := strconv.Atoi(string(data[pos : pos+colon]))
		if err != nil || length < 0 {
			return nil, pos, fmt.Errorf("%w: bad string length at %d", errBencode, pos)
		}
		start := pos + colon + 1
		if start+length > len(data) || start+length < start {
			return nil, pos, fmt.Errorf("%w: string exceeds data", errBencode)
		}
		return data[start : start+length], start + length, nil
	}

	return nil, pos, fmt.Errorf("%w: unexpected byte %q at %d", errBencode, data[pos], pos)
}
