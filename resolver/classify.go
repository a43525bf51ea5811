// Package resolver turns user input into provider jobs and direct links.
package resolver

import (
	"encoding/base32"
	"encoding/hex"
	"net/url"
	"strings"

	"onedl/internal"
	"onedl/utils"
)

var folderMarkers = []string{
	"mega.nz/folder/",
	"mega.nz/#f!",
	"mega.co.nz/#f!",
}

var fileMarkers = []string{
	"/file/",
	"#!",
}

// Classify maps raw input to a Resource. It never fails and never touches
// the network; anything unrecognised is a HosterLink.
func Classify(input string) internal.Resource {
	s := strings.TrimSpace(input)
	lower := strings.ToLower(s)

	if strings.HasPrefix(lower, "magnet:") {
		hash, name := parseMagnet(s)
		return internal.NewMagnet(s, hash, name)
	}

	if isCloudFolder(lower) {
		id, key := parseFolderRef(s)
		return internal.NewCloudFolder(s, id, key)
	}

	if !utils.IsHTTPURL(s) {
		switch {
		case strings.HasSuffix(lower, ".torrent"):
			return internal.NewContainerFile(s, internal.ContainerTorrent)
		case strings.HasSuffix(lower, ".nzb"):
			return internal.NewContainerFile(s, internal.ContainerNZB)
		}
	}

	return internal.NewHosterLink(s)
}

func isCloudFolder(lower string) bool {
	for _, marker := range fileMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	for _, marker := range folderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// parseFolderRef extracts id and key from mega.nz/folder/ID#KEY and the
// legacy #F!ID!KEY form.
func parseFolderRef(s string) (id, key string) {
	lower := strings.ToLower(s)

	if i := strings.Index(lower, "/folder/"); i >= 0 {
		id, key, _ = strings.Cut(s[i+len("/folder/"):], "#")
		if j := strings.IndexAny(id, "/?"); j >= 0 {
			id = id[:j]
		}
		// "#KEY/folder/SUB" points into a sub-folder
		key, _, _ = strings.Cut(key, "/")
		return id, key
	}

	if i := strings.Index(lower, "#f!"); i >= 0 {
		id, key, _ = strings.Cut(s[i+len("#f!"):], "!")
		return id, key
	}
	return "", ""
}

// parseMagnet returns the lower-case btih hash and the display name of a
// magnet URI. Malformed queries yield empty values.
func parseMagnet(uri string) (hash, name string) {
	q := uri
	if i := strings.Index(q, "?"); i >= 0 {
		q = q[i+1:]
	} else {
		return "", ""
	}

	// ParseQuery keeps the pairs it could decode
	values, _ := url.ParseQuery(q)

	for _, xt := range values["xt"] {
		if strings.HasPrefix(strings.ToLower(xt), "urn:btih:") {
			hash, _ = NormalizeInfoHash(xt[len("urn:btih:"):])
			break
		}
	}
	return hash, values.Get("dn")
}

// NormalizeInfoHash returns a btih value as lowercase hex. A 32 character
// value is base32 and is decoded; ok is false when that decoding fails.
func NormalizeInfoHash(hash string) (string, bool) {
	hash = strings.TrimSpace(hash)
	if len(hash) != 32 {
		return strings.ToLower(hash), true
	}
	raw, err := base32.StdEncoding.DecodeString(strings.ToUpper(hash))
	if err != nil || len(raw) != 20 {
		return "", false
	}
	return hex.EncodeToString(raw), true
}
