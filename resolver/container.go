package resolver

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"onedl/internal"
	"onedl/utils"
)

// maxContainerSize bounds .torrent and .nzb files read from disk
const maxContainerSize = 64 << 20

type nzbDocument struct {
	XMLName xml.Name  `xml:"nzb"`
	Files   []nzbFile `xml:"file"`
}

type nzbFile struct {
	Subject  string       `xml:"subject,attr"`
	Groups   []string     `xml:"groups>group"`
	Segments []nzbSegment `xml:"segments>segment"`
}

type nzbSegment struct {
	Bytes  int64 `xml:"bytes,attr"`
	Number int   `xml:"number,attr"`
}

// ValidateNZB checks that data is an NZB document with at least one file
// and returns the number of files.
func ValidateNZB(data []byte) (int, error) {
	var doc nzbDocument
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	if err := dec.Decode(&doc); err != nil {
		return 0, fmt.Errorf("invalid NZB: %w", err)
	}
	if len(doc.Files) == 0 {
		return 0, fmt.Errorf("invalid NZB: no files")
	}
	return len(doc.Files), nil
}

// LoadContainer reads a ContainerFile resource's bytes from fsys and
// validates them for their kind. The returned Resource carries Data.
func LoadContainer(fsys afero.Fs, res internal.Resource) (internal.Resource, error) {
	if res.Kind != internal.KindContainerFile {
		return res, nil
	}
	if len(res.Data) > 0 {
		return res, nil
	}

	data, err := utils.NewFileOperationsOn(fsys).ReadFile(res.Path, maxContainerSize)
	if err != nil {
		return res, internal.NewInvalidInputError(res.Path, "cannot read container file").WithCause(err)
	}

	switch res.Container {
	case internal.ContainerNZB:
		if _, err := ValidateNZB(data); err != nil {
			return res, internal.NewInvalidInputError(res.Path, err.Error()).WithCause(err)
		}
	case internal.ContainerTorrent:
		if _, err := InfoHash(data); err != nil {
			return res, internal.NewInvalidInputError(res.Path, err.Error()).WithCause(err)
		}
	}

	loaded := res
	loaded.Data = data
	return loaded, nil
}

// Prepare turns a resource into what providers are handed: torrents become
// magnets, NZBs are loaded and validated, everything else passes through.
func Prepare(fsys afero.Fs, res internal.Resource) (internal.Resource, error) {
	if res.Kind != internal.KindContainerFile {
		return res, nil
	}

	loaded, err := LoadContainer(fsys, res)
	if err != nil {
		return res, err
	}

	if loaded.Container == internal.ContainerTorrent {
		magnet, err := TorrentToMagnet(loaded.Data)
		if err != nil {
			return res, err
		}
		if magnet.DisplayName == "" {
			magnet.DisplayName = strings.TrimSuffix(filepath.Base(res.Path), filepath.Ext(res.Path))
		}
		return magnet, nil
	}

	return loaded, nil
}
