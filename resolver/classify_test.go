package resolver

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onedl/internal"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		kind      internal.ResourceKind
		container internal.ContainerKind
	}{
		{"magnet_trimmed", "  magnet:?xt=urn:btih:ABCD  ", internal.KindMagnet, internal.ContainerNone},
		{"magnet_upper_scheme", "MAGNET:?xt=urn:btih:abcd", internal.KindMagnet, internal.ContainerNone},
		{"mega_folder", "https://mega.nz/folder/AbC123#keyXYZ", internal.KindCloudFolder, internal.ContainerNone},
		{"mega_legacy_folder", "https://mega.nz/#F!AbC123!keyXYZ", internal.KindCloudFolder, internal.ContainerNone},
		{"mega_co_nz_folder", "https://mega.co.nz/#F!AbC123!keyXYZ", internal.KindCloudFolder, internal.ContainerNone},
		{"mega_folder_with_file_marker", "https://mega.nz/folder/AbC123#keyXYZ/file/FILEID", internal.KindHosterLink, internal.ContainerNone},
		{"mega_file", "https://mega.nz/file/AbC123#key", internal.KindHosterLink, internal.ContainerNone},
		{"local_torrent", "/home/me/ubuntu.TORRENT", internal.KindContainerFile, internal.ContainerTorrent},
		{"local_nzb", "C:\\downloads\\show.nzb", internal.KindContainerFile, internal.ContainerNZB},
		{"remote_torrent_is_hoster", "https://example.com/ubuntu.torrent", internal.KindHosterLink, internal.ContainerNone},
		{"hoster", "https://rapidgator.net/file/abc/file.rar.html", internal.KindHosterLink, internal.ContainerNone},
		{"garbage", "not a link", internal.KindHosterLink, internal.ContainerNone},
		{"empty", "", internal.KindHosterLink, internal.ContainerNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Classify(tt.input)
			assert.Equal(t, tt.kind, res.Kind)
			assert.Equal(t, tt.container, res.Container)
		})
	}
}

func TestClassify_MagnetFields(t *testing.T) {
	res := Classify("magnet:?xt=urn:btih:ABCDEF0123&dn=Ubuntu+24.04&tr=udp%3A%2F%2Ftracker")

	assert.Equal(t, "abcdef0123", res.InfoHash)
	assert.Equal(t, "Ubuntu 24.04", res.DisplayName)
	assert.Equal(t, "magnet:?xt=urn:btih:ABCDEF0123&dn=Ubuntu+24.04&tr=udp%3A%2F%2Ftracker", res.URI)
}

func TestClassify_MagnetBase32Hash(t *testing.T) {
	res := Classify("magnet:?xt=urn:btih:YEX6DQDLXISUVHOJ6UM3GNNKPQJWPKEK&dn=x")
	assert.Equal(t, "c12fe1c06bba254a9dc9f519b335aa7c1367a88a", res.InfoHash)

	res = Classify("magnet:?xt=urn:btih:11111111111111111111111111111111")
	assert.Equal(t, internal.KindMagnet, res.Kind)
	assert.Empty(t, res.InfoHash)
}

func TestNormalizeInfoHash(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"C12FE1C06BBA254A9DC9F519B335AA7C1367A88A", "c12fe1c06bba254a9dc9f519b335aa7c1367a88a", true},
		{"YEX6DQDLXISUVHOJ6UM3GNNKPQJWPKEK", "c12fe1c06bba254a9dc9f519b335aa7c1367a88a", true},
		{"yex6dqdlxisuvhoj6um3gnnkpqjwpkek", "c12fe1c06bba254a9dc9f519b335aa7c1367a88a", true},
		{"11111111111111111111111111111111", "", false},
		{"abc", "abc", true},
	}
	for _, tt := range tests {
		got, ok := NormalizeInfoHash(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestClassify_FolderRef(t *testing.T) {
	tests := []struct {
		input string
		id    string
		key   string
	}{
		{"https://mega.nz/folder/AbC123#keyXYZ", "AbC123", "keyXYZ"},
		{"https://mega.nz/folder/AbC123#keyXYZ/folder/Sub1", "AbC123", "keyXYZ"},
		{"https://mega.nz/#F!AbC123!keyXYZ", "AbC123", "keyXYZ"},
		{"https://mega.nz/folder/AbC123", "AbC123", ""},
	}
	for _, tt := range tests {
		res := Classify(tt.input)
		assert.Equal(t, tt.id, res.FolderID, tt.input)
		assert.Equal(t, tt.key, res.FolderKey, tt.input)
		assert.Equal(t, tt.input, res.URL)
	}
}

func TestReadInputList(t *testing.T) {
	fsys := afero.NewMemMapFs()
	content := "# my list\nmagnet:?xt=urn:btih:abc\n\n  https://host.example/f/1  \r\n#skip\n"
	require.NoError(t, afero.WriteFile(fsys, "/lists/in.txt", []byte(content), 0644))

	inputs, err := ReadInputList(fsys, "/lists/in.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"magnet:?xt=urn:btih:abc", "https://host.example/f/1"}, inputs)

	_, err = ReadInputList(fsys, "/lists/missing.txt")
	assert.Error(t, err)
}
