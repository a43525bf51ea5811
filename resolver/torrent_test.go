package resolver

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onedl/internal"
)

const testInfo = "d6:lengthi1024e4:name10:ubuntu.iso12:piece lengthi16384e6:pieces20:aaaaaaaaaaaaaaaaaaaae"

func testTorrent() []byte {
	return []byte("d8:announce20:udp://tracker.one:8013:announce-listll20:udp://tracker.one:80el20:udp://tracker.two:80ee4:info" + testInfo + "e")
}

func TestTorrentToMagnet(t *testing.T) {
	sum := sha1.Sum([]byte(testInfo))
	wantHash := hex.EncodeToString(sum[:])

	res, err := TorrentToMagnet(testTorrent())
	require.NoError(t, err)

	assert.Equal(t, internal.KindMagnet, res.Kind)
	assert.Equal(t, wantHash, res.InfoHash)
	assert.Equal(t, "ubuntu.iso", res.DisplayName)
	assert.Equal(t,
		"magnet:?xt=urn:btih:"+wantHash+"&dn=ubuntu.iso&tr=udp%3A%2F%2Ftracker.one%3A80&tr=udp%3A%2F%2Ftracker.two%3A80",
		res.URI)

	again, err := TorrentToMagnet(testTorrent())
	require.NoError(t, err)
	assert.Equal(t, res, again, "conversion is deterministic")
}

func TestTorrentToMagnet_CorruptedInfoChangesHash(t *testing.T) {
	original, err := InfoHash(testTorrent())
	require.NoError(t, err)

	corrupted := []byte(strings.Replace(string(testTorrent()), "ubuntu.iso", "ubuntu.isx", 1))
	changed, err := InfoHash(corrupted)
	require.NoError(t, err)

	assert.NotEqual(t, original, changed)
}

func TestTorrentToMagnet_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"not_dict":       "l4:spame",
		"no_info":        "d8:announce3:urle",
		"truncated":      "d4:infod4:name3:ab",
		"trailing_bytes": "d4:infod4:name1:aeeXYZ",
		"bad_length":     "d4:infod4:name99:ae",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := TorrentToMagnet([]byte(data))
			assert.True(t, internal.IsType(err, internal.ErrInvalidInput), "got %v", err)
		})
	}
}

func TestDecodeBencode(t *testing.T) {
	v, end, err := decodeBencode([]byte("li-42e3:abce"), 0)
	require.NoError(t, err)
	assert.Equal(t, 12, end)

	list := v.([]interface{})
	require.Len(t, list, 2)
	assert.Equal(t, int64(-42), list[0])
	assert.Equal(t, []byte("abc"), list[1])
}
