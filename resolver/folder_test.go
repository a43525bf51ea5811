package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onedl/internal"
)

func TestExpandFolder(t *testing.T) {
	lister := newFakeLister()
	lister.folders["root"] = []internal.FolderEntry{
		{Name: "a.mkv", Ref: "f1", Link: "https://h/a", Size: 10},
		{Name: "Season 1", Ref: "sub", IsFolder: true},
	}
	lister.folders["sub"] = []internal.FolderEntry{
		{Name: "e01.mkv", Ref: "f2", URL: "https://direct/e01"},
	}

	files, err := ExpandFolder(context.Background(), lister, "root")
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "a.mkv", files[0].Name)
	assert.Equal(t, "https://h/a", files[0].Link)
	assert.Equal(t, int64(10), files[0].Size)
	assert.Equal(t, "Season 1/e01.mkv", files[1].Name)
	assert.Equal(t, "https://direct/e01", files[1].URL)
}

func TestExpandFolder_Cycle(t *testing.T) {
	lister := newFakeLister()
	lister.folders["root"] = []internal.FolderEntry{
		{Name: "loop", Ref: "child", IsFolder: true},
		{Name: "x.bin", Ref: "x"},
	}
	lister.folders["child"] = []internal.FolderEntry{
		{Name: "back", Ref: "root", IsFolder: true},
		{Name: "again", Ref: "child", IsFolder: true},
	}

	files, err := ExpandFolder(context.Background(), lister, "root")
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.Equal(t, 1, lister.calls["root"])
	assert.Equal(t, 1, lister.calls["child"])
}

func TestExpandFolder_Errors(t *testing.T) {
	lister := newFakeLister()
	lister.errs["root"] = errors.New("boom")
	_, err := ExpandFolder(context.Background(), lister, "root")
	assert.Error(t, err, "a failing root listing is fatal")

	lister = newFakeLister()
	lister.folders["root"] = []internal.FolderEntry{
		{Name: "broken", Ref: "bad", IsFolder: true},
		{Name: "ok.bin", Ref: "ok"},
	}
	lister.errs["bad"] = errors.New("boom")
	files, err := ExpandFolder(context.Background(), lister, "root")
	require.NoError(t, err, "a failing sub-folder is skipped")
	assert.Len(t, files, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ExpandFolder(ctx, lister, "root")
	assert.ErrorIs(t, err, context.Canceled)
}
