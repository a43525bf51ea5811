package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onedl/internal"
)

func probing(name string, result internal.CacheProbeResult) *fakeProvider {
	p := newFakeProvider(name)
	p.probe = result
	return p
}

func names(r Ranking) []string {
	out := make([]string, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.Provider.Name()
	}
	return out
}

func TestRank_SortsByResult(t *testing.T) {
	a := probing("A", internal.ProbeNotCached)
	b := probing("B", internal.ProbeCached)
	c := probing("C", internal.ProbeNotSupported)

	ranking, err := NewRanker([]internal.Provider{a, b, c}).Rank(context.Background(), magnetRes)
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "A", "C"}, names(ranking))

	best, ok := ranking.Best()
	require.True(t, ok)
	assert.Equal(t, "B", best.Name())

	p, res, ok := ranking.Pick(1)
	require.True(t, ok)
	assert.Equal(t, "A", p.Name())
	assert.Equal(t, magnetRes, res)

	_, _, ok = ranking.Pick(3)
	assert.False(t, ok)
}

func TestRank_StableTiesAndConcurrency(t *testing.T) {
	providers := []internal.Provider{
		probing("p1", internal.ProbeUnknown),
		probing("p2", internal.ProbeNotCached),
		probing("p3", internal.ProbeUnknown),
		probing("p4", internal.ProbeNotCached),
		probing("p5", internal.ProbeCached),
	}

	for _, n := range []int{1, 3, 8} {
		ranking, err := NewRanker(providers, WithConcurrency(n)).Rank(context.Background(), magnetRes)
		require.NoError(t, err)
		assert.Equal(t, []string{"p5", "p2", "p4", "p1", "p3"}, names(ranking), "concurrency %d", n)
	}
}

func TestRank_NoneSupported(t *testing.T) {
	ranking, err := NewRanker([]internal.Provider{probing("A", internal.ProbeNotSupported)}).
		Rank(context.Background(), magnetRes)
	require.NoError(t, err)

	_, ok := ranking.Best()
	assert.False(t, ok)
}

func TestRank_PreparesTorrentOnce(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/t/ubuntu.torrent", testTorrent(), 0644))

	a := probing("A", internal.ProbeCached)
	ranking, err := NewRanker([]internal.Provider{a}, WithRankerFs(fsys)).
		Rank(context.Background(), Classify("/t/ubuntu.torrent"))
	require.NoError(t, err)

	require.Len(t, a.probed, 1)
	assert.Equal(t, internal.KindMagnet, a.probed[0].Kind)
	assert.Equal(t, internal.KindMagnet, ranking.Resource.Kind)
}

func TestRank_CloudFolderProbesFirstFile(t *testing.T) {
	folderURL := "https://mega.nz/folder/ID#KEY"
	lister := newFakeLister()
	lister.folders[folderURL] = []internal.FolderEntry{
		{Name: "sub", Ref: "s", IsFolder: true},
		{Name: "a.mkv", Ref: "a", Link: "https://mega.nz/file/a"},
	}

	a := probing("A", internal.ProbeNotCached)
	b := probing("B", internal.ProbeCached)
	ranking, err := NewRanker([]internal.Provider{a, b}, WithLister(lister)).
		Rank(context.Background(), Classify(folderURL))
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "A"}, names(ranking))
	require.Len(t, a.probed, 1)
	assert.Equal(t, internal.NewHosterLink("https://mega.nz/file/a"), a.probed[0])
	assert.Equal(t, 1, lister.calls[folderURL], "the folder is expanded once")
	assert.Equal(t, internal.KindCloudFolder, ranking.Resource.Kind, "the orchestrator still gets the folder")
}

func TestRank_CloudFolderExpansionFailure(t *testing.T) {
	folderURL := "https://mega.nz/folder/ID#KEY"
	lister := newFakeLister()
	lister.errs[folderURL] = errors.New("listing failed")

	a := probing("A", internal.ProbeCached)
	b := probing("B", internal.ProbeCached)
	ranking, err := NewRanker([]internal.Provider{a, b}, WithLister(lister)).
		Rank(context.Background(), Classify(folderURL))
	require.NoError(t, err)

	for _, r := range ranking.Results {
		assert.Equal(t, internal.ProbeUnknown, r.Result)
	}
	assert.Empty(t, a.probed)
	assert.Equal(t, []string{"A", "B"}, names(ranking))
}

func TestRank_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRanker([]internal.Provider{probing("A", internal.ProbeCached)}).Rank(ctx, magnetRes)
	assert.ErrorIs(t, err, context.Canceled)
}
