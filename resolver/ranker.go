package resolver

import (
	"context"
	"sort"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"onedl/internal"
)

// ProbeResult is one provider's answer for a resource
type ProbeResult struct {
	Provider internal.Provider
	Result   internal.CacheProbeResult
}

// Ranking is the probe results sorted best first, together with the
// resource each provider should be handed.
type Ranking struct {
	Resource internal.Resource
	Results  []ProbeResult
}

// Pick returns the i-th ranked provider (0-based) and the resource to
// resolve with it
func (r Ranking) Pick(i int) (internal.Provider, internal.Resource, bool) {
	if i < 0 || i >= len(r.Results) {
		return nil, internal.Resource{}, false
	}
	return r.Results[i].Provider, r.Resource, true
}

// Best returns the first provider that supports the resource
func (r Ranking) Best() (internal.Provider, bool) {
	if len(r.Results) == 0 || !r.Results[0].Result.Supported() {
		return nil, false
	}
	return r.Results[0].Provider, true
}

// Ranker probes every provider's cache for a resource. It never resolves.
type Ranker struct {
	providers   []internal.Provider
	concurrency int
	lister      internal.FolderLister
	fs          afero.Fs
	logger      *internal.SecureLogger
}

// RankerOption configures a Ranker
type RankerOption func(*Ranker)

// WithConcurrency probes up to n providers at once
func WithConcurrency(n int) RankerOption {
	return func(r *Ranker) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLister sets the folder lister used to expand cloud folders
func WithLister(l internal.FolderLister) RankerOption {
	return func(r *Ranker) { r.lister = l }
}

// WithRankerFs sets the filesystem container files are read from
func WithRankerFs(fsys afero.Fs) RankerOption {
	return func(r *Ranker) { r.fs = fsys }
}

// NewRanker creates a ranker over providers; their order breaks ties
func NewRanker(providers []internal.Provider, opts ...RankerOption) *Ranker {
	r := &Ranker{
		providers:   providers,
		concurrency: 1,
		fs:          afero.NewOsFs(),
		logger:      internal.GetLogger().WithComponent("ranker"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank probes every provider and sorts the answers Cached, NotCached,
// NotSupported, Unknown; ties keep provider order.
func (r *Ranker) Rank(ctx context.Context, res internal.Resource) (Ranking, error) {
	prepared, err := Prepare(r.fs, res)
	if err != nil {
		return Ranking{}, err
	}

	probeTarget := prepared
	expandable := true
	if prepared.Kind == internal.KindCloudFolder {
		probeTarget, expandable = r.folderProbeTarget(ctx, prepared)
		if err := ctx.Err(); err != nil {
			return Ranking{}, err
		}
	}

	results := make([]ProbeResult, len(r.providers))
	for i, p := range r.providers {
		results[i] = ProbeResult{Provider: p, Result: internal.ProbeUnknown}
	}

	if expandable {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)
		for i, p := range r.providers {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i].Result = p.Probe(gctx, probeTarget)
				r.logger.Debug("Probe %s: %s", p.Name(), results[i].Result)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Ranking{}, err
		}
		if err := ctx.Err(); err != nil {
			return Ranking{}, err
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Result < results[b].Result
	})

	return Ranking{Resource: prepared, Results: results}, nil
}

// folderProbeTarget expands a folder once and returns its first file as a
// hoster link. false means every provider is Unknown.
func (r *Ranker) folderProbeTarget(ctx context.Context, res internal.Resource) (internal.Resource, bool) {
	lister := r.lister
	if lister == nil {
		for _, p := range r.providers {
			if l, ok := p.(internal.FolderLister); ok {
				lister = l
				break
			}
		}
	}
	if lister == nil {
		r.logger.Warn("No folder lister configured for %s", res.URL)
		return res, false
	}

	files, err := ExpandFolder(ctx, lister, res.URL)
	if err != nil || len(files) == 0 {
		r.logger.Warn("Cannot expand folder %s: %v", res.URL, err)
		return res, false
	}

	first := files[0].Link
	if first == "" {
		first = files[0].URL
	}
	if first == "" {
		return res, false
	}
	return internal.NewHosterLink(first), true
}
