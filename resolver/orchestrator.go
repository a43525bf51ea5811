package resolver

import (
	"context"
	"sort"
	"time"

	"github.com/spf13/afero"

	"onedl/internal"
)

// DefaultPollInterval is the fixed cadence between status queries
const DefaultPollInterval = 3 * time.Second

// cleanupTimeout bounds best-effort remote deletions
const cleanupTimeout = 15 * time.Second

// Callbacks connect a resolution to the user. Every field is optional: a
// nil SelectFiles selects everything.
type Callbacks struct {
	// SelectFiles is asked at most once per resolution
	SelectFiles func(files []internal.RemoteFile) internal.SelectionSet
	// Progress receives PROCESSING snapshots; Done is called when polling ends
	Progress internal.ProgressRenderer
	// Complete receives the final links unless the resolution was cancelled
	Complete func(links []internal.Link)
}

// Orchestrator drives one provider job from submission to direct links
type Orchestrator struct {
	provider     internal.Provider
	pollInterval time.Duration
	lister       internal.FolderLister
	fs           afero.Fs
	callbacks    Callbacks
	logger       *internal.SecureLogger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithPollInterval sets the delay between polls
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.pollInterval = d
		}
	}
}

// WithFolderLister sets the lister used for cloud folders when the provider
// cannot list them itself
func WithFolderLister(l internal.FolderLister) Option {
	return func(o *Orchestrator) { o.lister = l }
}

// WithFs sets the filesystem container files are read from
func WithFs(fsys afero.Fs) Option {
	return func(o *Orchestrator) { o.fs = fsys }
}

// WithCallbacks sets the user callbacks
func WithCallbacks(cb Callbacks) Option {
	return func(o *Orchestrator) { o.callbacks = cb }
}

// NewOrchestrator creates an orchestrator for provider
func NewOrchestrator(provider internal.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:     provider,
		pollInterval: DefaultPollInterval,
		fs:           afero.NewOsFs(),
		logger:       internal.GetLogger().WithComponent("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Resolve turns res into direct links. A job that ends in ERROR yields no
// links and a JobFailed error; an empty selection yields no links and no
// error. On cancellation ctx.Err() is returned and Complete is not called.
func (o *Orchestrator) Resolve(ctx context.Context, res internal.Resource) ([]internal.Link, error) {
	prepared, err := Prepare(o.fs, res)
	if err != nil {
		return nil, err
	}

	var links []internal.Link
	if prepared.Kind == internal.KindCloudFolder {
		links, err = o.resolveFolder(ctx, prepared)
	} else {
		links, err = o.resolveJob(ctx, prepared)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if links == nil {
		links = []internal.Link{}
	}
	if o.callbacks.Complete != nil {
		o.callbacks.Complete(links)
	}
	return links, err
}

func (o *Orchestrator) resolveJob(ctx context.Context, res internal.Resource) ([]internal.Link, error) {
	name := o.provider.Name()

	job, err := o.provider.Submit(ctx, res)
	if err != nil {
		return nil, err
	}
	o.logger.Info("Submitted %s to %s (job %s, remote %s)", res.Kind, name, job.LocalID, job.RemoteID)

	rendered := false
	defer func() {
		if rendered {
			o.callbacks.Progress.Done()
		}
	}()

	selected := false
	var pending internal.SelectionSet

	for {
		result, err := o.provider.Poll(ctx, job)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case internal.IsTransient(err):
			o.logger.Warn("Polling %s job %s failed, retrying: %v", name, job.RemoteID, err)
			if err := o.sleep(ctx); err != nil {
				return nil, err
			}
			continue
		default:
			o.logger.Error("Polling %s job %s failed: %v", name, job.RemoteID, err)
			return nil, internal.NewJobFailedError(name, "status query failed").WithCause(err)
		}

		job.Apply(result)

		switch result.State {
		case internal.StateAwaitingSelection:
			if !selected {
				selected = true
				pending = o.selectFiles(result.Files)
				if len(pending) == 0 {
					o.abort(ctx, job)
					return nil, nil
				}
			}
			if pending != nil {
				err := o.provider.Select(ctx, job, result.Files, pending)
				switch {
				case err == nil:
					pending = nil
				case ctx.Err() != nil:
					return nil, ctx.Err()
				case internal.IsTransient(err):
					o.logger.Warn("Sending selection to %s failed, retrying: %v", name, err)
				default:
					return nil, err
				}
			}

		case internal.StateProcessing:
			if o.callbacks.Progress != nil {
				rendered = true
				o.callbacks.Progress.Render(internal.Progress{
					Percent:         result.Progress.Percent,
					RateBytesPerSec: result.Progress.RateBytesPerSec,
					Peers:           result.Progress.Peers,
					Phase:           result.State.String(),
				})
			}

		case internal.StateReady:
			files := result.Files
			if !selected && len(files) > 1 {
				selected = true
				set := o.selectFiles(files)
				if len(set) == 0 {
					o.abort(ctx, job)
					return nil, nil
				}
				files = Pick(files, set)
			}
			return o.unlockAll(ctx, files)

		case internal.StateError:
			msg := job.Message
			if msg == "" {
				msg = "remote job failed"
			}
			return nil, internal.NewJobFailedError(name, msg).WithContext("job", job.RemoteID)
		}

		if err := o.sleep(ctx); err != nil {
			return nil, err
		}
	}
}

func (o *Orchestrator) resolveFolder(ctx context.Context, res internal.Resource) ([]internal.Link, error) {
	lister, own := o.provider.(internal.FolderLister)
	if !own {
		lister = o.lister
	}
	if lister == nil {
		return nil, internal.NewNotSupportedError(o.provider.Name(), res.Kind).
			WithSuggestion("Configure a Premiumize token to expand cloud folders")
	}

	files, err := ExpandFolder(ctx, lister, res.URL)
	if err != nil {
		return nil, err
	}

	// links found by another service are unlocked by the chosen provider
	if !own {
		for i := range files {
			if files[i].Link == "" {
				files[i].Link = files[i].URL
			}
			files[i].URL = ""
		}
	}

	if len(files) == 0 {
		return nil, nil
	}

	set := o.selectFiles(files)
	if len(set) == 0 {
		return nil, nil
	}
	return o.unlockAll(ctx, Pick(files, set))
}

func (o *Orchestrator) selectFiles(files []internal.RemoteFile) internal.SelectionSet {
	if o.callbacks.SelectFiles == nil {
		return ParseSelection("all", len(files))
	}
	return normalizeSet(o.callbacks.SelectFiles(files), len(files))
}

// normalizeSet drops out of range and duplicate indices and sorts the rest
func normalizeSet(set internal.SelectionSet, maxIndex int) internal.SelectionSet {
	seen := make(map[int]bool, len(set))
	out := make(internal.SelectionSet, 0, len(set))
	for _, i := range set {
		if i >= 1 && i <= maxIndex && !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

// unlockAll unlocks every file independently; failures are logged and skipped
func (o *Orchestrator) unlockAll(ctx context.Context, files []internal.RemoteFile) ([]internal.Link, error) {
	links := make([]internal.Link, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		url := f.URL
		if url == "" {
			var err error
			url, err = o.provider.Unlock(ctx, f)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				o.logger.Warn("Skipping %s: %v", f.Name, err)
				continue
			}
		}
		links = append(links, internal.Link{Name: f.Name, URL: url})
	}
	return links, nil
}

// abort removes a job nobody wants; failures are only logged
func (o *Orchestrator) abort(ctx context.Context, job *internal.ProviderJob) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := o.provider.Remove(cctx, job); err != nil {
		o.logger.Warn("Failed to remove %s job %s: %v", o.provider.Name(), job.RemoteID, err)
	}
}

func (o *Orchestrator) sleep(ctx context.Context) error {
	if o.pollInterval <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(o.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
