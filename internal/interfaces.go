package internal

import "context"

// Provider drives one debrid/usenet service through the shared job state
// machine. Orchestrator and Ranker only ever see this interface.
type Provider interface {
	Name() string
	Submit(ctx context.Context, res Resource) (*ProviderJob, error)
	Poll(ctx context.Context, job *ProviderJob) (*PollResult, error)
	Select(ctx context.Context, job *ProviderJob, candidates []RemoteFile, set SelectionSet) error
	Unlock(ctx context.Context, file RemoteFile) (string, error)
	Probe(ctx context.Context, res Resource) CacheProbeResult
	Remove(ctx context.Context, job *ProviderJob) error
}

// FolderLister enumerates a cloud folder. ref is either the folder URL or
// the Ref of a sub-folder entry returned by a previous call.
type FolderLister interface {
	ListFolder(ctx context.Context, ref string) ([]FolderEntry, error)
}

// ProgressRenderer displays PROCESSING snapshots
type ProgressRenderer interface {
	Render(p Progress)
	Done()
}

// DownloadEngine fetches a resolved link to disk and returns the saved path
type DownloadEngine interface {
	Download(ctx context.Context, link Link, outputDir string) (string, error)
}

// RateLimiter throttles byte throughput
type RateLimiter interface {
	Wait(ctx context.Context, n int) error
	SetRate(bytesPerSecond int64)
}
