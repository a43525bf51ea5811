package resolver

import (
	"context"
	"errors"
	"sync"

	"onedl/internal"
)

type pollStep struct {
	result *internal.PollResult
	err    error
}

// fakeProvider replays scripted poll results; the last step repeats
type fakeProvider struct {
	mu sync.Mutex

	name       string
	submitErr  error
	polls      []pollStep
	pollCount  int
	selectErrs []error
	selects    []internal.SelectionSet
	unlockErrs map[string]error
	unlocked   []string
	removed    int
	probe      internal.CacheProbeResult
	probed     []internal.Resource
	submitted  []internal.Resource
}

func newFakeProvider(name string, steps ...pollStep) *fakeProvider {
	return &fakeProvider{name: name, polls: steps, unlockErrs: map[string]error{}}
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Submit(ctx context.Context, res internal.Resource) (*internal.ProviderJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, res)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return internal.NewProviderJob(f.name, "remote-1", res), nil
}

func (f *fakeProvider) Poll(ctx context.Context, job *internal.ProviderJob) (*internal.PollResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.polls) == 0 {
		return nil, errors.New("no poll steps")
	}
	i := f.pollCount
	if i >= len(f.polls) {
		i = len(f.polls) - 1
	}
	f.pollCount++
	step := f.polls[i]
	return step.result, step.err
}

func (f *fakeProvider) Select(ctx context.Context, job *internal.ProviderJob, candidates []internal.RemoteFile, set internal.SelectionSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selects = append(f.selects, set)
	if len(f.selectErrs) > 0 {
		err := f.selectErrs[0]
		f.selectErrs = f.selectErrs[1:]
		return err
	}
	return nil
}

func (f *fakeProvider) Unlock(ctx context.Context, file internal.RemoteFile) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unlockErrs[file.ID]; err != nil {
		return "", err
	}
	link := file.Link
	if link == "" {
		link = file.ID
	}
	f.unlocked = append(f.unlocked, link)
	return "https://dl.example/" + file.ID, nil
}

func (f *fakeProvider) Probe(ctx context.Context, res internal.Resource) internal.CacheProbeResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probed = append(f.probed, res)
	return f.probe
}

func (f *fakeProvider) Remove(ctx context.Context, job *internal.ProviderJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed++
	return nil
}

func (f *fakeProvider) pollCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollCount
}

// listingProvider is a fakeProvider that can also list folders
type listingProvider struct {
	*fakeProvider
	lister *fakeLister
}

func (l *listingProvider) ListFolder(ctx context.Context, ref string) ([]internal.FolderEntry, error) {
	return l.lister.ListFolder(ctx, ref)
}

type fakeLister struct {
	mu      sync.Mutex
	folders map[string][]internal.FolderEntry
	errs    map[string]error
	calls   map[string]int
}

func newFakeLister() *fakeLister {
	return &fakeLister{
		folders: map[string][]internal.FolderEntry{},
		errs:    map[string]error{},
		calls:   map[string]int{},
	}
}

func (l *fakeLister) ListFolder(ctx context.Context, ref string) ([]internal.FolderEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[ref]++
	if err := l.errs[ref]; err != nil {
		return nil, err
	}
	return l.folders[ref], nil
}

func remoteFiles(ids ...string) []internal.RemoteFile {
	out := make([]internal.RemoteFile, len(ids))
	for i, id := range ids {
		out[i] = internal.RemoteFile{ID: id, Name: id + ".bin", Link: "link-" + id}
	}
	return out
}

func ready(fs []internal.RemoteFile) pollStep {
	return pollStep{result: &internal.PollResult{State: internal.StateReady, Files: fs}}
}

func state(s internal.JobState) pollStep {
	return pollStep{result: &internal.PollResult{State: s, Progress: internal.Progress{Percent: 10}}}
}
