package cmd

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onedl/internal"
)

// stubProvider finishes every job at once with fixed files
type stubProvider struct {
	name   string
	probe  internal.CacheProbeResult
	files  []internal.RemoteFile
	reject string
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Submit(ctx context.Context, res internal.Resource) (*internal.ProviderJob, error) {
	if res.URL == p.reject {
		return nil, internal.NewSubmissionError(p.name, "rejected")
	}
	return internal.NewProviderJob(p.name, "1", res), nil
}

func (p *stubProvider) Poll(ctx context.Context, job *internal.ProviderJob) (*internal.PollResult, error) {
	return &internal.PollResult{State: internal.StateReady, Files: p.files}, nil
}

func (p *stubProvider) Select(ctx context.Context, job *internal.ProviderJob, candidates []internal.RemoteFile, set internal.SelectionSet) error {
	return nil
}

func (p *stubProvider) Unlock(ctx context.Context, file internal.RemoteFile) (string, error) {
	return "https://cdn." + p.name + "/" + file.Name, nil
}

func (p *stubProvider) Probe(ctx context.Context, res internal.Resource) internal.CacheProbeResult {
	return p.probe
}

func (p *stubProvider) Remove(ctx context.Context, job *internal.ProviderJob) error { return nil }

type recordingEngine struct {
	mu   sync.Mutex
	urls []string
	dirs []string
}

func (e *recordingEngine) Download(ctx context.Context, link internal.Link, outputDir string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.urls = append(e.urls, link.URL)
	e.dirs = append(e.dirs, outputDir)
	return outputDir + "/" + link.Name, nil
}

func newTestSession(input string, ps ...internal.Provider) (*session, *recordingEngine, *bytes.Buffer) {
	cfg := internal.DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.OutputDir = "/downloads"
	cfg.Log.Quiet = true

	out := &bytes.Buffer{}
	engine := &recordingEngine{}
	s := &session{
		cfg:       cfg,
		fs:        afero.NewMemMapFs(),
		prompt:    newPrompter(strings.NewReader(input), out),
		con:       console{out: out, quiet: true},
		progress:  io.Discard,
		providers: ps,
		engine:    engine,
	}
	return s, engine, out
}

var twoFiles = []internal.RemoteFile{{Name: "a.mkv", Link: "l1"}, {Name: "b.mkv", Link: "l2"}}

func TestSession_ResolveAll(t *testing.T) {
	p := &stubProvider{name: "rd", files: twoFiles, reject: "https://host.example/bad"}
	s, _, out := newTestSession("", p)

	links, err := s.resolveAll(context.Background(), p,
		[]string{"https://host.example/bad", "https://host.example/good"}, "2")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, internal.Link{Name: "b.mkv", URL: "https://cdn.rd/b.mkv"}, links[0])
	assert.Contains(t, out.String(), "rejected")

	_, err = s.resolveAll(context.Background(), p, []string{"https://host.example/bad"}, "")
	assert.Error(t, err)
}

func TestSession_ResolveAllAsksForSelection(t *testing.T) {
	p := &stubProvider{name: "rd", files: twoFiles}
	s, _, _ := newTestSession("1\n", p)

	links, err := s.resolveAll(context.Background(), p, []string{"https://host.example/f"}, "")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "a.mkv", links[0].Name)
}

func TestSession_Provider(t *testing.T) {
	rd := &stubProvider{name: "realdebrid"}
	tb := &stubProvider{name: "torbox"}
	s, _, _ := newTestSession("", rd, tb)

	p, err := s.provider("")
	require.NoError(t, err)
	assert.Equal(t, "realdebrid", p.Name())

	p, err = s.provider("TorBox")
	require.NoError(t, err)
	assert.Equal(t, "torbox", p.Name())

	_, err = s.provider("premiumize")
	assert.Error(t, err)
}

func TestSession_Best(t *testing.T) {
	a := &stubProvider{name: "a", probe: internal.ProbeNotCached, files: twoFiles[:1]}
	b := &stubProvider{name: "b", probe: internal.ProbeCached, files: twoFiles[:1]}
	s, _, out := newTestSession("1\n", a, b)

	links, err := s.best(context.Background(), "https://host.example/f", 0, "")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "https://cdn.b/a.mkv", links[0].URL)
	assert.Contains(t, out.String(), "b (")

	links, err = s.best(context.Background(), "https://host.example/f", 2, "")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.a/a.mkv", links[0].URL)

	_, err = s.best(context.Background(), "https://host.example/f", 5, "")
	assert.ErrorIs(t, err, errInvalidChoice)
}

func TestSession_BestNoneSupported(t *testing.T) {
	a := &stubProvider{name: "a", probe: internal.ProbeNotSupported}
	s, _, _ := newTestSession("", a)

	_, err := s.best(context.Background(), "https://host.example/f", 1, "")
	assert.ErrorContains(t, err, "no configured provider")
}

func TestSession_MenuPaste(t *testing.T) {
	s, engine, _ := newTestSession("2\nhttps://a.example/x\nhttps://b.example/y\n\n")

	require.NoError(t, s.menu(context.Background()))
	assert.Equal(t, []string{"https://a.example/x", "https://b.example/y"}, engine.urls)
	assert.Equal(t, []string{"/downloads", "/downloads"}, engine.dirs)
}

func TestSession_MenuDebrid(t *testing.T) {
	p := &stubProvider{name: "rd", files: twoFiles[:1]}
	s, engine, _ := newTestSession("3\n1\nhttps://host.example/f\n", p)

	require.NoError(t, s.menu(context.Background()))
	assert.Equal(t, []string{"https://cdn.rd/a.mkv"}, engine.urls)
}

func TestSession_MenuInvalidChoice(t *testing.T) {
	s, _, _ := newTestSession("9\n")
	assert.ErrorIs(t, s.menu(context.Background()), errInvalidChoice)
}

func TestListInputFiles(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/w/z.txt", nil, 0644))
	require.NoError(t, afero.WriteFile(fsys, "/w/a.txt", nil, 0644))
	require.NoError(t, afero.WriteFile(fsys, "/w/.env", nil, 0644))
	require.NoError(t, fsys.MkdirAll("/w/sub", 0755))

	files, err := listInputFiles(fsys, "/w")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "z.txt"}, files)
}
