package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	"onedl/downloader"
	"onedl/internal"
	"onedl/providers"
	"onedl/resolver"
	"onedl/utils"
)

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context, con console) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			internal.LogInfo("Received signal %v, cancelling", sig)
			con.fail("\nReceived %v, aborting...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// session carries what every command needs for one run
type session struct {
	cfg       *internal.Config
	fs        afero.Fs
	prompt    *prompter
	con       console
	progress  io.Writer
	providers []internal.Provider
	engine    internal.DownloadEngine
}

func newSession(cfg *internal.Config, in io.Reader, out io.Writer) *session {
	return &session{
		cfg:      cfg,
		fs:       afero.NewOsFs(),
		prompt:   newPrompter(in, out),
		con:      console{out: out, quiet: cfg.Log.Quiet},
		progress: os.Stderr,
	}
}

// loadProviders builds the configured providers once
func (s *session) loadProviders() ([]internal.Provider, error) {
	if s.providers != nil {
		return s.providers, nil
	}
	all, err := providers.FromConfig(s.cfg, nil)
	if errors.Is(err, providers.ErrNoProviders) {
		return nil, fmt.Errorf("%w: set a token with ONEDL_PROVIDERS_<NAME> or in the config file", err)
	}
	if err != nil {
		return nil, err
	}
	s.providers = all
	return all, nil
}

func (s *session) provider(name string) (internal.Provider, error) {
	all, err := s.loadProviders()
	if err != nil {
		return nil, err
	}
	if name == "" {
		return all[0], nil
	}
	picked, err := providers.Filter(all, []string{name})
	if err != nil {
		return nil, err
	}
	return picked[0], nil
}

func (s *session) downloadEngine() (internal.DownloadEngine, error) {
	if s.engine != nil {
		return s.engine, nil
	}
	engine, err := downloader.NewEngineFromConfig(s.cfg)
	if err != nil {
		return nil, err
	}
	s.engine = engine
	return engine, nil
}

// orchestrator wires the callbacks for one resolution. An empty selection
// asks interactively.
func (s *session) orchestrator(p internal.Provider, selection string) *resolver.Orchestrator {
	selectFiles := s.prompt.selectFiles
	if selection != "" {
		selectFiles = func(files []internal.RemoteFile) internal.SelectionSet {
			return resolver.ParseSelection(selection, len(files))
		}
	}

	opts := []resolver.Option{
		resolver.WithPollInterval(s.cfg.PollInterval),
		resolver.WithFs(s.fs),
		resolver.WithCallbacks(resolver.Callbacks{
			SelectFiles: selectFiles,
			Progress:    utils.NewJobProgressBar(s.progress, p.Name(), s.cfg.Log.Quiet),
		}),
	}
	if lister := providers.FolderLister(s.providers); lister != nil {
		opts = append(opts, resolver.WithFolderLister(lister))
	}
	return resolver.NewOrchestrator(p, opts...)
}

// resolveAll resolves every input with p. Failed inputs are reported and
// skipped; an error is returned only when nothing resolved or the run was
// cancelled.
func (s *session) resolveAll(ctx context.Context, p internal.Provider, inputs []string, selection string) ([]internal.Link, error) {
	var (
		links  []internal.Link
		failed int
	)

	for i, input := range inputs {
		res := resolver.Classify(input)
		s.con.info("[%d/%d] Resolving %s with %s", i+1, len(inputs), res.Label(), p.Name())

		got, err := s.orchestrator(p, selection).Resolve(ctx, res)
		if ctx.Err() != nil {
			return links, ctx.Err()
		}
		if err != nil {
			failed++
			logResolveError(err)
			s.con.fail("Failed: %v", err)
			continue
		}
		if len(got) == 0 {
			s.con.warn("No links for %s", res.Label())
			continue
		}
		links = append(links, got...)
	}

	if failed > 0 && failed == len(inputs) {
		return nil, fmt.Errorf("all %d inputs failed", failed)
	}
	return links, nil
}

func logResolveError(err error) {
	var pe *internal.ProviderError
	if errors.As(err, &pe) {
		internal.LogProviderError(pe)
		return
	}
	internal.LogError("Resolution failed: %v", err)
}

// printLinks writes one URL per line to out, which stays clean for piping
func printLinks(out io.Writer, links []internal.Link) {
	for _, link := range links {
		fmt.Fprintln(out, link.URL)
	}
}

// downloadLinks saves links into dir and reports each one
func (s *session) downloadLinks(ctx context.Context, links []internal.Link, dir string) error {
	engine, err := s.downloadEngine()
	if err != nil {
		return err
	}
	if dir == "" {
		dir = s.cfg.OutputDir
	}

	failed := 0
	for i, r := range downloader.DownloadAll(ctx, engine, links, dir) {
		switch {
		case r.Err == nil:
			s.con.success("[%d/%d] Saved %s", i+1, len(links), r.Path)
		case errors.Is(r.Err, context.Canceled):
			return r.Err
		default:
			failed++
			internal.LogError("Download of %s failed: %v", r.Link.URL, r.Err)
			s.con.fail("[%d/%d] %s: %v", i+1, len(links), r.Link.URL, r.Err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(links))
	}
	return nil
}
