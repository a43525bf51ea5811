// Package downloader saves resolved direct links to disk.
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"onedl/internal"
	"onedl/utils"
)

const fallbackFilename = "download"

// EngineConfig configures an Engine. Zero values mean the OS filesystem,
// stderr progress and no rate limit.
type EngineConfig struct {
	HTTPClient *utils.HTTPClient
	Fs         afero.Fs
	RateLimit  int64 // bytes per second, 0 for unlimited
	Quiet      bool
	Output     io.Writer
}

// Engine downloads links one at a time over a single connection. A failed
// download is reported and never retried.
type Engine struct {
	httpClient *utils.HTTPClient
	fileOps    *utils.FileOperations
	limiter    internal.RateLimiter
	quiet      bool
	out        io.Writer
	logger     *internal.SecureLogger
}

var _ internal.DownloadEngine = (*Engine)(nil)

// NewEngine creates an Engine
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.HTTPClient == nil {
		// no overall timeout: large files outlive any fixed deadline
		cfg.HTTPClient = utils.NewHTTPClientWithConfig(&utils.HTTPClientConfig{
			RetryConfig: &utils.RetryConfig{MaxAttempts: 1},
		})
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	e := &Engine{
		httpClient: cfg.HTTPClient,
		fileOps:    utils.NewFileOperationsOn(cfg.Fs),
		quiet:      cfg.Quiet,
		out:        cfg.Output,
		logger:     internal.GetLogger().WithComponent("downloader"),
	}
	if cfg.RateLimit > 0 {
		e.limiter = utils.NewByteLimiter(cfg.RateLimit)
	}
	return e
}

// NewEngineFromConfig builds an Engine honoring proxy, user agent and
// rate_limit from cfg
func NewEngineFromConfig(cfg *internal.Config) (*Engine, error) {
	rateLimit, err := utils.ParseRateLimit(cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	client := utils.NewHTTPClientWithConfig(&utils.HTTPClientConfig{
		ProxyURL:    cfg.Proxy,
		UserAgent:   cfg.UserAgent,
		RetryConfig: &utils.RetryConfig{MaxAttempts: 1},
	})

	return NewEngine(EngineConfig{
		HTTPClient: client,
		RateLimit:  rateLimit,
		Quiet:      cfg.Log.Quiet,
	}), nil
}

// Download fetches link into outputDir and returns the saved path. The
// body goes to a .part file that is renamed once complete; an existing
// file is never overwritten.
func (e *Engine) Download(ctx context.Context, link internal.Link, outputDir string) (string, error) {
	if !utils.IsHTTPURL(link.URL) {
		return "", internal.NewInvalidInputError(link.URL, "not an http(s) URL")
	}

	resp, err := e.httpClient.Get(ctx, link.URL, nil)
	if err != nil {
		return "", downloadError(link.URL, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errType := internal.ErrDownloadFailed
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
			errType = internal.ErrPermissionDenied
		}
		return "", internal.NewProviderError(resp.StatusCode, fmt.Sprintf("server answered %s", resp.Status), errType).
			WithURL(link.URL)
	}

	name := utils.ResolveFilename(resp.Header.Get("Content-Disposition"), link.Name, link.URL, fallbackFilename)
	target := e.fileOps.UniquePath(filepath.Join(outputDir, name))
	if err := e.fileOps.EnsureDir(target); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	file, partPath, err := e.fileOps.CreatePartialFile(target)
	if err != nil {
		return "", err
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	tracker := utils.NewProgressTrackerTo(e.out, total, e.quiet)
	tracker.SetFilename(filepath.Base(target))

	e.logger.Debug("Downloading %s to %s", link.URL, target)
	body := utils.NewLimitedReader(ctx, resp.Body, e.limiter)
	written, err := io.Copy(io.MultiWriter(file, utils.NewProgressWriter(tracker, 0)), body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	tracker.Finish()

	if err == nil && resp.ContentLength > 0 && written != resp.ContentLength {
		err = fmt.Errorf("received %d of %d bytes", written, resp.ContentLength)
	}
	if err != nil {
		if rmErr := e.fileOps.Remove(partPath); rmErr != nil {
			e.logger.Warn("Failed to remove %s: %v", partPath, rmErr)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", downloadError(link.URL, "transfer interrupted", err)
	}

	if err := e.fileOps.AtomicRename(partPath, target); err != nil {
		return "", fmt.Errorf("failed to rename part file to final file: %w", err)
	}
	return target, nil
}

func downloadError(url, msg string, cause error) error {
	return internal.NewProviderError(0, msg, internal.ErrDownloadFailed).WithURL(url).WithCause(cause)
}

// Result is the outcome of one link in DownloadAll
type Result struct {
	Link internal.Link
	Path string
	Err  error
}

// DownloadAll downloads links in order through engine. A failing link does
// not stop the rest; cancellation marks every remaining link as failed.
func DownloadAll(ctx context.Context, engine internal.DownloadEngine, links []internal.Link, outputDir string) []Result {
	results := make([]Result, len(links))
	for i, link := range links {
		results[i].Link = link
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		results[i].Path, results[i].Err = engine.Download(ctx, link, outputDir)
	}
	return results
}
