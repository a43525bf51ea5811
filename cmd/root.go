package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"onedl/internal"
	"onedl/resolver"
)

// Version is set at build time with -ldflags
var Version = "v1.0.0"

var (
	configPath string
	debug      bool
	logLevel   string
	logFile    string
	quiet      bool
	proxyURL   string
	config     *internal.Config
)

var rootCmd = &cobra.Command{
	Use:     "onedl",
	Short:   "Resolve magnets, hoster links and containers through debrid providers",
	Version: Version,
	Long: `onedl turns magnet URIs, hoster links, cloud folders and .torrent/.nzb
files into direct download links using Real-Debrid, AllDebrid, Premiumize
or TorBox, and can download the results.

Run without arguments for the interactive menu.

Examples:
  onedl
  onedl resolve "magnet:?xt=urn:btih:..."
  onedl best --download https://rapidgator.net/file/abc
  onedl download -r 5M https://cdn.example.com/file.mkv

Environment Variables:
  ONEDL_PROVIDERS_REALDEBRID   Real-Debrid API token (also REALDEBRID_TOKEN)
  ONEDL_PROVIDERS_ALLDEBRID    AllDebrid API token (also ALLDEBRID_TOKEN)
  ONEDL_PROVIDERS_PREMIUMIZE   Premiumize API key (also PREMIUMIZE_TOKEN)
  ONEDL_PROVIDERS_TORBOX       TorBox API token (also TORBOX_TOKEN)
  ONEDL_PROXY                  Proxy URL
  ONEDL_RATE_LIMIT             Default download rate limit (e.g., 5M)`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfiguration(); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		if err := internal.InitLogger(config); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		internal.LogDebug("Configuration loaded: providers=%d, poll_interval=%v, timeout=%d, quiet=%v",
			len(config.Credentials()), config.PollInterval, config.Timeout, config.Log.Quiet)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		internal.CloseLogger()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession(config, cmd.InOrStdin(), cmd.ErrOrStderr())
		ctx, cancel := signalContext(cmd.Context(), s.con)
		defer cancel()
		return s.menu(ctx)
	},
}

// loadConfiguration loads the config file and environment, then applies
// command line overrides. Validation failures are logged in detail.
func loadConfiguration() error {
	cfg, err := buildConfig()
	if err != nil {
		var ve *internal.ValidationError
		if errors.As(err, &ve) {
			internal.LogValidationError(ve)
		}
		return err
	}
	config = cfg
	return nil
}

func buildConfig() (*internal.Config, error) {
	cfg, err := internal.Load(configPath)
	if err != nil {
		return nil, err
	}

	if debug {
		cfg.Log.Debug = true
		cfg.Log.Level = "debug"
	}
	if quiet {
		cfg.Log.Quiet = true
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}
	if proxyURL != "" {
		cfg.Proxy = proxyURL
	}

	if err := cfg.ValidateConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// menu is the interactive entry point: gather inputs, then download them
// directly or resolve them through a provider first
func (s *session) menu(ctx context.Context) error {
	fmt.Fprintln(s.prompt.out, cyan("onedl "+Version))

	choice, err := s.prompt.choose("Do you want to:", []string{
		"Load URLs from a file",
		"Paste URLs manually",
		"Use a debrid service",
	})
	if err != nil {
		return err
	}

	var links []internal.Link
	switch choice {
	case 0:
		links, err = s.linksFromFile()
	case 1:
		links = toLinks(s.prompt.lines("Paste your URLs one per line (press enter on an empty line to finish):"))
	case 2:
		links, err = s.debridMenu(ctx)
	}
	if err != nil {
		return err
	}
	if len(links) == 0 {
		s.con.warn("Nothing to download.")
		return nil
	}
	return s.downloadLinks(ctx, links, "")
}

func (s *session) linksFromFile() ([]internal.Link, error) {
	files, err := listInputFiles(s.fs, ".")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files found in the current directory")
	}

	idx, err := s.prompt.choose("Select a file to load URLs from:", files)
	if err != nil {
		return nil, err
	}
	inputs, err := resolver.ReadInputList(s.fs, files[idx])
	if err != nil {
		return nil, err
	}
	return toLinks(inputs), nil
}

func (s *session) debridMenu(ctx context.Context) ([]internal.Link, error) {
	all, err := s.loadProviders()
	if err != nil {
		return nil, err
	}

	options := make([]string, 0, len(all)+1)
	for _, p := range all {
		options = append(options, p.Name())
	}
	options = append(options, "Find best option")

	idx, err := s.prompt.choose("Which debrid service do you want to use?", options)
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(s.prompt.out)
	input, err := s.prompt.ask("Paste your magnet, hoster URL, folder URL or .torrent/.nzb path: ")
	if err != nil {
		return nil, err
	}
	if input == "" {
		return nil, fmt.Errorf("no input given")
	}

	if idx == len(all) {
		return s.best(ctx, input, 0, "")
	}
	return s.resolveAll(ctx, all[idx], []string{input}, "")
}

// listInputFiles returns the regular, non-hidden files of dir, sorted
func listInputFiles(fsys afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

func toLinks(urls []string) []internal.Link {
	links := make([]internal.Link, 0, len(urls))
	for _, u := range urls {
		links = append(links, internal.Link{URL: u})
	}
	return links
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./onedl.yaml or $HOME/.config/onedl/onedl.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging with caller information")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to a rotated file instead of stderr")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress and status output")
	rootCmd.PersistentFlags().StringVar(&proxyURL, "proxy", "", "HTTP/SOCKS5 proxy URL")
}

// Execute runs the root command and prints the error, if any
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		console{out: rootCmd.ErrOrStderr()}.fail("Error: %v", err)
	}
	return err
}
