package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"onedl/internal"
	"onedl/providers"
	"onedl/resolver"
)

var (
	bestPick      int
	bestDownload  bool
	bestOutput    string
	bestSelection string
)

var bestCmd = &cobra.Command{
	Use:   "best [flags] INPUT",
	Short: "Rank providers by cache availability, then resolve with the chosen one",
	Long: `Ask every configured provider whether INPUT is already cached, list them
best first, and resolve with the provider you pick.

Probing never leaves a download behind on a provider.

Examples:
  onedl best "magnet:?xt=urn:btih:..."
  onedl best --pick 1 --download https://mega.nz/folder/abc#key`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession(config, cmd.InOrStdin(), cmd.ErrOrStderr())

		ctx, cancel := signalContext(cmd.Context(), s.con)
		defer cancel()

		links, err := s.best(ctx, args[0], bestPick, bestSelection)
		if err != nil {
			return err
		}
		if !bestDownload {
			printLinks(cmd.OutOrStdout(), links)
			return nil
		}
		return s.downloadLinks(ctx, links, bestOutput)
	},
}

// rank probes every configured provider for input
func (s *session) rank(ctx context.Context, input string) (resolver.Ranking, error) {
	all, err := s.loadProviders()
	if err != nil {
		return resolver.Ranking{}, err
	}

	opts := []resolver.RankerOption{
		resolver.WithConcurrency(s.cfg.ProbeConcurrency),
		resolver.WithRankerFs(s.fs),
	}
	if lister := providers.FolderLister(all); lister != nil {
		opts = append(opts, resolver.WithLister(lister))
	}

	res := resolver.Classify(input)
	s.con.info("Checking availability of %s across %d providers...", res.Label(), len(all))
	return resolver.NewRanker(all, opts...).Rank(ctx, res)
}

// best ranks, lets the user pick (pick is 1-based, 0 asks), and resolves
func (s *session) best(ctx context.Context, input string, pick int, selection string) ([]internal.Link, error) {
	ranking, err := s.rank(ctx, input)
	if err != nil {
		return nil, err
	}
	if _, ok := ranking.Best(); !ok {
		return nil, fmt.Errorf("no configured provider supports this input")
	}

	index := pick - 1
	if pick <= 0 {
		options := make([]string, len(ranking.Results))
		for i, r := range ranking.Results {
			options[i] = fmt.Sprintf("%s (%s)", r.Provider.Name(), probeLabel(r.Result))
		}
		index, err = s.prompt.choose("Available options:", options)
		if err != nil {
			return nil, err
		}
	}

	p, res, ok := ranking.Pick(index)
	if !ok {
		return nil, fmt.Errorf("%w: %d", errInvalidChoice, pick)
	}

	s.con.info("Resolving with %s", p.Name())
	links, err := s.orchestrator(p, selection).Resolve(ctx, res)
	if err != nil {
		logResolveError(err)
		return nil, err
	}
	return links, nil
}

func init() {
	rootCmd.AddCommand(bestCmd)

	bestCmd.Flags().IntVar(&bestPick, "pick", 0, "Use the N-th ranked provider without asking")
	bestCmd.Flags().BoolVar(&bestDownload, "download", false, "Download the resolved links")
	bestCmd.Flags().StringVarP(&bestOutput, "output", "o", "", "Download directory (default: output_dir)")
	bestCmd.Flags().StringVarP(&bestSelection, "select", "s", "", "File selection such as 1,3-5 or all (default: ask)")
}
