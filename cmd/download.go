package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"onedl/internal"
	"onedl/resolver"
	"onedl/utils"
)

var (
	downloadFile   string
	downloadOutput string
	downloadRate   string
)

var downloadCmd = &cobra.Command{
	Use:   "download [flags] URL...",
	Short: "Download direct links",
	Long: `Download already resolved direct links one after another. A failed
download is reported and the next one starts; nothing is retried.

Examples:
  onedl download https://cdn.example.com/file.mkv
  onedl download -f links.txt -o ~/Downloads -r 5M`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession(config, cmd.InOrStdin(), cmd.ErrOrStderr())

		urls := args
		if downloadFile != "" {
			fromFile, err := resolver.ReadInputList(s.fs, downloadFile)
			if err != nil {
				return err
			}
			urls = append(urls, fromFile...)
		}
		if len(urls) == 0 {
			return fmt.Errorf("no URLs given")
		}

		if downloadRate != "" {
			if _, err := utils.ParseRateLimit(downloadRate); err != nil {
				return err
			}
			s.cfg.RateLimit = downloadRate
		}

		links := make([]internal.Link, 0, len(urls))
		for _, u := range urls {
			if !utils.IsHTTPURL(u) {
				return fmt.Errorf("not a direct http(s) link: %s", u)
			}
			links = append(links, internal.Link{URL: u})
		}

		ctx, cancel := signalContext(cmd.Context(), s.con)
		defer cancel()
		return s.downloadLinks(ctx, links, downloadOutput)
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringVarP(&downloadFile, "file", "f", "", "Read URLs from a file, one per line")
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "Download directory (default: output_dir)")
	downloadCmd.Flags().StringVarP(&downloadRate, "limit-rate", "r", "", "Bandwidth limit (e.g., 5M for 5MB/s)")
}
