package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"onedl/resolver"
)

var (
	resolveProvider  string
	resolveSelection string
	resolveDownload  bool
	resolveOutput    string
	resolveInputFile string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [flags] INPUT...",
	Short: "Resolve magnets, hoster links, folders or container files to direct links",
	Long: `Resolve each input with one provider and print the direct links, one per
line, on stdout. Progress and prompts go to stderr.

INPUT is a magnet URI, a hoster URL, a cloud folder URL, or a path to a
.torrent or .nzb file.

Examples:
  onedl resolve "magnet:?xt=urn:btih:..."
  onedl resolve -p alldebrid -s 1,3-5 "magnet:?xt=urn:btih:..."
  onedl resolve -p premiumize ./show.nzb --download -o ~/Downloads
  onedl resolve -f links.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession(config, cmd.InOrStdin(), cmd.ErrOrStderr())

		inputs := args
		if resolveInputFile != "" {
			fromFile, err := resolver.ReadInputList(s.fs, resolveInputFile)
			if err != nil {
				return err
			}
			inputs = append(inputs, fromFile...)
		}
		if len(inputs) == 0 {
			return fmt.Errorf("no inputs given")
		}

		p, err := s.provider(resolveProvider)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext(cmd.Context(), s.con)
		defer cancel()

		links, err := s.resolveAll(ctx, p, inputs, resolveSelection)
		if err != nil {
			return err
		}
		if !resolveDownload {
			printLinks(cmd.OutOrStdout(), links)
			return nil
		}
		return s.downloadLinks(ctx, links, resolveOutput)
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringVarP(&resolveProvider, "provider", "p", "", "Provider to use (default: first in provider_order)")
	resolveCmd.Flags().StringVarP(&resolveSelection, "select", "s", "", "File selection such as 1,3-5 or all (default: ask)")
	resolveCmd.Flags().BoolVar(&resolveDownload, "download", false, "Download the resolved links")
	resolveCmd.Flags().StringVarP(&resolveOutput, "output", "o", "", "Download directory (default: output_dir)")
	resolveCmd.Flags().StringVarP(&resolveInputFile, "file", "f", "", "Read inputs from a file, one per line")
}
