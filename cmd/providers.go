package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"onedl/internal"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List providers and whether a token is configured",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listProviders(cmd.OutOrStdout(), config)
	},
}

// listProviders prints every known provider in ranking order with its
// masked token
func listProviders(out io.Writer, cfg *internal.Config) error {
	configured := make(map[string]bool)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tTOKEN\tORDER")

	for i, cred := range cfg.Credentials() {
		configured[cred.Name] = true
		fmt.Fprintf(w, "%s\t%s\t%d\n", cred.Name, internal.MaskToken(cred.Token), i+1)
	}
	for _, name := range internal.KnownProviders {
		if !configured[name] {
			fmt.Fprintf(w, "%s\t%s\t-\n", name, "(not configured)")
		}
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
