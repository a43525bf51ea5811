package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"onedl/internal"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [PATH]",
	Short: "Write a configuration template",
	Long: `Write a YAML configuration file with default values. PATH defaults to
$HOME/.config/onedl/onedl.yaml. An existing file is never overwritten.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("cannot find home directory: %w", err)
			}
			path = filepath.Join(home, ".config", "onedl", "onedl.yaml")
		}

		if err := internal.WriteDefaultConfig(afero.NewOsFs(), path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with tokens masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showConfig(cmd.OutOrStdout(), config)
	},
}

func showConfig(out io.Writer, cfg *internal.Config) error {
	masked := *cfg
	masked.Providers = internal.ProvidersConfig{
		RealDebrid: internal.MaskToken(cfg.Providers.RealDebrid),
		AllDebrid:  internal.MaskToken(cfg.Providers.AllDebrid),
		Premiumize: internal.MaskToken(cfg.Providers.Premiumize),
		TorBox:     internal.MaskToken(cfg.Providers.TorBox),
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(&masked); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
