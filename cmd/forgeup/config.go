// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"forgeup-cli/internal/config"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage forgeup configuration",
	Long: `Manage forgeup configuration.

Configuration is stored in:
  - Linux: ~/.config/forgeup/config.cue
  - macOS: ~/Library/Application Support/forgeup/config.cue
  - Windows: %APPDATA%\forgeup\config.cue`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd.OutOrStdout())
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfigPath()
		},
	})
}

// showConfig renders the fully resolved configuration (defaults merged
// with any config file and flags) as TOML.
func showConfig(out io.Writer) error {
	cfg, err := loadRootConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+err.Error())
		cfg = config.DefaultConfig()
	}

	rendered, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("rendering config: %w", err)
	}

	fmt.Fprintln(out, TitleStyle.Render("Resolved configuration"))
	fmt.Fprintln(out)
	_, err = out.Write(rendered)
	return err
}

// showConfigPath prints where forgeup looks for its config file.
func showConfigPath() error {
	if cfgFile != "" {
		fmt.Println(cfgFile)
		return nil
	}

	dir, err := config.ConfigDir()
	if err != nil {
		return fmt.Errorf("resolving config directory: %w", err)
	}
	fmt.Println(filepath.Join(dir, "config.cue"))
	return nil
}
