// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for forgeup.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"forgeup-cli/internal/config"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables verbose output
	verbose bool
	// cfgFile allows specifying a custom config file
	cfgFile string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "forgeup",
		Short: "Provision a CI worker for conda-based package builds",
		Long: TitleStyle.Render("forgeup") + SubtitleStyle.Render(" - CI worker provisioning for conda-based package builds") + `

forgeup turns a bare CI worker into a ready build environment: it
detects the worker platform from its OS tag, fetches and runs the
conda distribution installer, registers package channels in priority
order, installs the project's conda and pip dependencies, builds the
project, and installs the container-build helper binary.

Every step runs in a fixed order and the first failure aborts the
run, propagating the failing subprocess's exit code.

` + SubtitleStyle.Render("Examples:") + `
  forgeup up                       Provision using channels.txt and requirements.txt
  forgeup up --workdir /srv/proj   Provision against another project checkout
  forgeup up --os-tag linux-gnu    Override the detected OS tag
  forgeup config show              Show the resolved configuration`,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/forgeup/config.cue)")

	// Add subcommands
	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(configCmd)
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// Use fang.Execute for enhanced Cobra styling
	// Pass version via fang.WithVersion() since fang overrides rootCmd.Version
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(1)
	}
}

// loadRootConfig resolves the effective configuration: the --config file
// when given, the standard config locations otherwise. The --verbose flag
// wins over the config file's ui.verbose.
func loadRootConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadFile(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if verbose {
		cfg.UI.Verbose = true
	}
	return cfg, nil
}
