// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"forgeup-cli/internal/bootstrap"
	"forgeup-cli/internal/config"
	"forgeup-cli/internal/execrun"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// upFlags holds the `up` command's flag values. Collected in a struct so
// the override logic can be tested without a Cobra invocation.
type upFlags struct {
	workDir      string
	osTag        string
	prefix       string
	receiptPath  string
	channelsFile string
	noElevate    bool
	dryRun       bool
}

//nolint:gochecknoglobals // Cobra flag values are bound at init time.
var upOpts upFlags

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Provision the worker: installer, channels, dependencies, build, tooling",
	Long: `Provision the worker in a fixed step order:

  1. detect-platform          resolve the worker platform from its OS tag
  2. fetch-installer          download the distribution installer
  3. run-installer            execute the installer into the prefix
  4. extend-path              put <prefix>/bin ahead of the search path
  5. register-channels        register manifest channels in priority order
  6. install-deps             conda install the project requirements
  7. build-project            run the project's build command
  8. install-test-deps        pip install the test/docs requirements
  9. register-local-channel   register the local build output channel
 10. install-tool             install the container-build helper binary

The first failing step aborts the run and forgeup exits with the failing
subprocess's exit code.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUp(cmd, upOpts)
	},
}

func init() {
	upCmd.Flags().StringVarP(&upOpts.workDir, "workdir", "w", "", "project directory manifests are resolved against (default: current directory)")
	upCmd.Flags().StringVar(&upOpts.osTag, "os-tag", "", "override the OS tag instead of reading the configured environment variable")
	upCmd.Flags().StringVar(&upOpts.prefix, "prefix", "", "override the install prefix")
	upCmd.Flags().StringVar(&upOpts.receiptPath, "receipt", "", "write a provisioning receipt to this path on success")
	upCmd.Flags().StringVar(&upOpts.channelsFile, "channels-file", "", "override the channel manifest path")
	upCmd.Flags().BoolVar(&upOpts.noElevate, "no-elevate", false, "run machine-mutating commands without sudo")
	upCmd.Flags().BoolVar(&upOpts.dryRun, "dry-run", false, "print the step plan without executing it")
}

// runUp loads configuration, applies flag overrides, and runs the
// provisioning sequence. Provisioning failures surface as an ExitError
// carrying the failing subprocess's exit code.
func runUp(cmd *cobra.Command, flags upFlags) error {
	cfg, err := loadRootConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyUpOverrides(cfg, flags)

	b, err := bootstrap.New(cfg, upContextOptions(cfg, flags)...)
	if err != nil {
		return err
	}

	if flags.dryRun {
		printStepPlan(b)
		return nil
	}

	if err := b.Run(cmd.Context()); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("provisioning failed: ")+err.Error())
		return &ExitError{Code: execrun.CodeFromError(err), Err: err}
	}

	fmt.Println(SuccessStyle.Render("worker provisioned") +
		SubtitleStyle.Render(" (prefix: "+cfg.Installer.Prefix+")"))
	return nil
}

// applyUpOverrides copies flag values over the loaded configuration.
// Empty flags leave the config untouched.
func applyUpOverrides(cfg *config.Config, flags upFlags) {
	if flags.prefix != "" {
		cfg.Installer.Prefix = flags.prefix
	}
	if flags.receiptPath != "" {
		cfg.ReceiptPath = flags.receiptPath
	}
	if flags.channelsFile != "" {
		cfg.Channels.File = flags.channelsFile
	}
	if flags.noElevate {
		cfg.Elevate = false
	}
}

// upContextOptions translates flags and config into provisioning context
// options, including a step logger at the configured verbosity.
func upContextOptions(cfg *config.Config, flags upFlags) []bootstrap.ContextOption {
	logOpts := log.Options{Prefix: "forgeup"}
	if cfg.UI.Verbose {
		logOpts.Level = log.DebugLevel
	}

	opts := []bootstrap.ContextOption{
		bootstrap.WithLogger(log.NewWithOptions(os.Stderr, logOpts)),
	}
	if flags.workDir != "" {
		opts = append(opts, bootstrap.WithWorkDir(flags.workDir))
	}
	if flags.osTag != "" {
		opts = append(opts, bootstrap.WithOSTag(flags.osTag))
	}
	return opts
}

// printStepPlan lists the step order without running anything.
func printStepPlan(b *bootstrap.Bootstrapper) {
	fmt.Println(TitleStyle.Render("Provisioning plan"))
	for i, step := range b.Steps() {
		fmt.Printf("  %2d. %s\n", i+1, CmdStyle.Render(step.Name))
	}
}
