// SPDX-License-Identifier: MPL-2.0

package bootstrap

import (
	"context"
	"fmt"

	"forgeup-cli/internal/config"
)

type (
	// Step is one unit of the provisioning sequence. Run receives the
	// cancellation context and the shared provisioning Context.
	Step struct {
		// Name identifies the step in logs and StepError messages.
		Name string

		// Run performs the step's side effects. A non-nil error aborts
		// the whole sequence.
		Run func(ctx context.Context, pc *Context) error
	}

	// StepError reports which step aborted the bootstrap. It unwraps to
	// the step's underlying error, so execrun.CodeFromError still finds
	// the subprocess exit code through it.
	StepError struct {
		Step string
		Err  error
	}

	// Bootstrapper runs the provisioning sequence over one Context.
	Bootstrapper struct {
		pc *Context
	}
)

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

// Unwrap returns the step's underlying error.
func (e *StepError) Unwrap() error { return e.Err }

// New creates a Bootstrapper for cfg. Options customize the
// provisioning context (workdir, runner, fetcher, OS tag).
func New(cfg *config.Config, opts ...ContextOption) (*Bootstrapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pc, err := NewContext(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Bootstrapper{pc: pc}, nil
}

// Context exposes the provisioning context, primarily for tests and
// for the CLI layer's summary output.
func (b *Bootstrapper) Context() *Context { return b.pc }

// Steps returns the provisioning sequence in execution order. The
// order is fixed: channel priority, search-path visibility, and the
// local-channel override all depend on it.
func (b *Bootstrapper) Steps() []Step {
	return []Step{
		{Name: "detect-platform", Run: stepDetectPlatform},
		{Name: "fetch-installer", Run: stepFetchInstaller},
		{Name: "run-installer", Run: stepRunInstaller},
		{Name: "extend-path", Run: stepExtendPath},
		{Name: "register-channels", Run: stepRegisterChannels},
		{Name: "install-deps", Run: stepInstallDeps},
		{Name: "build-project", Run: stepBuildProject},
		{Name: "install-test-deps", Run: stepInstallTestDeps},
		{Name: "register-local-channel", Run: stepRegisterLocalChannel},
		{Name: "install-tool", Run: stepInstallTool},
	}
}

// Run executes every step in order, stopping at the first failure.
// After a fully successful sequence it writes the provisioning receipt
// when one is configured. The returned error is a *StepError wrapping
// the failing step's error.
func (b *Bootstrapper) Run(ctx context.Context) error {
	pc := b.pc

	for _, step := range b.Steps() {
		if err := ctx.Err(); err != nil {
			return &StepError{Step: step.Name, Err: err}
		}

		logger := pc.Logger.With("step", step.Name)
		logger.Info("starting")
		if err := step.Run(ctx, pc); err != nil {
			logger.Error("failed", "err", err)
			return &StepError{Step: step.Name, Err: err}
		}
		logger.Debug("done")
	}

	if pc.Config.ReceiptPath != "" {
		path := pc.resolvePath(pc.Config.ReceiptPath)
		if err := WriteReceipt(path, NewReceipt(pc)); err != nil {
			return &StepError{Step: "write-receipt", Err: err}
		}
		pc.Logger.Info("receipt written", "path", path)
	}

	pc.Logger.Info("worker provisioned",
		"platform", pc.Platform,
		"prefix", pc.Config.Installer.Prefix,
		"channels", len(pc.RegisteredChannels))
	return nil
}
