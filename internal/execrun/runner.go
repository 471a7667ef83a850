// SPDX-License-Identifier: MPL-2.0

// Package execrun runs the external commands a bootstrap is made of.
//
// Every provisioning step ultimately reduces to an argv executed against
// the ambient machine. The Runner interface is the single seam between
// the bootstrap sequence and the machine: production code uses ExecRunner
// (os/exec), tests use Recorder to assert on invocation order without
// touching the host.
package execrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

type (
	// Command describes one external process invocation. Argv[0] is the
	// program; the remaining elements are its arguments. Env, when
	// non-nil, fully replaces the child's environment — callers that
	// extend the search path do so by passing a rebuilt environment
	// rather than mutating the forgeup process's own.
	Command struct {
		Argv   []string
		Dir    string
		Env    []string
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}

	// CommandError reports a command that started but exited non-zero,
	// or failed to start at all. Code carries the subprocess exit code
	// so the CLI boundary can propagate it as the forgeup exit code.
	CommandError struct {
		Argv []string
		Code ExitCode
		Err  error
	}

	// Runner executes commands. Implementations must be safe for
	// sequential reuse; forgeup never runs commands concurrently.
	Runner interface {
		// Run executes cmd and blocks until it completes. A nil return
		// means the command exited zero. Non-zero exits and start
		// failures are reported as *CommandError.
		Run(ctx context.Context, cmd Command) error
	}

	// ExecRunner executes commands on the host via os/exec.
	ExecRunner struct{}
)

// startFailureCode is the exit code reported when a command could not
// be started (program missing, permission denied). Matches the shell
// convention for "command not found or not executable".
const startFailureCode ExitCode = 127

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command %q failed: %v", strings.Join(e.Argv, " "), e.Err)
	}
	return fmt.Sprintf("command %q exited with code %s", strings.Join(e.Argv, " "), e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *CommandError) Unwrap() error { return e.Err }

// CodeFromError extracts the subprocess exit code from an error chain.
// Errors that do not carry a *CommandError report code 1, so every
// failure path still maps to a non-zero process exit.
func CodeFromError(err error) ExitCode {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 1
}

// NewExecRunner creates a Runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes cmd on the host and maps its outcome to a *CommandError
// on failure. The subprocess is bound to ctx and killed on cancellation.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) error {
	if len(cmd.Argv) == 0 {
		return &CommandError{Code: startFailureCode, Err: errors.New("empty argv")}
	}

	c := exec.CommandContext(ctx, cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env
	c.Stdin = cmd.Stdin
	c.Stdout = cmd.Stdout
	c.Stderr = cmd.Stderr

	err := c.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &CommandError{Argv: cmd.Argv, Code: ExitCode(exitErr.ExitCode())}
	}
	return &CommandError{Argv: cmd.Argv, Code: startFailureCode, Err: err}
}
