// SPDX-License-Identifier: MPL-2.0

package execrun

import (
	"context"
	"slices"
)

// Recorder is a Runner fake for tests. It records every invocation's
// argv in order and succeeds by default; Stub, when set, decides the
// outcome per invocation. It lives in the production package (not a
// _test file) so the bootstrap package's tests can share it.
type Recorder struct {
	// Calls holds the argv of each Run invocation, in call order.
	Calls [][]string

	// Stub, when non-nil, is consulted for each invocation's result.
	// A nil return means success.
	Stub func(cmd Command) error
}

// Run records cmd.Argv and returns the stubbed outcome.
func (r *Recorder) Run(_ context.Context, cmd Command) error {
	r.Calls = append(r.Calls, slices.Clone(cmd.Argv))
	if r.Stub != nil {
		return r.Stub(cmd)
	}
	return nil
}

// ArgvAt returns the argv of the i-th recorded call, or nil if out of range.
func (r *Recorder) ArgvAt(i int) []string {
	if i < 0 || i >= len(r.Calls) {
		return nil
	}
	return r.Calls[i]
}

// FailOn returns a Stub that fails with the given exit code whenever
// the invoked program (argv[0]) matches name, and succeeds otherwise.
func FailOn(name string, code ExitCode) func(cmd Command) error {
	return func(cmd Command) error {
		if len(cmd.Argv) > 0 && cmd.Argv[0] == name {
			return &CommandError{Argv: cmd.Argv, Code: code}
		}
		return nil
	}
}
