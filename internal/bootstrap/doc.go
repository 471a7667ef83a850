// SPDX-License-Identifier: MPL-2.0

// Package bootstrap implements the ordered provisioning sequence that
// prepares a disposable CI worker: install a conda-style distribution,
// register package channels in priority order, install build and test
// dependencies, build the project under test, and install the
// container-build helper tool.
//
// All machine state the sequence touches — the executable search path,
// the working directory, the environment handed to subprocesses — lives
// on an explicit Context value threaded through every step, so each
// call site shows which ambient state it mutates. Execution is strictly
// sequential and fail-fast: the first failing step aborts the sequence,
// and its subprocess exit code becomes the forgeup exit code. There is
// no retry and no rollback; the worker is assumed disposable and
// single-tenant.
package bootstrap
