// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for forgeup.
//
// This package implements the Cobra command hierarchy for the forgeup CLI:
// the root command, the `up` provisioning command, and the configuration
// inspection commands.
package cmd
