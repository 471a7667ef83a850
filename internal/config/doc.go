// SPDX-License-Identifier: MPL-2.0

// Package config loads and validates the forgeup configuration.
//
// Configuration values layer in precedence order: built-in defaults,
// then a CUE config file (from the platform config dir or the current
// directory), then whatever the CLI layer overrides per-flag. Config
// files are validated against an embedded CUE schema before use, and
// cross-field constraints the schema cannot express are checked on the
// decoded Config value.
package config
