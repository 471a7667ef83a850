// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// InstallerShellSystem runs the downloaded installer with the host's
	// bash through the command runner (optionally under sudo).
	InstallerShellSystem InstallerShell = "system"

	// InstallerShellEmbedded runs the installer in-process with the
	// embedded mvdan/sh interpreter. Only usable for user-writable
	// prefixes, since the embedded interpreter cannot elevate privileges.
	InstallerShellEmbedded InstallerShell = "embedded"
)

var (
	// ErrInvalidInstallerShell is returned when an InstallerShell value is not recognized.
	ErrInvalidInstallerShell = errors.New("invalid installer shell")
	// ErrInvalidURLTemplate is the sentinel error wrapped by InvalidURLTemplateError.
	ErrInvalidURLTemplate = errors.New("invalid URL template")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// InstallerShell selects how the distribution installer is executed.
	InstallerShell string

	// InvalidInstallerShellError is returned when an InstallerShell value
	// is not recognized. It wraps ErrInvalidInstallerShell for errors.Is().
	InvalidInstallerShellError struct {
		Value InstallerShell
	}

	// InvalidURLTemplateError is returned when a URL template does not
	// contain exactly one %s verb. It wraps ErrInvalidURLTemplate.
	InvalidURLTemplateError struct {
		Field string
		Value string
	}

	// InvalidConfigError aggregates every validation failure found in a
	// Config. It wraps ErrInvalidConfig for errors.Is() compatibility.
	InvalidConfigError struct {
		Errors []error
	}

	// InstallerConfig describes the distribution installer: where to
	// fetch it, where to install it, and how to execute it.
	InstallerConfig struct {
		// URLTemplate is the installer download URL with a single %s verb
		// for the platform token.
		URLTemplate string `mapstructure:"url_template" toml:"url_template"`
		// Prefix is the absolute install path handed to the installer.
		Prefix string `mapstructure:"prefix" toml:"prefix"`
		// Shell selects system bash or the embedded interpreter.
		Shell InstallerShell `mapstructure:"shell" toml:"shell"`
	}

	// ChannelsConfig locates the ordered channel manifest and the local
	// build-output channel registered last (highest priority).
	ChannelsConfig struct {
		// File is the channel manifest path, resolved against the workdir.
		File string `mapstructure:"file" toml:"file"`
		// LocalDir is the local channel directory; empty means
		// <installer.prefix>/conda-bld.
		LocalDir string `mapstructure:"local_dir" toml:"local_dir"`
	}

	// BuildConfig describes dependency manifests and the project's own
	// build entry point.
	BuildConfig struct {
		// CondaRequirements is the manifest installed via `conda install --file`.
		CondaRequirements string `mapstructure:"conda_requirements" toml:"conda_requirements"`
		// PipRequirements are manifests installed via `pip install -r`, in order.
		PipRequirements []string `mapstructure:"pip_requirements" toml:"pip_requirements"`
		// Command is the project build/install argv, run from the workdir.
		Command []string `mapstructure:"command" toml:"command"`
	}

	// ToolConfig describes the auxiliary container-build helper binary.
	ToolConfig struct {
		// Name is the binary name installed into Dir.
		Name string `mapstructure:"name" toml:"name"`
		// Version is the pinned release version interpolated into URLTemplate.
		Version string `mapstructure:"version" toml:"version"`
		// URLTemplate is the release download URL with a single %s verb
		// for the version.
		URLTemplate string `mapstructure:"url_template" toml:"url_template"`
		// Dir is the directory the binary is installed into.
		Dir string `mapstructure:"dir" toml:"dir"`
		// SHA256 optionally pins the binary's checksum; empty skips verification.
		SHA256 string `mapstructure:"sha256" toml:"sha256"`
	}

	// UIConfig holds terminal output preferences.
	UIConfig struct {
		// Verbose enables debug-level step logging.
		Verbose bool `mapstructure:"verbose" toml:"verbose"`
	}

	// Config is the complete forgeup configuration.
	Config struct {
		// OSTagVar names the environment variable carrying the worker OS
		// tag (e.g. OSTYPE exporting "linux-gnu").
		OSTagVar string `mapstructure:"os_tag_var" toml:"os_tag_var"`
		// Elevate wraps machine-mutating commands (installer execution,
		// ownership fixes, tool relocation) in sudo.
		Elevate bool `mapstructure:"elevate" toml:"elevate"`
		// ReceiptPath, when non-empty, is where the provisioning receipt
		// is written after a successful bootstrap.
		ReceiptPath string `mapstructure:"receipt_path" toml:"receipt_path"`

		Installer InstallerConfig `mapstructure:"installer" toml:"installer"`
		Channels  ChannelsConfig  `mapstructure:"channels" toml:"channels"`
		Build     BuildConfig     `mapstructure:"build" toml:"build"`
		Tool      ToolConfig      `mapstructure:"tool" toml:"tool"`
		UI        UIConfig        `mapstructure:"ui" toml:"ui"`
	}
)

// Error implements the error interface.
func (e *InvalidInstallerShellError) Error() string {
	return fmt.Sprintf("invalid installer shell %q (must be %q or %q)",
		e.Value, InstallerShellSystem, InstallerShellEmbedded)
}

// Unwrap returns ErrInvalidInstallerShell so callers can use errors.Is.
func (e *InvalidInstallerShellError) Unwrap() error { return ErrInvalidInstallerShell }

// Error implements the error interface.
func (e *InvalidURLTemplateError) Error() string {
	return fmt.Sprintf("invalid %s %q: must contain exactly one %%s verb", e.Field, e.Value)
}

// Unwrap returns ErrInvalidURLTemplate so callers can use errors.Is.
func (e *InvalidURLTemplateError) Unwrap() error { return ErrInvalidURLTemplate }

// Error joins all aggregated validation failures into one message.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// Unwrap returns ErrInvalidConfig so callers can use errors.Is.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// IsValid returns whether the InstallerShell is a recognized value,
// and a list of validation errors if it is not.
func (s InstallerShell) IsValid() (bool, []error) {
	switch s {
	case InstallerShellSystem, InstallerShellEmbedded:
		return true, nil
	}
	return false, []error{&InvalidInstallerShellError{Value: s}}
}

// Validate checks constraints the CUE schema cannot express: template
// verb counts and the elevate/embedded-shell conflict. It returns an
// *InvalidConfigError aggregating every failure.
func (c *Config) Validate() error {
	var errs []error

	if ok, shellErrs := c.Installer.Shell.IsValid(); !ok {
		errs = append(errs, shellErrs...)
	}
	if err := validateURLTemplate("installer.url_template", c.Installer.URLTemplate); err != nil {
		errs = append(errs, err)
	}
	if err := validateURLTemplate("tool.url_template", c.Tool.URLTemplate); err != nil {
		errs = append(errs, err)
	}

	// The embedded interpreter runs inside the forgeup process and
	// cannot acquire privileges, so it only pairs with elevate=false.
	if c.Installer.Shell == InstallerShellEmbedded && c.Elevate {
		errs = append(errs, fmt.Errorf("installer.shell %q requires elevate=false", InstallerShellEmbedded))
	}

	if len(errs) > 0 {
		return &InvalidConfigError{Errors: errs}
	}
	return nil
}

// LocalChannelDir resolves the local channel directory, defaulting to
// the conda-bld directory under the install prefix.
func (c *Config) LocalChannelDir() string {
	if c.Channels.LocalDir != "" {
		return c.Channels.LocalDir
	}
	return c.Installer.Prefix + "/conda-bld"
}

// validateURLTemplate requires exactly one %s verb and no other verbs.
func validateURLTemplate(field, template string) error {
	rest := template
	count := 0
	for {
		i := strings.Index(rest, "%")
		if i < 0 {
			break
		}
		if strings.HasPrefix(rest[i:], "%s") {
			count++
			rest = rest[i+2:]
			continue
		}
		// Any other verb (or a trailing bare %) is malformed.
		return &InvalidURLTemplateError{Field: field, Value: template}
	}
	if count != 1 {
		return &InvalidURLTemplateError{Field: field, Value: template}
	}
	return nil
}
