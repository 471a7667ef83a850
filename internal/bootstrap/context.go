// SPDX-License-Identifier: MPL-2.0

package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"forgeup-cli/internal/config"
	"forgeup-cli/internal/execrun"
	"forgeup-cli/internal/fetch"
	"forgeup-cli/internal/platform"

	"github.com/charmbracelet/log"
)

type (
	// Context is the provisioning context threaded through every step.
	// It owns the mutable machine-facing state a shell script would keep
	// in ambient process state: the extended search path, the working
	// directory, and the environment subprocesses inherit. Steps also
	// publish results here (detected platform, installer path, registered
	// channels) for later steps and the final receipt.
	Context struct {
		Config *config.Config

		// WorkDir is the directory manifests are resolved against and
		// subprocesses run from.
		WorkDir string

		// OSTag is the raw OS tag the platform step consumes.
		OSTag string

		// Platform, InstallerURL and InstallerPath are set by the
		// platform-detection and installer-fetch steps.
		Platform      platform.Platform
		InstallerURL  string
		InstallerPath string

		// RegisteredChannels accumulates channel names in registration
		// order, local override included.
		RegisteredChannels []string

		// ToolPath is set once the helper binary is installed.
		ToolPath string

		Runner  execrun.Runner
		Fetcher *fetch.Fetcher
		Logger  *log.Logger

		Stdout io.Writer
		Stderr io.Writer

		// owner is the account that receives ownership of the install
		// prefix after an elevated installer run.
		owner string

		// pathPrepends holds search-path extensions, most recent first.
		pathPrepends []string

		// baseEnv is the environment subprocesses start from; PATH inside
		// it is rewritten with pathPrepends on every Environ call.
		baseEnv []string
	}

	// ContextOption configures a Context during construction.
	ContextOption func(*Context)
)

// WithRunner overrides the command runner (tests use execrun.Recorder).
func WithRunner(r execrun.Runner) ContextOption {
	return func(c *Context) { c.Runner = r }
}

// WithFetcher overrides the payload fetcher.
func WithFetcher(f *fetch.Fetcher) ContextOption {
	return func(c *Context) { c.Fetcher = f }
}

// WithLogger overrides the step logger.
func WithLogger(l *log.Logger) ContextOption {
	return func(c *Context) { c.Logger = l }
}

// WithWorkDir overrides the working directory (default: process cwd).
func WithWorkDir(dir string) ContextOption {
	return func(c *Context) { c.WorkDir = dir }
}

// WithOSTag overrides the OS tag instead of reading the configured
// environment variable.
func WithOSTag(tag string) ContextOption {
	return func(c *Context) { c.OSTag = tag }
}

// WithEnviron replaces the base subprocess environment (default: the
// forgeup process's own environment).
func WithEnviron(env []string) ContextOption {
	return func(c *Context) { c.baseEnv = slices.Clone(env) }
}

// WithOwner overrides the account that receives prefix ownership.
func WithOwner(name string) ContextOption {
	return func(c *Context) { c.owner = name }
}

// WithOutput redirects subprocess stdout and stderr.
func WithOutput(stdout, stderr io.Writer) ContextOption {
	return func(c *Context) {
		c.Stdout = stdout
		c.Stderr = stderr
	}
}

// NewContext builds a provisioning context with production defaults:
// the host exec runner, a real fetcher, the process environment, and
// the OS tag read from the configured environment variable (falling
// back to the Go runtime's OS name when the variable is unset, so
// local runs work without exporting OSTYPE).
func NewContext(cfg *config.Config, opts ...ContextOption) (*Context, error) {
	c := &Context{
		Config: cfg,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		c.WorkDir = wd
	}
	if c.OSTag == "" {
		c.OSTag = os.Getenv(cfg.OSTagVar)
	}
	if c.OSTag == "" {
		c.OSTag = osRuntimeTag()
	}
	if c.Runner == nil {
		c.Runner = execrun.NewExecRunner()
	}
	if c.Fetcher == nil {
		c.Fetcher = fetch.NewFetcher()
	}
	if c.Logger == nil {
		c.Logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "forgeup"})
	}
	if c.baseEnv == nil {
		c.baseEnv = os.Environ()
	}
	if c.owner == "" {
		c.owner = currentUser()
	}

	return c, nil
}

// PrependPath registers dir as the highest-priority search path entry
// for every subsequent subprocess. The forgeup process's own PATH is
// left untouched; the extension lives only in the Context.
func (c *Context) PrependPath(dir string) {
	c.pathPrepends = append([]string{dir}, c.pathPrepends...)
}

// SearchPath returns the PATH value subprocesses will see: the
// prepended directories, most recent first, ahead of the base PATH.
func (c *Context) SearchPath() string {
	base := ""
	for _, kv := range c.baseEnv {
		if v, ok := strings.CutPrefix(kv, "PATH="); ok {
			base = v
			break
		}
	}

	parts := slices.Clone(c.pathPrepends)
	if base != "" {
		parts = append(parts, base)
	}
	return strings.Join(parts, string(os.PathListSeparator))
}

// Environ returns the full subprocess environment: the base environment
// with its PATH entry replaced by SearchPath.
func (c *Context) Environ() []string {
	env := make([]string, 0, len(c.baseEnv)+1)
	replaced := false
	for _, kv := range c.baseEnv {
		if strings.HasPrefix(kv, "PATH=") {
			env = append(env, "PATH="+c.SearchPath())
			replaced = true
			continue
		}
		env = append(env, kv)
	}
	if !replaced {
		env = append(env, "PATH="+c.SearchPath())
	}
	return env
}

// run executes argv from the workdir with the Context's environment.
func (c *Context) run(ctx context.Context, argv ...string) error {
	return c.Runner.Run(ctx, execrun.Command{
		Argv:   argv,
		Dir:    c.WorkDir,
		Env:    c.Environ(),
		Stdout: c.Stdout,
		Stderr: c.Stderr,
	})
}

// runElevated executes argv under sudo when elevation is configured,
// and directly otherwise.
func (c *Context) runElevated(ctx context.Context, argv ...string) error {
	if c.Config.Elevate {
		argv = append([]string{"sudo"}, argv...)
	}
	return c.run(ctx, argv...)
}

// resolvePath resolves a config-relative path against the workdir.
func (c *Context) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.WorkDir, p)
}

// currentUser resolves the invoking account for the post-install chown,
// preferring os/user over $USER but accepting either.
func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

// osRuntimeTag maps the Go runtime OS name to an OS tag accepted by
// platform.Detect. Used only when the configured tag variable is unset.
func osRuntimeTag() string {
	return strings.ToLower(strings.TrimSpace(osName()))
}

// osName is a test seam for runtime.GOOS.
//
//nolint:gochecknoglobals // Test seam requires a package-level variable.
var osName = func() string {
	return runtime.GOOS
}
