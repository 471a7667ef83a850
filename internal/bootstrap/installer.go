// SPDX-License-Identifier: MPL-2.0

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"forgeup-cli/internal/config"
	"forgeup-cli/internal/execrun"
	"forgeup-cli/internal/platform"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// stepDetectPlatform maps the OS tag onto a supported platform and
// derives the installer URL. Unrecognized tags abort the bootstrap.
func stepDetectPlatform(_ context.Context, pc *Context) error {
	p, err := platform.Detect(pc.OSTag)
	if err != nil {
		return err
	}
	pc.Platform = p
	pc.InstallerURL = p.InstallerURL(pc.Config.Installer.URLTemplate)
	pc.Logger.Info("platform detected", "tag", pc.OSTag, "platform", p, "installer", pc.InstallerURL)
	return nil
}

// stepFetchInstaller downloads the installer into the workdir.
func stepFetchInstaller(ctx context.Context, pc *Context) error {
	name, err := payloadName(pc.InstallerURL)
	if err != nil {
		return err
	}
	dest := filepath.Join(pc.WorkDir, name)
	if err := pc.Fetcher.Download(ctx, pc.InstallerURL, dest); err != nil {
		return err
	}
	pc.InstallerPath = dest
	return nil
}

// stepRunInstaller executes the downloaded installer in batch mode
// against the configured prefix, then hands prefix ownership back to
// the invoking user when the install ran elevated.
func stepRunInstaller(ctx context.Context, pc *Context) error {
	// Reject truncated or HTML-error payloads before handing them to a
	// shell: the installer must at least parse as a shell script.
	if err := validateInstallerScript(pc.InstallerPath); err != nil {
		return err
	}

	if pc.Config.Installer.Shell == config.InstallerShellEmbedded {
		return runInstallerEmbedded(ctx, pc)
	}

	prefix := pc.Config.Installer.Prefix
	if err := pc.runElevated(ctx, "bash", pc.InstallerPath, "-b", "-p", prefix); err != nil {
		return err
	}

	// An elevated install leaves the prefix root-owned; later steps run
	// unprivileged package managers against it.
	if pc.Config.Elevate {
		if err := pc.runElevated(ctx, "chown", "-R", pc.owner, prefix); err != nil {
			return err
		}
	}
	return nil
}

// stepExtendPath makes the freshly installed distribution's binaries
// visible to every subsequent step.
func stepExtendPath(_ context.Context, pc *Context) error {
	binDir := filepath.Join(pc.Config.Installer.Prefix, "bin")
	pc.PrependPath(binDir)
	pc.Logger.Info("search path extended", "dir", binDir)
	return nil
}

// runInstallerEmbedded runs the installer script in-process with the
// mvdan/sh interpreter. Interpreter exit statuses are mapped onto
// *execrun.CommandError so the fail-fast exit-code contract holds for
// both installer shells.
func runInstallerEmbedded(ctx context.Context, pc *Context) error {
	f, err := os.Open(pc.InstallerPath)
	if err != nil {
		return fmt.Errorf("opening installer: %w", err)
	}
	defer f.Close()

	prog, err := syntax.NewParser().Parse(f, pc.InstallerPath)
	if err != nil {
		return fmt.Errorf("parsing installer script: %w", err)
	}

	runner, err := interp.New(
		interp.Dir(pc.WorkDir),
		interp.Env(expand.ListEnviron(pc.Environ()...)),
		interp.StdIO(nil, pc.Stdout, pc.Stderr),
		interp.Params("--", "-b", "-p", pc.Config.Installer.Prefix),
	)
	if err != nil {
		return fmt.Errorf("creating interpreter: %w", err)
	}

	if err := runner.Run(ctx, prog); err != nil {
		var exitStatus interp.ExitStatus
		if errors.As(err, &exitStatus) {
			return &execrun.CommandError{
				Argv: []string{pc.InstallerPath, "-b", "-p", pc.Config.Installer.Prefix},
				Code: execrun.ExitCode(exitStatus),
			}
		}
		return fmt.Errorf("installer execution failed: %w", err)
	}
	return nil
}

// validateInstallerScript parses the payload as shell without executing it.
func validateInstallerScript(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening installer: %w", err)
	}
	defer f.Close()

	if _, err := syntax.NewParser().Parse(f, filepath.Base(path)); err != nil {
		return fmt.Errorf("installer payload is not a shell script: %w", err)
	}
	return nil
}

// payloadName derives the destination filename from a download URL.
func payloadName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing URL %s: %w", rawURL, err)
	}
	name := filepath.Base(u.Path)
	if name == "." || name == "/" || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("URL %s has no payload filename", rawURL)
	}
	return name, nil
}
