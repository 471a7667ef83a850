// SPDX-License-Identifier: MPL-2.0

package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"

	"forgeup-cli/internal/fetch"
)

// stepInstallTool downloads the pinned container-build helper binary,
// verifies its checksum when one is configured, relocates it into the
// tool directory, marks it executable, and extends the search path.
func stepInstallTool(ctx context.Context, pc *Context) error {
	tool := pc.Config.Tool
	url := fmt.Sprintf(tool.URLTemplate, tool.Version)

	staging := filepath.Join(pc.WorkDir, tool.Name)
	if err := pc.Fetcher.Download(ctx, url, staging); err != nil {
		return err
	}
	if err := fetch.VerifySHA256(staging, tool.SHA256); err != nil {
		return err
	}

	// The tool directory is typically root-owned (/usr/local/bin), so
	// relocation and the mode change go through the elevation wrapper.
	dest := filepath.Join(tool.Dir, tool.Name)
	if err := pc.runElevated(ctx, "mv", staging, dest); err != nil {
		return err
	}
	if err := pc.runElevated(ctx, "chmod", "0755", dest); err != nil {
		return err
	}

	pc.ToolPath = dest
	pc.PrependPath(tool.Dir)
	pc.Logger.Info("helper tool installed", "tool", tool.Name, "version", tool.Version, "path", dest)
	return nil
}
