// SPDX-License-Identifier: MPL-2.0

package bootstrap

import (
	"context"
	"slices"
)

// stepInstallDeps installs the pinned build dependencies with conda,
// non-interactively, from the configured manifest.
func stepInstallDeps(ctx context.Context, pc *Context) error {
	reqs := pc.resolvePath(pc.Config.Build.CondaRequirements)
	return pc.run(ctx, "conda", "install", "-y", "--file", reqs)
}

// stepBuildProject runs the project's own build/install entry point
// from the workdir. The argv comes straight from config; forgeup treats
// the build tool as an opaque collaborator.
func stepBuildProject(ctx context.Context, pc *Context) error {
	return pc.run(ctx, slices.Clone(pc.Config.Build.Command)...)
}

// stepInstallTestDeps installs the test-dependency manifests with pip,
// in configured order.
func stepInstallTestDeps(ctx context.Context, pc *Context) error {
	for _, reqs := range pc.Config.Build.PipRequirements {
		if err := pc.run(ctx, "pip", "install", "-r", pc.resolvePath(reqs)); err != nil {
			return err
		}
	}
	return nil
}
