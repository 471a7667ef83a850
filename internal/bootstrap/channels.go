// SPDX-License-Identifier: MPL-2.0

package bootstrap

import (
	"context"

	"forgeup-cli/internal/manifest"
)

// stepRegisterChannels registers every channel from the manifest, in
// file order. conda appends each added channel above the previous ones,
// so preserving file order is what produces the intended priority:
// the last line of the manifest ends up with the highest priority of
// this batch, and the local-channel step later outranks them all.
func stepRegisterChannels(ctx context.Context, pc *Context) error {
	channels, err := manifest.TokensFromFile(pc.resolvePath(pc.Config.Channels.File))
	if err != nil {
		return err
	}

	for _, channel := range channels {
		if err := pc.run(ctx, "conda", "config", "--add", "channels", channel); err != nil {
			return err
		}
		pc.RegisteredChannels = append(pc.RegisteredChannels, channel)
		pc.Logger.Debug("channel registered", "channel", channel)
	}
	return nil
}

// stepRegisterLocalChannel registers the local build-output directory
// as a channel. Because it is added last, the package manager treats it
// as the highest-priority source, so locally built packages shadow
// every remote channel.
func stepRegisterLocalChannel(ctx context.Context, pc *Context) error {
	local := "file://" + pc.Config.LocalChannelDir()
	if err := pc.run(ctx, "conda", "config", "--add", "channels", local); err != nil {
		return err
	}
	pc.RegisteredChannels = append(pc.RegisteredChannels, local)
	return nil
}
