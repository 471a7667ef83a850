// SPDX-License-Identifier: MPL-2.0

package bootstrap

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type (
	// Receipt records what a successful bootstrap left on the worker.
	// It is written as TOML next to the build so later CI stages (and
	// humans debugging a worker) can see exactly what was provisioned
	// without replaying the log.
	Receipt struct {
		Platform     string    `toml:"platform"`
		InstallerURL string    `toml:"installer_url"`
		Prefix       string    `toml:"prefix"`
		Channels     []string  `toml:"channels"`
		SearchPath   string    `toml:"search_path"`
		CompletedAt  time.Time `toml:"completed_at"`

		Tool ToolReceipt `toml:"tool"`
	}

	// ToolReceipt records the installed helper binary.
	ToolReceipt struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
		Path    string `toml:"path"`
	}
)

// NewReceipt snapshots the provisioning context into a Receipt.
func NewReceipt(pc *Context) *Receipt {
	return &Receipt{
		Platform:     string(pc.Platform),
		InstallerURL: pc.InstallerURL,
		Prefix:       pc.Config.Installer.Prefix,
		Channels:     slices.Clone(pc.RegisteredChannels),
		SearchPath:   pc.SearchPath(),
		CompletedAt:  time.Now().UTC(),
		Tool: ToolReceipt{
			Name:    pc.Config.Tool.Name,
			Version: pc.Config.Tool.Version,
			Path:    pc.ToolPath,
		},
	}
}

// WriteReceipt marshals r as TOML to path.
func WriteReceipt(path string, r *Receipt) error {
	data, err := toml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling receipt: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing receipt %s: %w", path, err)
	}
	return nil
}

// ReadReceipt loads a receipt written by a previous bootstrap.
func ReadReceipt(path string) (*Receipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading receipt %s: %w", path, err)
	}
	var r Receipt
	if err := toml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing receipt %s: %w", path, err)
	}
	return &r, nil
}
