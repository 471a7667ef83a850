// SPDX-License-Identifier: MPL-2.0

package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	// AppName is the application name.
	AppName = "forgeup"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"

	// maxConfigFileBytes caps the config file size (1 MB). A provisioning
	// config is a handful of paths and URLs; anything larger is a mistake.
	maxConfigFileBytes = 1 << 20
)

//go:embed config_schema.cue
var configSchema string

// configDirOverride redirects ConfigDir for tests.
//
//nolint:gochecknoglobals // Test seam requires a package-level variable.
var configDirOverride string

// DefaultConfig returns the built-in configuration: a Miniconda-style
// installer into /opt/conda, project manifests resolved against
// the working directory, and the pinned involucro helper.
func DefaultConfig() *Config {
	return &Config{
		OSTagVar: "OSTYPE",
		Elevate:  true,
		Installer: InstallerConfig{
			URLTemplate: "https://repo.anaconda.com/miniconda/Miniconda3-latest-%s-x86_64.sh",
			Prefix:      "/opt/conda",
			Shell:       InstallerShellSystem,
		},
		Channels: ChannelsConfig{
			File: "channels.txt",
		},
		Build: BuildConfig{
			CondaRequirements: "requirements.txt",
			PipRequirements:   []string{"test-requirements.txt", "docs/requirements.txt"},
			Command:           []string{"python", "setup.py", "install"},
		},
		Tool: ToolConfig{
			Name:        "involucro",
			Version:     "v1.1.2",
			URLTemplate: "https://github.com/involucro/involucro/releases/download/%s/involucro",
			Dir:         "/usr/local/bin",
		},
	}
}

// ConfigDir returns the forgeup configuration directory using
// platform-specific conventions: Windows uses %APPDATA%, macOS uses
// ~/Library/Application Support, and Linux/others use $XDG_CONFIG_HOME
// (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// SetConfigDirOverride redirects config discovery for tests. Pass ""
// to restore the default lookup.
func SetConfigDirOverride(dir string) {
	configDirOverride = dir
}

// Load resolves the configuration from the default locations: the
// platform config dir, then a config.cue in the current directory, then
// built-in defaults. The resolved config is validated before return.
func Load() (*Config, error) {
	cfgDir, err := ConfigDir()
	if err != nil {
		return nil, err
	}

	cuePath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
	if fileExists(cuePath) {
		return LoadFile(cuePath)
	}

	localPath := ConfigFileName + "." + ConfigFileExt
	if fileExists(localPath) {
		return LoadFile(localPath)
	}

	// No config file found; defaults only.
	return unmarshalConfig(newViperWithDefaults())
}

// LoadFile loads and validates the CUE config file at path, layered
// over the built-in defaults.
func LoadFile(path string) (*Config, error) {
	if !fileExists(path) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	v := newViperWithDefaults()
	if err := loadCUEIntoViper(v, path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return unmarshalConfig(v)
}

// newViperWithDefaults seeds a viper instance with DefaultConfig, so a
// partial config file only overrides the keys it mentions.
func newViperWithDefaults() *viper.Viper {
	v := viper.New()

	settings := defaultSettings()
	keys := maps.Keys(settings)
	slices.Sort(keys)
	for _, key := range keys {
		v.SetDefault(key, settings[key])
	}

	return v
}

// defaultSettings flattens DefaultConfig into viper keys.
func defaultSettings() map[string]any {
	defaults := DefaultConfig()
	return map[string]any{
		"os_tag_var":               defaults.OSTagVar,
		"elevate":                  defaults.Elevate,
		"receipt_path":             defaults.ReceiptPath,
		"installer.url_template":   defaults.Installer.URLTemplate,
		"installer.prefix":         defaults.Installer.Prefix,
		"installer.shell":          string(defaults.Installer.Shell),
		"channels.file":            defaults.Channels.File,
		"channels.local_dir":       defaults.Channels.LocalDir,
		"build.conda_requirements": defaults.Build.CondaRequirements,
		"build.pip_requirements":   defaults.Build.PipRequirements,
		"build.command":            defaults.Build.Command,
		"tool.name":                defaults.Tool.Name,
		"tool.version":             defaults.Tool.Version,
		"tool.url_template":        defaults.Tool.URLTemplate,
		"tool.dir":                 defaults.Tool.Dir,
		"tool.sha256":              defaults.Tool.SHA256,
		"ui.verbose":               defaults.UI.Verbose,
	}
}

// unmarshalConfig decodes viper state into a Config and validates it.
func unmarshalConfig(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadCUEIntoViper parses the CUE file at path, validates it against the
// embedded #Config schema, and merges the decoded values into v.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigFileBytes {
		return fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileBytes)
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return fmt.Errorf("invalid CUE syntax: %w", userValue.Err())
	}

	// Unify with the schema to validate against the #Config definition.
	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}

	var decoded map[string]any
	if err := userValue.Decode(&decoded); err != nil {
		return fmt.Errorf("failed to decode config values: %w", err)
	}
	if err := v.MergeConfigMap(decoded); err != nil {
		return fmt.Errorf("failed to merge config values: %w", err)
	}
	return nil
}

// fileExists reports whether path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
