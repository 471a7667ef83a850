// SPDX-License-Identifier: MPL-2.0

// Package platform maps CI-provided OS tags onto the closed set of
// worker platforms forgeup can provision, and derives the matching
// distribution-installer URL.
package platform

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Linux is the platform token used in Linux installer filenames.
	Linux Platform = "Linux"

	// MacOSX is the platform token used in macOS installer filenames.
	MacOSX Platform = "MacOSX"
)

// ErrUnsupportedPlatform is the sentinel error wrapped by UnsupportedPlatformError.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

type (
	// Platform identifies a supported worker platform by the token that
	// appears in distribution-installer filenames (e.g. "Linux-x86_64.sh").
	Platform string

	// UnsupportedPlatformError is returned when an OS tag does not map to
	// any supported platform. It wraps ErrUnsupportedPlatform for errors.Is().
	UnsupportedPlatformError struct {
		Tag string
	}
)

// Error returns a human-readable description of the unrecognized OS tag.
func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform tag %q (supported: linux, darwin)", e.Tag)
}

// Unwrap returns ErrUnsupportedPlatform so callers can use errors.Is.
func (e *UnsupportedPlatformError) Unwrap() error { return ErrUnsupportedPlatform }

// Detect maps an OS tag to a Platform. Tags are matched by prefix after
// lowercasing, because CI environments export suffixed values such as
// "linux-gnu" or "darwin21". Any tag outside the supported set is an
// error; there is deliberately no default branch, so a worker with an
// unexpected OS fails the bootstrap immediately instead of downloading
// the wrong installer.
func Detect(tag string) (Platform, error) {
	normalized := strings.ToLower(strings.TrimSpace(tag))
	switch {
	case strings.HasPrefix(normalized, "linux"):
		return Linux, nil
	case strings.HasPrefix(normalized, "darwin"):
		return MacOSX, nil
	}
	return "", &UnsupportedPlatformError{Tag: tag}
}

// IsValid returns whether the Platform is one of the supported tokens,
// and a list of validation errors if it is not.
func (p Platform) IsValid() (bool, []error) {
	switch p {
	case Linux, MacOSX:
		return true, nil
	}
	return false, []error{&UnsupportedPlatformError{Tag: string(p)}}
}

// String returns the installer filename token for the Platform.
func (p Platform) String() string { return string(p) }

// InstallerURL interpolates the Platform token into an installer URL
// template. The template must contain exactly one %s verb, e.g.
// "https://repo.anaconda.com/miniconda/Miniconda3-latest-%s-x86_64.sh".
func (p Platform) InstallerURL(template string) string {
	return fmt.Sprintf(template, string(p))
}
