// SPDX-License-Identifier: MPL-2.0

// Package fetch downloads bootstrap payloads (distribution installers,
// helper binaries) over HTTP. Downloads are context-bound, capped in
// size, and written atomically via a temp file so an aborted transfer
// never leaves a partial payload at the destination path.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultMaxBytes is the upper bound on a downloaded payload (1 GB).
	// Installer scripts and helper binaries are far smaller; the cap
	// guards against a misconfigured URL streaming unbounded data.
	DefaultMaxBytes int64 = 1 << 30

	// defaultTimeout bounds a single download when the caller's context
	// carries no deadline of its own.
	defaultTimeout = 15 * time.Minute
)

// ErrUnexpectedStatus is the sentinel error wrapped by StatusError.
var ErrUnexpectedStatus = errors.New("unexpected HTTP status")

type (
	// StatusError is returned when the server answers with a non-2xx
	// status. It wraps ErrUnexpectedStatus for errors.Is().
	StatusError struct {
		URL    string
		Status int
	}

	// Fetcher downloads URLs to local files.
	Fetcher struct {
		client   *http.Client
		maxBytes int64
	}

	// Option configures a Fetcher during construction.
	Option func(*Fetcher)
)

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("fetching %s: unexpected status %d", e.URL, e.Status)
}

// Unwrap returns ErrUnexpectedStatus so callers can use errors.Is.
func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithMaxBytes overrides the payload size cap.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		f.maxBytes = n
	}
}

// NewFetcher creates a Fetcher with a redirect-following client and the
// default size cap.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{Timeout: defaultTimeout},
		maxBytes: DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Download fetches url into dest. The payload is streamed to a temp
// file in dest's directory and renamed into place only after the body
// has been fully read, so dest either holds the complete payload or
// does not exist. Non-2xx responses are a *StatusError.
func (f *Fetcher) Download(ctx context.Context, url, dest string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request for %s: %w", url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{URL: url, Status: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".partial-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", dest, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	if n > f.maxBytes {
		return fmt.Errorf("payload from %s exceeds %d byte cap", url, f.maxBytes)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("moving payload into place: %w", err)
	}
	return nil
}
