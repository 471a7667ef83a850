// SPDX-License-Identifier: MPL-2.0

package bootstrap

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"forgeup-cli/internal/config"
	"forgeup-cli/internal/execrun"
	"forgeup-cli/internal/fetch"
	"forgeup-cli/internal/platform"

	"github.com/charmbracelet/log"
)

// newPayloadServer serves a minimal valid installer script and a fake
// helper binary for any other path.
func newPayloadServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".sh") {
			w.Write([]byte("#!/bin/sh\necho install \"$@\"\n"))
			return
		}
		w.Write([]byte("fake-involucro-binary"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newWorkdir lays out the manifests a bootstrap expects.
func newWorkdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"channels.txt":          "# priority order, lowest first\nconda-forge\nbioconda\n",
		"requirements.txt":      "pytest=7.4\n",
		"test-requirements.txt": "pytest-cov\n",
		"docs/requirements.txt": "sphinx\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	return dir
}

// newTestConfig points defaults at the payload server.
func newTestConfig(srv *httptest.Server) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Installer.URLTemplate = srv.URL + "/Miniconda3-latest-%s-x86_64.sh"
	cfg.Tool.URLTemplate = srv.URL + "/releases/%s/involucro"
	return cfg
}

func newTestBootstrapper(t *testing.T, cfg *config.Config, workdir string, rec *execrun.Recorder, srv *httptest.Server) *Bootstrapper {
	t.Helper()
	b, err := New(cfg,
		WithWorkDir(workdir),
		WithOSTag("linux-gnu"),
		WithRunner(rec),
		WithFetcher(fetch.NewFetcher(fetch.WithHTTPClient(srv.Client()))),
		WithLogger(log.New(io.Discard)),
		WithOwner("ciuser"),
		WithEnviron([]string{"PATH=/usr/bin:/bin", "HOME=/home/ciuser"}),
		WithOutput(io.Discard, io.Discard),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return b
}

func TestRunFullSequence(t *testing.T) {
	srv := newPayloadServer(t)
	workdir := newWorkdir(t)
	cfg := newTestConfig(srv)
	rec := &execrun.Recorder{}

	b := newTestBootstrapper(t, cfg, workdir, rec, srv)
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	installer := filepath.Join(workdir, "Miniconda3-latest-Linux-x86_64.sh")
	want := [][]string{
		{"sudo", "bash", installer, "-b", "-p", "/opt/conda"},
		{"sudo", "chown", "-R", "ciuser", "/opt/conda"},
		{"conda", "config", "--add", "channels", "conda-forge"},
		{"conda", "config", "--add", "channels", "bioconda"},
		{"conda", "install", "-y", "--file", filepath.Join(workdir, "requirements.txt")},
		{"python", "setup.py", "install"},
		{"pip", "install", "-r", filepath.Join(workdir, "test-requirements.txt")},
		{"pip", "install", "-r", filepath.Join(workdir, "docs/requirements.txt")},
		{"conda", "config", "--add", "channels", "file:///opt/conda/conda-bld"},
		{"sudo", "mv", filepath.Join(workdir, "involucro"), "/usr/local/bin/involucro"},
		{"sudo", "chmod", "0755", "/usr/local/bin/involucro"},
	}

	if len(rec.Calls) != len(want) {
		t.Fatalf("recorded %d calls, want %d:\n%v", len(rec.Calls), len(want), rec.Calls)
	}
	for i, argv := range want {
		if !slices.Equal(rec.ArgvAt(i), argv) {
			t.Errorf("call %d = %v, want %v", i, rec.ArgvAt(i), argv)
		}
	}

	pc := b.Context()
	if pc.Platform != platform.Linux {
		t.Errorf("platform = %q, want Linux", pc.Platform)
	}
	wantChannels := []string{"conda-forge", "bioconda", "file:///opt/conda/conda-bld"}
	if !slices.Equal(pc.RegisteredChannels, wantChannels) {
		t.Errorf("channels = %v, want %v", pc.RegisteredChannels, wantChannels)
	}
}

func TestRunExtendsSearchPath(t *testing.T) {
	srv := newPayloadServer(t)
	cfg := newTestConfig(srv)
	rec := &execrun.Recorder{}

	b := newTestBootstrapper(t, cfg, newWorkdir(t), rec, srv)
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Tool dir was prepended after the distribution's bin dir, so it has
	// the highest priority; the original PATH tail survives at the end.
	got := b.Context().SearchPath()
	want := "/usr/local/bin:/opt/conda/bin:/usr/bin:/bin"
	if got != want {
		t.Errorf("SearchPath = %q, want %q", got, want)
	}

	env := b.Context().Environ()
	if !slices.Contains(env, "PATH="+want) {
		t.Errorf("Environ %v missing PATH=%s", env, want)
	}
	if !slices.Contains(env, "HOME=/home/ciuser") {
		t.Error("Environ dropped unrelated variables")
	}
}

func TestRunFailFastOnSubprocess(t *testing.T) {
	srv := newPayloadServer(t)
	cfg := newTestConfig(srv)
	rec := &execrun.Recorder{Stub: execrun.FailOn("pip", 9)}

	b := newTestBootstrapper(t, cfg, newWorkdir(t), rec, srv)
	err := b.Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded, want pip failure")
	}

	var se *StepError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StepError", err)
	}
	if se.Step != "install-test-deps" {
		t.Errorf("failing step = %q, want install-test-deps", se.Step)
	}
	if got := execrun.CodeFromError(err); got != 9 {
		t.Errorf("exit code = %d, want 9", got)
	}

	// Nothing after the first pip failure may run: the last recorded
	// call is the failing pip invocation itself.
	last := rec.ArgvAt(len(rec.Calls) - 1)
	if len(last) == 0 || last[0] != "pip" {
		t.Errorf("last call = %v, want the failing pip invocation", last)
	}
	for _, argv := range rec.Calls {
		if slices.Contains(argv, "file:///opt/conda/conda-bld") {
			t.Error("local channel was registered after a failed step")
		}
	}
}

func TestRunUnknownOSTagAborts(t *testing.T) {
	srv := newPayloadServer(t)
	cfg := newTestConfig(srv)
	rec := &execrun.Recorder{}

	b, err := New(cfg,
		WithWorkDir(newWorkdir(t)),
		WithOSTag("beos"),
		WithRunner(rec),
		WithFetcher(fetch.NewFetcher(fetch.WithHTTPClient(srv.Client()))),
		WithLogger(log.New(io.Discard)),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = b.Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded with unknown OS tag")
	}
	if !errors.Is(err, platform.ErrUnsupportedPlatform) {
		t.Errorf("error = %v, want ErrUnsupportedPlatform", err)
	}

	var se *StepError
	if !errors.As(err, &se) || se.Step != "detect-platform" {
		t.Errorf("failing step = %v, want detect-platform", err)
	}
	if len(rec.Calls) != 0 {
		t.Errorf("%d commands ran despite platform failure", len(rec.Calls))
	}
}

func TestRunInstallerFetchFailureAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := newTestConfig(srv)
	rec := &execrun.Recorder{}
	b := newTestBootstrapper(t, cfg, newWorkdir(t), rec, srv)

	err := b.Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded despite failed installer download")
	}
	if !errors.Is(err, fetch.ErrUnexpectedStatus) {
		t.Errorf("error = %v, want ErrUnexpectedStatus", err)
	}
	if len(rec.Calls) != 0 {
		t.Errorf("%d commands ran despite fetch failure", len(rec.Calls))
	}
}

func TestRunRejectsBrokenInstallerPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".sh") {
			// A stray "fi" never parses as a shell script.
			w.Write([]byte("fi\n"))
			return
		}
		w.Write([]byte("binary"))
	}))
	defer srv.Close()

	cfg := newTestConfig(srv)
	rec := &execrun.Recorder{}
	b := newTestBootstrapper(t, cfg, newWorkdir(t), rec, srv)

	err := b.Run(context.Background())
	if err == nil {
		t.Fatal("Run accepted a non-script installer payload")
	}

	var se *StepError
	if !errors.As(err, &se) || se.Step != "run-installer" {
		t.Errorf("failing step = %v, want run-installer", err)
	}
	if len(rec.Calls) != 0 {
		t.Errorf("%d commands ran despite invalid payload", len(rec.Calls))
	}
}

func TestRunChannelCountMatchesManifest(t *testing.T) {
	srv := newPayloadServer(t)
	workdir := newWorkdir(t)

	manifest := "a\n#b\nc\n"
	if err := os.WriteFile(filepath.Join(workdir, "channels.txt"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("writing channels: %v", err)
	}

	cfg := newTestConfig(srv)
	rec := &execrun.Recorder{}
	b := newTestBootstrapper(t, cfg, workdir, rec, srv)
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var registered []string
	for _, argv := range rec.Calls {
		if len(argv) == 5 && argv[0] == "conda" && argv[1] == "config" {
			registered = append(registered, argv[4])
		}
	}
	// Exactly the two non-comment lines, in file order, then the local
	// channel override.
	want := []string{"a", "c", "file:///opt/conda/conda-bld"}
	if !slices.Equal(registered, want) {
		t.Errorf("registered channels = %v, want %v", registered, want)
	}
}

func TestRunEmbeddedInstaller(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "conda")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".sh") {
			// Behaves like a batch-mode installer: $2 is -p, $3 the prefix.
			w.Write([]byte("mkdir -p \"$3/bin\"\necho installed > \"$3/marker\"\n"))
			return
		}
		w.Write([]byte("binary"))
	}))
	defer srv.Close()

	cfg := newTestConfig(srv)
	cfg.Elevate = false
	cfg.Installer.Shell = config.InstallerShellEmbedded
	cfg.Installer.Prefix = prefix

	rec := &execrun.Recorder{}
	b := newTestBootstrapper(t, cfg, newWorkdir(t), rec, srv)
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(prefix, "marker")); err != nil {
		t.Errorf("embedded installer did not run: %v", err)
	}

	// Without elevation there is no sudo anywhere and no chown step.
	for _, argv := range rec.Calls {
		if argv[0] == "sudo" || argv[0] == "chown" || argv[0] == "bash" {
			t.Errorf("unexpected call %v in unelevated embedded mode", argv)
		}
	}
}

func TestRunEmbeddedInstallerExitCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".sh") {
			w.Write([]byte("exit 17\n"))
			return
		}
		w.Write([]byte("binary"))
	}))
	defer srv.Close()

	cfg := newTestConfig(srv)
	cfg.Elevate = false
	cfg.Installer.Shell = config.InstallerShellEmbedded

	b := newTestBootstrapper(t, cfg, newWorkdir(t), &execrun.Recorder{}, srv)
	err := b.Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded, want installer exit 17")
	}
	if got := execrun.CodeFromError(err); got != 17 {
		t.Errorf("exit code = %d, want 17", got)
	}
}

func TestRunWritesReceipt(t *testing.T) {
	srv := newPayloadServer(t)
	workdir := newWorkdir(t)
	cfg := newTestConfig(srv)
	cfg.ReceiptPath = "provision-receipt.toml"

	b := newTestBootstrapper(t, cfg, workdir, &execrun.Recorder{}, srv)
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	r, err := ReadReceipt(filepath.Join(workdir, "provision-receipt.toml"))
	if err != nil {
		t.Fatalf("ReadReceipt failed: %v", err)
	}
	if r.Platform != "Linux" {
		t.Errorf("receipt platform = %q, want Linux", r.Platform)
	}
	if !slices.Equal(r.Channels, []string{"conda-forge", "bioconda", "file:///opt/conda/conda-bld"}) {
		t.Errorf("receipt channels = %v", r.Channels)
	}
	if r.Tool.Name != "involucro" || r.Tool.Version != "v1.1.2" {
		t.Errorf("receipt tool = %+v", r.Tool)
	}
	if r.CompletedAt.IsZero() {
		t.Error("receipt CompletedAt is zero")
	}
}

func TestRunCanceledContext(t *testing.T) {
	srv := newPayloadServer(t)
	cfg := newTestConfig(srv)
	rec := &execrun.Recorder{}
	b := newTestBootstrapper(t, cfg, newWorkdir(t), rec, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Run(ctx); err == nil {
		t.Fatal("Run succeeded with canceled context")
	}
	if len(rec.Calls) != 0 {
		t.Errorf("%d commands ran despite canceled context", len(rec.Calls))
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Installer.Shell = "teleport"
	if _, err := New(cfg, WithOSTag("linux")); err == nil {
		t.Fatal("New accepted an invalid config")
	}
}
