// Package e2e provides end-to-end testing utilities for the usefultools CLI.
package e2e

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/usefultools/toolbox/internal/domain/registry"
	"github.com/usefultools/toolbox/internal/paths"
	"github.com/usefultools/toolbox/internal/testutil"
)

// Harness runs the usefultools binary against a private data directory
// and a fake registry.
type Harness struct {
	T            *testing.T
	BinaryPath   string
	DataDir      string
	WorkDir      string
	Registry     *testutil.FakeRegistry
	EnvVars      map[string]string
	Timeout      time.Duration
	LastOutput   string
	LastError    string
	LastExitCode int
}

var (
	buildOnce   sync.Once
	builtBinary string
	buildErr    error
)

// NewHarness creates a harness and points the CLI at its fake registry.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	h := &Harness{
		T:          t,
		BinaryPath: getBinary(t),
		DataDir:    filepath.Join(t.TempDir(), "data"),
		WorkDir:    t.TempDir(),
		Registry:   testutil.NewFakeRegistry(t),
		EnvVars:    make(map[string]string),
		Timeout:    30 * time.Second,
	}
	h.RunSuccess("config", "set", h.Registry.URL())
	return h
}

// getBinary returns the path to the usefultools binary, building it once
// per test process unless USEFULTOOLS_BINARY names an existing file.
func getBinary(t *testing.T) string {
	t.Helper()

	if path := os.Getenv("USEFULTOOLS_BINARY"); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "usefultools-e2e-")
		if err != nil {
			buildErr = err
			return
		}
		builtBinary = filepath.Join(dir, "usefultools-test")

		cmd := exec.Command("go", "build", "-o", builtBinary, "./cmd/usefultools")
		cmd.Dir = findProjectRoot(t)

		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			buildErr = fmt.Errorf("%w\n%s", err, stderr.String())
		}
	})
	if buildErr != nil {
		t.Fatalf("failed to build usefultools binary: %v", buildErr)
	}
	return builtBinary
}

// findProjectRoot finds the project root directory.
func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not find project root (no go.mod found)")
		}
		dir = parent
	}
}

// WithEnv sets an environment variable for commands.
func (h *Harness) WithEnv(key, value string) *Harness {
	h.EnvVars[key] = value
	return h
}

// Run executes a usefultools command and returns the exit code.
func (h *Harness) Run(args ...string) int {
	h.T.Helper()

	cmd := exec.Command(h.BinaryPath, args...)
	cmd.Dir = h.WorkDir

	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env,
		"USEFULTOOLS_DATA_DIR="+h.DataDir,
		"USEFULTOOLS_LOG_LEVEL=error",
	)
	for k, v := range h.EnvVars {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		h.T.Fatalf("failed to start %v: %v", args, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		h.LastOutput = stdout.String()
		h.LastError = stderr.String()
		h.LastExitCode = 0
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				h.LastExitCode = exitErr.ExitCode()
			} else {
				h.LastExitCode = -1
			}
		}
	case <-time.After(h.Timeout):
		_ = cmd.Process.Kill()
		h.T.Fatalf("command timed out after %v: %v", h.Timeout, args)
	}

	return h.LastExitCode
}

// RunSuccess executes a command and expects it to succeed.
func (h *Harness) RunSuccess(args ...string) string {
	h.T.Helper()

	exitCode := h.Run(args...)
	if exitCode != 0 {
		h.T.Fatalf("command failed with exit code %d: %v\nOutput: %s\nStderr: %s",
			exitCode, args, h.LastOutput, h.LastError)
	}
	return h.LastOutput
}

// RunFail executes a command and expects it to fail.
func (h *Harness) RunFail(args ...string) string {
	h.T.Helper()

	exitCode := h.Run(args...)
	if exitCode == 0 {
		h.T.Fatalf("command succeeded but expected failure: %v\nOutput: %s",
			args, h.LastOutput)
	}
	return h.LastOutput + h.LastError
}

// PublishOfficial serves the official package at version with one bundle
// per id.
func (h *Harness) PublishOfficial(version string, ids ...string) {
	h.T.Helper()

	entries := make([]map[string]any, 0, len(ids))
	bundles := map[string]string{}
	for _, id := range ids {
		entries = append(entries, testutil.ManifestEntry(id, version, id+".mjs"))
		bundles[id+".mjs"] = "export default '" + id + "'"
	}
	h.Registry.AddPackage(registry.OfficialPackage, version, testutil.PluginTarball(h.T, testutil.Manifest(h.T, entries...), bundles))
	h.Registry.SetSearch("usefultools-plugin", registry.OfficialPackage)
}

// PluginRoot returns the plugin directory inside the data directory.
func (h *Harness) PluginRoot() string {
	return paths.PluginRoot(h.DataDir)
}

// OutputContains checks if the last output contains a string.
func (h *Harness) OutputContains(s string) bool {
	return strings.Contains(h.LastOutput, s) || strings.Contains(h.LastError, s)
}

// AssertOutputContains asserts the last output contains a string.
func (h *Harness) AssertOutputContains(s string) {
	h.T.Helper()

	if !h.OutputContains(s) {
		h.T.Errorf("expected output to contain %q, got:\n%s", s, h.LastOutput+h.LastError)
	}
}
