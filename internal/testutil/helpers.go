// Package testutil provides helpers shared by the package tests: temp file
// writers, file assertions, tarball builders, and a fake npm registry.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteTempFile writes content to dir/filename, creating parent directories.
func WriteTempFile(t testing.TB, dir, filename, content string) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755), "failed to create parent of %s", filename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "failed to write temp file: %s", filename)

	return path
}

// WriteTempDir creates a subdirectory in dir.
func WriteTempDir(t testing.TB, dir, dirname string) string {
	t.Helper()

	path := filepath.Join(dir, dirname)
	require.NoError(t, os.MkdirAll(path, 0o755), "failed to create temp subdirectory: %s", dirname)

	return path
}

// PluginRoot returns a fresh plugin root path inside a temp dir. The
// directory itself is not created.
func PluginRoot(t testing.TB) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "plugins")
}
