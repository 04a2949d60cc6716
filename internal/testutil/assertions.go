package testutil

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usefultools/toolbox/internal/domain/fault"
)

// AssertFileExists asserts that a regular file exists at path.
func AssertFileExists(t testing.TB, path string) {
	t.Helper()

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		assert.Fail(t, "file does not exist", "expected file to exist: %s", path)
		return
	}
	require.NoError(t, err)
	assert.False(t, info.IsDir(), "expected file but got directory: %s", path)
}

// AssertNotExists asserts that nothing exists at path.
func AssertNotExists(t testing.TB, path string) {
	t.Helper()

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "expected path to not exist: %s", path)
}

// AssertDirExists asserts that a directory exists at path.
func AssertDirExists(t testing.TB, path string) {
	t.Helper()

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		assert.Fail(t, "directory does not exist", "expected directory to exist: %s", path)
		return
	}
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "expected directory but got file: %s", path)
}

// AssertFileEquals asserts that the file at path holds exactly expected.
func AssertFileEquals(t testing.TB, path, expected string) {
	t.Helper()

	content, err := os.ReadFile(path)
	require.NoError(t, err, "failed to read file: %s", path)
	assert.Equal(t, expected, string(content))
}

// AssertFault asserts that err carries the given kind and, when step is
// non-empty, that step.
func AssertFault(t testing.TB, err error, kind fault.Kind, step string) {
	t.Helper()

	require.Error(t, err)
	assert.Equal(t, kind, fault.KindOf(err), "unexpected kind for %v", err)
	if step != "" {
		assert.Equal(t, step, fault.StepOf(err), "unexpected step for %v", err)
	}
}
