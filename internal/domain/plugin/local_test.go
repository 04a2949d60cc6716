package plugin

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usefultools/toolbox/internal/adapters/filesystem"
	"github.com/usefultools/toolbox/internal/adapters/logging"
	"github.com/usefultools/toolbox/internal/domain/fault"
	"github.com/usefultools/toolbox/internal/domain/registry"
	"github.com/usefultools/toolbox/internal/testutil"
)

func TestLocal_ReadBundle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mjs := testutil.WriteTempFile(t, dir, "dist/x.mjs", "export default 'x'")
	js := testutil.WriteTempFile(t, dir, "dist/x.js", "module.exports = 1")

	local := NewLocal(filesystem.NewRealFileSystem(), nil)

	src, err := local.ReadBundle(context.Background(), mjs)
	require.NoError(t, err)
	assert.Equal(t, "export default 'x'", src)

	_, err = local.ReadBundle(context.Background(), js)
	testutil.AssertFault(t, err, fault.KindValidation, "")

	_, err = local.ReadBundle(context.Background(), filepath.Join(dir, "missing.mjs"))
	testutil.AssertFault(t, err, fault.KindNotFound, "")

	_, err = local.ReadBundle(context.Background(), filepath.Join(dir, "missing.js"))
	testutil.AssertFault(t, err, fault.KindNotFound, "")
}

func TestLocal_ReadManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTempFile(t, dir, LocalManifestName, testutil.Manifest(t,
		testutil.ManifestEntry("a", "0.1.0", "dist/a.mjs"),
		testutil.ManifestEntry("b", "0.1.0", "dist/b.mjs"),
	))
	testutil.WriteTempFile(t, dir, "dist/a.mjs", "export {}")

	var logs bytes.Buffer
	local := NewLocal(filesystem.NewRealFileSystem(),
		logging.NewConsoleLogger(logging.WithOutput(&logs), logging.WithTimestamp(false)))

	got, err := local.ReadManifest(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, registry.LocalDebugPackage, got[0].PackageName)
	assert.Equal(t, "dist/a.mjs", got[0].BundleFile)
	assert.Contains(t, logs.String(), "bundle file missing")
	assert.Contains(t, logs.String(), "id=b")
}

func TestLocal_ReadManifestSingleEntry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTempFile(t, dir, LocalManifestName, testutil.Manifest(t, testutil.ManifestEntry("solo", "1.0.0", "solo.mjs")))
	testutil.WriteTempFile(t, dir, "solo.mjs", "export {}")

	got, err := NewLocal(filesystem.NewRealFileSystem(), nil).ReadManifest(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "solo", got[0].ID)
}

func TestLocal_ReadManifestErrors(t *testing.T) {
	t.Parallel()

	local := NewLocal(filesystem.NewRealFileSystem(), nil)

	_, err := local.ReadManifest(context.Background(), t.TempDir())
	testutil.AssertFault(t, err, fault.KindNotFound, "")

	malformed := t.TempDir()
	testutil.WriteTempFile(t, malformed, LocalManifestName, "{")
	_, err = local.ReadManifest(context.Background(), malformed)
	testutil.AssertFault(t, err, fault.KindDecode, "")

	noBundles := t.TempDir()
	testutil.WriteTempFile(t, noBundles, LocalManifestName, testutil.Manifest(t, testutil.ManifestEntry("a", "1.0.0", "a.mjs")))
	_, err = local.ReadManifest(context.Background(), noBundles)
	testutil.AssertFault(t, err, fault.KindNotFound, "")
	assert.Contains(t, err.Error(), "no valid plugin entries")
}
