package plugin

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usefultools/toolbox/internal/adapters/filesystem"
	"github.com/usefultools/toolbox/internal/domain/fault"
	"github.com/usefultools/toolbox/internal/domain/registry"
	"github.com/usefultools/toolbox/internal/testutil"
	"github.com/usefultools/toolbox/internal/testutil/mocks"
)

const officialPkg = registry.OfficialPackage

func TestInstaller_Install(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1_700_000_000_000)
	var phases []Phase
	f := newFixture(t, nil,
		WithInstallerClock(func() time.Time { return now }),
		WithPhaseObserver(func(_ string, p Phase) { phases = append(phases, p) }),
	)

	json := descriptor("json", "1.0.0", officialPkg, "dist/json.mjs")
	publish(t, f.reg, officialPkg, "1.0.0", json, descriptor("clock", "1.0.0", officialPkg, "dist/clock.mjs"))

	inst, err := f.installer.Install(context.Background(), json)
	require.NoError(t, err)

	assert.Equal(t, json, inst.Meta)
	assert.Equal(t, now.UnixMilli(), inst.InstalledAt)
	assert.Equal(t, inst.InstalledAt, inst.UpdatedAt)
	assert.True(t, inst.Enabled)
	assert.Equal(t, filepath.Join(f.root, "json", BundleFileName), inst.LocalBundlePath)

	testutil.AssertFileEquals(t, inst.LocalBundlePath, "export default { id: 'json', version: '1.0.0' }")
	testutil.AssertFileExists(t, filepath.Join(f.root, "json", MetaFileName))
	testutil.AssertNotExists(t, filepath.Join(f.root, "clock"))

	assert.Equal(t, []Phase{PhaseResolving, PhaseDownloading, PhaseExtracting, PhaseCommitting, PhaseInstalled}, phases)
	assert.Equal(t, []string{""}, f.metrics.results, "success reports no kind")
}

func TestInstaller_InstallThenList(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	json := descriptor("json", "1.0.0", officialPkg, "dist/json.mjs")
	publish(t, f.reg, officialPkg, "1.0.0", json)

	_, err := f.installer.Install(context.Background(), json)
	require.NoError(t, err)

	list, err := f.installer.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, json, list[0].Meta)
	assert.True(t, list[0].Enabled)
}

func TestInstaller_ReinstallReplaces(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	v1 := descriptor("json", "1.0.0", officialPkg, "dist/json.mjs")
	publish(t, f.reg, officialPkg, "1.0.0", v1)
	_, err := f.installer.Install(context.Background(), v1)
	require.NoError(t, err)

	v2 := descriptor("json", "2.0.0", officialPkg, "dist/json.mjs")
	publish(t, f.reg, officialPkg, "2.0.0", v2)
	_, err = f.installer.Install(context.Background(), v2)
	require.NoError(t, err)

	testutil.AssertFileEquals(t, filepath.Join(f.root, "json", BundleFileName), "export default { id: 'json', version: '2.0.0' }")
	list, err := f.installer.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "2.0.0", list[0].Meta.Version)
	assertNoLeftovers(t, f.root)
}

func TestInstaller_InstallScopedPackage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	d := descriptor("x", "1.0.0", "@acme/usefultools-plugin-x", "./x.mjs")
	publish(t, f.reg, "@acme/usefultools-plugin-x", "1.0.0", descriptor("x", "1.0.0", "@acme/usefultools-plugin-x", "x.mjs"))

	_, err := f.installer.Install(context.Background(), d)
	require.NoError(t, err)
	testutil.AssertFileExists(t, filepath.Join(f.root, "x", BundleFileName))
}

func TestInstaller_InstallFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		setup    func(t *testing.T, reg *testutil.FakeRegistry)
		desc     registry.Descriptor
		wantKind fault.Kind
		wantStep string
	}{
		{
			name:     "package not found",
			setup:    func(*testing.T, *testutil.FakeRegistry) {},
			desc:     descriptor("json", "1.0.0", officialPkg, "dist/json.mjs"),
			wantKind: fault.KindTransport,
			wantStep: registry.StepPackageDocument,
		},
		{
			name: "no latest tag",
			setup: func(_ *testing.T, reg *testutil.FakeRegistry) {
				reg.SetPackage(testutil.FakePackage{Name: officialPkg})
			},
			desc:     descriptor("json", "1.0.0", officialPkg, "dist/json.mjs"),
			wantKind: fault.KindNotFound,
			wantStep: registry.StepLatestTag,
		},
		{
			name: "tarball download fails",
			setup: func(t *testing.T, reg *testutil.FakeRegistry) {
				publish(t, reg, officialPkg, "1.0.0", descriptor("json", "1.0.0", officialPkg, "dist/json.mjs"))
				reg.FailTarballs(http.StatusInternalServerError)
			},
			desc:     descriptor("json", "1.0.0", officialPkg, "dist/json.mjs"),
			wantKind: fault.KindTransport,
			wantStep: registry.StepTarball,
		},
		{
			name: "bundle missing from tarball",
			setup: func(t *testing.T, reg *testutil.FakeRegistry) {
				publish(t, reg, officialPkg, "1.0.0", descriptor("json", "1.0.0", officialPkg, "dist/json.mjs"))
			},
			desc:     descriptor("json", "1.0.0", officialPkg, "dist/other.mjs"),
			wantKind: fault.KindNotFound,
			wantStep: string(PhaseExtracting),
		},
		{
			name: "corrupt tarball",
			setup: func(_ *testing.T, reg *testutil.FakeRegistry) {
				reg.AddPackage(officialPkg, "1.0.0", []byte("not a tarball"))
			},
			desc:     descriptor("json", "1.0.0", officialPkg, "dist/json.mjs"),
			wantKind: fault.KindNotFound,
			wantStep: string(PhaseExtracting),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var last Phase
			f := newFixture(t, nil, WithPhaseObserver(func(_ string, p Phase) { last = p }))
			tt.setup(t, f.reg)

			inst, err := f.installer.Install(context.Background(), tt.desc)
			assert.Nil(t, inst)
			testutil.AssertFault(t, err, tt.wantKind, tt.wantStep)

			assert.Equal(t, PhaseFailed, last)
			testutil.AssertNotExists(t, filepath.Join(f.root, tt.desc.ID))
			assert.Equal(t, []string{string(tt.wantKind)}, f.metrics.results)
		})
	}
}

func TestInstaller_InstallRejectsInvalidDescriptors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	bad := []registry.Descriptor{
		descriptor("../escape", "1.0.0", officialPkg, "x.mjs"),
		descriptor("", "1.0.0", officialPkg, "x.mjs"),
		descriptor("x", "1.0.0", "", "x.mjs"),
		descriptor("x", "1.0.0", officialPkg, ""),
		descriptor("x", "1.0.0", registry.LocalDebugPackage, "x.mjs"),
	}
	for _, d := range bad {
		_, err := f.installer.Install(context.Background(), d)
		testutil.AssertFault(t, err, fault.KindValidation, "")
	}
	assert.Zero(t, f.reg.TotalHits())
}

func TestInstaller_CommitFailureLeavesNoPartialInstall(t *testing.T) {
	t.Parallel()

	fs := mocks.NewFileSystem(filesystem.NewRealFileSystem())
	fs.FailOn(mocks.OpWriteFile, MetaFileName, errors.New("disk full"))
	f := newFixture(t, fs)

	d := descriptor("json", "1.0.0", officialPkg, "dist/json.mjs")
	publish(t, f.reg, officialPkg, "1.0.0", d)

	_, err := f.installer.Install(context.Background(), d)
	testutil.AssertFault(t, err, fault.KindIO, string(PhaseCommitting))

	testutil.AssertNotExists(t, filepath.Join(f.root, "json"))
	assertNoLeftovers(t, f.root)

	list, err := f.installer.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestInstaller_ConcurrentInstallsOfSameID(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	d := descriptor("json", "1.0.0", officialPkg, "dist/json.mjs")
	publish(t, f.reg, officialPkg, "1.0.0", d)

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.installer.Install(context.Background(), d)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	list, err := f.installer.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assertNoLeftovers(t, f.root)
	assert.Zero(t, f.installer.locks.size())
}

func TestInstaller_Uninstall(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	writeInstalled(t, f.root, descriptor("json", "1.0.0", officialPkg, "j.mjs"), "x")

	require.NoError(t, f.installer.Uninstall(context.Background(), "json"))
	testutil.AssertNotExists(t, filepath.Join(f.root, "json"))

	require.NoError(t, f.installer.Uninstall(context.Background(), "json"), "absent plugin is not an error")
	assert.Equal(t, 2, f.metrics.uninstalled)

	err := f.installer.Uninstall(context.Background(), "..")
	testutil.AssertFault(t, err, fault.KindValidation, "")
}

func TestInstaller_UninstallFailure(t *testing.T) {
	t.Parallel()

	fs := mocks.NewFileSystem(filesystem.NewRealFileSystem())
	fs.FailOn(mocks.OpRemoveAll, "/json", errors.New("permission denied"))
	f := newFixture(t, fs)
	writeInstalled(t, f.root, descriptor("json", "1.0.0", officialPkg, "j.mjs"), "x")

	err := f.installer.Uninstall(context.Background(), "json")
	testutil.AssertFault(t, err, fault.KindIO, "")
	assert.Zero(t, f.metrics.uninstalled)
}

func TestInstaller_CheckUpdates(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	writeInstalled(t, f.root, descriptor("json", "1.0.0", officialPkg, "j.mjs"), "x")
	writeInstalled(t, f.root, descriptor("clock", "2.0.0", officialPkg, "c.mjs"), "x")
	writeInstalled(t, f.root, descriptor("base64", "1.0.0", officialPkg, "b.mjs"), "x")

	f.catalog.plugins = []registry.Descriptor{
		descriptor("json", "1.1.0", officialPkg, "j.mjs"),
		descriptor("clock", "1.9.0", officialPkg, "c.mjs"),
		descriptor("base64", "1.0.0", officialPkg, "b.mjs"),
		descriptor("uuid", "9.0.0", officialPkg, "u.mjs"),
	}

	got, err := f.installer.CheckUpdates(context.Background())
	require.NoError(t, err)

	ids := map[string]string{}
	for _, d := range got {
		ids[d.ID] = d.Version
	}
	assert.Equal(t, map[string]string{"json": "1.1.0", "clock": "1.9.0"}, ids)

	updates, err := f.installer.Updates(context.Background())
	require.NoError(t, err)
	directions := map[string]Direction{}
	for _, u := range updates {
		directions[u.ID] = u.Direction
	}
	assert.Equal(t, DirectionUpgrade, directions["json"])
	assert.Equal(t, DirectionDowngrade, directions["clock"])
}

func TestInstaller_CheckUpdatesNothingInstalled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.catalog.err = errors.New("should not be called")

	got, err := f.installer.CheckUpdates(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Zero(t, f.catalog.calls)
}

func TestInstaller_CheckUpdatesCatalogError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	writeInstalled(t, f.root, descriptor("json", "1.0.0", officialPkg, "j.mjs"), "x")
	f.catalog.err = fault.New(fault.KindTransport, "cannot fetch plugin registry: no network and no cache")

	_, err := f.installer.CheckUpdates(context.Background())
	testutil.AssertFault(t, err, fault.KindTransport, "")
}

func TestInstaller_BundleAccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	writeInstalled(t, f.root, descriptor("json", "1.0.0", officialPkg, "j.mjs"), "export default 42")

	path, err := f.installer.BundlePath(context.Background(), "json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.root, "json", BundleFileName), path)

	src, err := f.installer.ReadBundle(context.Background(), "json")
	require.NoError(t, err)
	assert.Equal(t, "export default 42", src)

	_, err = f.installer.BundlePath(context.Background(), "missing")
	testutil.AssertFault(t, err, fault.KindNotFound, "")

	_, err = f.installer.ReadBundle(context.Background(), "missing")
	testutil.AssertFault(t, err, fault.KindNotFound, "")

	_, err = f.installer.ReadBundle(context.Background(), "../json")
	testutil.AssertFault(t, err, fault.KindValidation, "")
}

func TestInstaller_Prune(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	writeInstalled(t, f.root, descriptor("json", "1.0.0", officialPkg, "j.mjs"), "x")
	testutil.WriteTempFile(t, f.root, ".staging-clock-abc/"+BundleFileName, "x")

	removed, err := f.installer.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{".staging-clock-abc"}, removed)

	list, err := f.installer.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
