package plugin

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/usefultools/toolbox/internal/adapters/filesystem"
	"github.com/usefultools/toolbox/internal/domain/config"
	"github.com/usefultools/toolbox/internal/domain/registry"
	"github.com/usefultools/toolbox/internal/ports"
	"github.com/usefultools/toolbox/internal/testutil"
)

type staticConfig struct {
	url string
}

func (s staticConfig) Load(context.Context) config.Config {
	return config.Config{RegistryURL: s.url}
}

type fakeCatalog struct {
	plugins []registry.Descriptor
	err     error
	calls   int
}

func (c *fakeCatalog) Fetch(_ context.Context, force bool) ([]registry.Descriptor, error) {
	c.calls++
	if force {
		panic("update checks must not force a refresh")
	}
	return c.plugins, c.err
}

type recordingMetrics struct {
	mu          sync.Mutex
	results     []string
	uninstalled int
}

func (m *recordingMetrics) RegistryRequest(string, int, time.Duration) {}
func (m *recordingMetrics) CacheFetch(string)                          {}
func (m *recordingMetrics) PackageSkipped(string)                      {}

func (m *recordingMetrics) InstallFinished(result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}

func (m *recordingMetrics) Uninstalled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uninstalled++
}

var _ ports.Metrics = (*recordingMetrics)(nil)

func descriptor(id, version, pkg, bundle string) registry.Descriptor {
	return registry.ManifestEntry{
		ID:      id,
		Version: version,
		Title:   id,
		Bundle:  bundle,
	}.Descriptor(pkg)
}

// publish serves pkg@version from reg with one bundle per descriptor.
func publish(t *testing.T, reg *testutil.FakeRegistry, pkg, version string, descs ...registry.Descriptor) {
	t.Helper()

	entries := make([]map[string]any, 0, len(descs))
	bundles := make(map[string]string, len(descs))
	for _, d := range descs {
		entries = append(entries, testutil.ManifestEntry(d.ID, d.Version, d.BundleFile))
		bundles[d.BundleFile] = "export default { id: '" + d.ID + "', version: '" + version + "' }"
	}
	reg.AddPackage(pkg, version, testutil.PluginTarball(t, testutil.Manifest(t, entries...), bundles))
}

func newClient() *registry.Client {
	return registry.NewClient(registry.ClientConfig{Timeout: 5 * time.Second, UserAgent: "usefultools-test"})
}

type fixture struct {
	root      string
	reg       *testutil.FakeRegistry
	catalog   *fakeCatalog
	metrics   *recordingMetrics
	installer *Installer
}

func newFixture(t *testing.T, fs ports.FileSystem, opts ...InstallerOption) *fixture {
	t.Helper()

	if fs == nil {
		fs = filesystem.NewRealFileSystem()
	}
	f := &fixture{
		root:    testutil.PluginRoot(t),
		reg:     testutil.NewFakeRegistry(t),
		catalog: &fakeCatalog{},
		metrics: &recordingMetrics{},
	}
	opts = append([]InstallerOption{WithInstallerMetrics(f.metrics)}, opts...)
	f.installer = NewInstaller(
		NewStore(fs, f.root, nil),
		registry.NewResolver(newClient()),
		f.catalog,
		staticConfig{url: f.reg.URL()},
		opts...,
	)
	return f
}

// writeInstalled lays out a plugin directory directly on disk.
func writeInstalled(t *testing.T, root string, d registry.Descriptor, bundle string) {
	t.Helper()

	meta, err := json.Marshal(d)
	require.NoError(t, err)
	testutil.WriteTempFile(t, root, d.ID+"/"+MetaFileName, string(meta))
	testutil.WriteTempFile(t, root, d.ID+"/"+BundleFileName, bundle)
}
