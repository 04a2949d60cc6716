// Package integration provides test utilities for integration testing.
package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/usefultools/toolbox/internal/adapters/metrics"
	"github.com/usefultools/toolbox/internal/app"
	"github.com/usefultools/toolbox/internal/domain/config"
	"github.com/usefultools/toolbox/internal/domain/plugin"
	"github.com/usefultools/toolbox/internal/domain/registry"
	"github.com/usefultools/toolbox/internal/testutil"
)

// TestHarness wires a Manager with real adapters against a fake registry.
type TestHarness struct {
	T        *testing.T
	DataDir  string
	Registry *testutil.FakeRegistry
	Metrics  *metrics.Prometheus

	manager *app.Manager

	mu     sync.Mutex
	phases map[string][]plugin.Phase
	now    time.Time
}

// HarnessOption adjusts the Manager options of a harness.
type HarnessOption func(*app.Options)

// WithCacheTTL sets the catalog cache lifetime.
func WithCacheTTL(d time.Duration) HarnessOption {
	return func(o *app.Options) { o.CacheTTL = d }
}

// NewHarness creates a harness with the registry configured.
func NewHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	h := &TestHarness{
		T:        t,
		DataDir:  t.TempDir(),
		Registry: testutil.NewFakeRegistry(t),
		Metrics:  metrics.NewPrometheus(),
		phases:   make(map[string][]plugin.Phase),
		now:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	o := app.Options{
		DataDir:     h.DataDir,
		HTTPTimeout: 5 * time.Second,
		UserAgent:   "usefultools-integration",
		Metrics:     h.Metrics,
		Clock:       h.Now,
		OnPhase:     h.recordPhase,
	}
	for _, opt := range opts {
		opt(&o)
	}
	h.manager = app.New(o)

	require.NoError(t, h.manager.SetConfig(context.Background(), config.Config{RegistryURL: h.Registry.URL()}))
	return h
}

// Manager returns the wired Manager.
func (h *TestHarness) Manager() *app.Manager {
	return h.manager
}

// Now is the harness clock.
func (h *TestHarness) Now() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

// Advance moves the harness clock forward.
func (h *TestHarness) Advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func (h *TestHarness) recordPhase(id string, phase plugin.Phase) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.phases[id] = append(h.phases[id], phase)
}

// Phases returns the phases observed for id, in order.
func (h *TestHarness) Phases(id string) []plugin.Phase {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]plugin.Phase(nil), h.phases[id]...)
}

// Publish serves pkg at version with one bundle per id and makes it
// discoverable by the catalog search.
func (h *TestHarness) Publish(pkg, version string, ids ...string) {
	h.T.Helper()

	entries := make([]map[string]any, 0, len(ids))
	bundles := map[string]string{}
	for _, id := range ids {
		entries = append(entries, testutil.ManifestEntry(id, version, id+".mjs"))
		bundles[id+".mjs"] = "export default '" + id + "@" + version + "'"
	}
	h.Registry.AddPackage(pkg, version, testutil.PluginTarball(h.T, testutil.Manifest(h.T, entries...), bundles))
}

// PublishOfficial publishes the official package and lists it in search.
func (h *TestHarness) PublishOfficial(version string, ids ...string) {
	h.T.Helper()

	h.Publish(registry.OfficialPackage, version, ids...)
	h.Registry.SetSearch("usefultools-plugin", registry.OfficialPackage)
}

// Install finds and installs every descriptor ref names.
func (h *TestHarness) Install(ref string) []plugin.Installed {
	h.T.Helper()

	ctx := context.Background()
	descs, err := h.manager.FindInstallable(ctx, ref)
	require.NoError(h.T, err)

	installed := make([]plugin.Installed, 0, len(descs))
	for _, d := range descs {
		inst, err := h.manager.Install(ctx, d)
		require.NoError(h.T, err)
		installed = append(installed, *inst)
	}
	return installed
}
