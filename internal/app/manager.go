// Package app exposes the plugin operations offered to the host shell.
package app

import (
	"context"
	"time"

	"github.com/usefultools/toolbox/internal/adapters/filesystem"
	"github.com/usefultools/toolbox/internal/adapters/logging"
	"github.com/usefultools/toolbox/internal/adapters/metrics"
	"github.com/usefultools/toolbox/internal/domain/config"
	"github.com/usefultools/toolbox/internal/domain/fault"
	"github.com/usefultools/toolbox/internal/domain/plugin"
	"github.com/usefultools/toolbox/internal/domain/registry"
	"github.com/usefultools/toolbox/internal/paths"
	"github.com/usefultools/toolbox/internal/ports"
)

// Service is the operation surface used by the transports.
type Service interface {
	FetchRegistry(ctx context.Context, forceRefresh bool) ([]registry.Descriptor, error)
	FetchPackage(ctx context.Context, name string) ([]registry.Descriptor, error)
	Install(ctx context.Context, desc registry.Descriptor) (*plugin.Installed, error)
	Uninstall(ctx context.Context, id string) error
	ListInstalled(ctx context.Context) ([]plugin.Installed, error)
	BundlePath(ctx context.Context, id string) (string, error)
	ReadBundle(ctx context.Context, id string) (string, error)
	CheckUpdates(ctx context.Context) ([]registry.Descriptor, error)
	GetConfig(ctx context.Context) config.Config
	SetConfig(ctx context.Context, cfg config.Config) error
	ReadLocalBundle(ctx context.Context, path string) (string, error)
	ReadLocalManifest(ctx context.Context, dir string) ([]registry.Descriptor, error)
	Prune(ctx context.Context) ([]string, error)
	ClearCache(ctx context.Context) error
}

// Options configures a Manager.
type Options struct {
	// DataDir is the application data directory; plugins live in DataDir/plugins.
	DataDir     string
	HTTPTimeout time.Duration
	CacheTTL    time.Duration
	UserAgent   string

	FileSystem ports.FileSystem
	Logger     ports.Logger
	Metrics    ports.Metrics
	// Clock replaces time.Now in the cache and installer.
	Clock func() time.Time
	// OnPhase observes install phases.
	OnPhase plugin.PhaseObserver
}

// Manager wires the config store, registry cache, and installer over one
// plugin root.
type Manager struct {
	root      string
	config    *config.Store
	resolver  *registry.Resolver
	cache     *registry.Cache
	installer *plugin.Installer
	local     *plugin.Local
	logger    ports.Logger
}

// New creates a Manager. Zero option values fall back to defaults.
func New(opts Options) *Manager {
	if opts.FileSystem == nil {
		opts.FileSystem = filesystem.NewRealFileSystem()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	clientCfg := registry.DefaultClientConfig()
	if opts.HTTPTimeout > 0 {
		clientCfg.Timeout = opts.HTTPTimeout
	}
	if opts.UserAgent != "" {
		clientCfg.UserAgent = opts.UserAgent
	}
	ttl := registry.DefaultTTL
	if opts.CacheTTL > 0 {
		ttl = opts.CacheTTL
	}

	root := paths.PluginRoot(opts.DataDir)
	log := opts.Logger

	store := config.NewStore(opts.FileSystem, root, config.WithStoreLogger(log.With(ports.F("component", "config"))))
	client := registry.NewClient(clientCfg,
		registry.WithClientMetrics(opts.Metrics),
		registry.WithClientLogger(log.With(ports.F("component", "registry"))))
	resolver := registry.NewResolver(client,
		registry.WithResolverLogger(log.With(ports.F("component", "resolver"))),
		registry.WithResolverMetrics(opts.Metrics))
	cache := registry.NewCache(opts.FileSystem, root, resolver, store,
		registry.WithTTL(ttl),
		registry.WithClock(opts.Clock),
		registry.WithCacheLogger(log.With(ports.F("component", "cache"))),
		registry.WithCacheMetrics(opts.Metrics))
	installer := plugin.NewInstaller(
		plugin.NewStore(opts.FileSystem, root, log.With(ports.F("component", "store"))),
		resolver, cache, store,
		plugin.WithInstallerLogger(log.With(ports.F("component", "installer"))),
		plugin.WithInstallerMetrics(opts.Metrics),
		plugin.WithInstallerClock(opts.Clock),
		plugin.WithPhaseObserver(opts.OnPhase),
	)

	return &Manager{
		root:      root,
		config:    store,
		resolver:  resolver,
		cache:     cache,
		installer: installer,
		local:     plugin.NewLocal(opts.FileSystem, log.With(ports.F("component", "local"))),
		logger:    log,
	}
}

// Root returns the plugin root.
func (m *Manager) Root() string {
	return m.root
}

// FetchRegistry returns the catalog, served from the cache when fresh.
func (m *Manager) FetchRegistry(ctx context.Context, forceRefresh bool) ([]registry.Descriptor, error) {
	return m.cache.Fetch(ctx, forceRefresh)
}

// FetchRegistryWithOutcome is FetchRegistry that also reports whether the
// result was a cache hit, a refresh, or a stale fallback.
func (m *Manager) FetchRegistryWithOutcome(ctx context.Context, forceRefresh bool) ([]registry.Descriptor, string, error) {
	return m.cache.FetchWithOutcome(ctx, forceRefresh)
}

// CacheSnapshot returns the persisted catalog snapshot, if any.
func (m *Manager) CacheSnapshot() (registry.Snapshot, bool) {
	return m.cache.Snapshot()
}

// FetchPackage resolves one package by name, bypassing the cache.
func (m *Manager) FetchPackage(ctx context.Context, name string) ([]registry.Descriptor, error) {
	name, err := registry.NormalizePackageName(name)
	if err != nil {
		return nil, err
	}
	return m.resolver.ResolvePackage(ctx, m.config.Load(ctx).RegistryURL, name)
}

// FindInstallable resolves ref to descriptors: a plugin id from the
// catalog, or else every plugin of a package named ref.
func (m *Manager) FindInstallable(ctx context.Context, ref string) ([]registry.Descriptor, error) {
	if registry.IsPluginPackageName(ref) {
		return m.FetchPackage(ctx, ref)
	}

	catalog, err := m.FetchRegistry(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, d := range catalog {
		if d.ID == ref {
			return []registry.Descriptor{d}, nil
		}
	}
	return nil, fault.Newf(fault.KindNotFound, "no plugin %q in the registry catalog", ref)
}

// Install installs desc.
func (m *Manager) Install(ctx context.Context, desc registry.Descriptor) (*plugin.Installed, error) {
	return m.installer.Install(ctx, desc)
}

// Uninstall removes the plugin id.
func (m *Manager) Uninstall(ctx context.Context, id string) error {
	return m.installer.Uninstall(ctx, id)
}

// ListInstalled returns the installed plugins.
func (m *Manager) ListInstalled(ctx context.Context) ([]plugin.Installed, error) {
	return m.installer.List(ctx)
}

// BundlePath returns the bundle path of an installed plugin.
func (m *Manager) BundlePath(ctx context.Context, id string) (string, error) {
	return m.installer.BundlePath(ctx, id)
}

// ReadBundle returns the bundle source of an installed plugin.
func (m *Manager) ReadBundle(ctx context.Context, id string) (string, error) {
	return m.installer.ReadBundle(ctx, id)
}

// CheckUpdates returns catalog entries newer (by version string) than the
// installed plugins.
func (m *Manager) CheckUpdates(ctx context.Context) ([]registry.Descriptor, error) {
	return m.installer.CheckUpdates(ctx)
}

// Updates is CheckUpdates with installed versions and update direction.
func (m *Manager) Updates(ctx context.Context) ([]plugin.Update, error) {
	return m.installer.Updates(ctx)
}

// GetConfig returns the stored configuration or the default.
func (m *Manager) GetConfig(ctx context.Context) config.Config {
	return m.config.Load(ctx)
}

// SetConfig validates and stores cfg.
func (m *Manager) SetConfig(ctx context.Context, cfg config.Config) error {
	cfg = cfg.Normalized()
	if err := config.Validate(cfg); err != nil {
		return err
	}
	previous := m.config.Load(ctx)
	if err := m.config.Save(ctx, cfg); err != nil {
		return err
	}
	m.logger.Info(ctx, "registry configured", ports.F("registry", cfg.RegistryURL))

	// A snapshot fetched from another registry must not be served as fresh.
	if previous.RegistryURL != cfg.RegistryURL {
		if err := m.cache.Clear(); err != nil {
			m.logger.Warn(ctx, "cannot clear registry cache", ports.Err(err))
		}
	}
	return nil
}

// ReadLocalBundle reads a .mjs bundle from the local file system.
func (m *Manager) ReadLocalBundle(ctx context.Context, path string) (string, error) {
	return m.local.ReadBundle(ctx, path)
}

// ReadLocalManifest reads plugin.json from a plugin source directory.
func (m *Manager) ReadLocalManifest(ctx context.Context, dir string) ([]registry.Descriptor, error) {
	return m.local.ReadManifest(ctx, dir)
}

// Prune removes leftovers of interrupted installs.
func (m *Manager) Prune(ctx context.Context) ([]string, error) {
	return m.installer.Prune(ctx)
}

// ClearCache deletes the catalog snapshot.
func (m *Manager) ClearCache(_ context.Context) error {
	return m.cache.Clear()
}

var _ Service = (*Manager)(nil)
