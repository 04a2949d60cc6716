package plugin

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/usefultools/toolbox/internal/domain/archive"
	"github.com/usefultools/toolbox/internal/domain/config"
	"github.com/usefultools/toolbox/internal/domain/fault"
	"github.com/usefultools/toolbox/internal/domain/registry"
	"github.com/usefultools/toolbox/internal/ports"
)

// Releases locates and downloads the latest release of a package.
type Releases interface {
	LatestTarball(ctx context.Context, registryURL, name string) (registry.Tarball, error)
	Download(ctx context.Context, tb registry.Tarball) ([]byte, error)
}

// Catalog serves the cached registry catalog.
type Catalog interface {
	Fetch(ctx context.Context, forceRefresh bool) ([]registry.Descriptor, error)
}

// Installer installs, removes, and inspects plugins in a Store.
type Installer struct {
	store    *Store
	releases Releases
	catalog  Catalog
	config   config.Provider

	locks *keyedMutex
	// prune excludes Prune from running alongside installs and uninstalls.
	prune sync.RWMutex

	now      func() time.Time
	logger   ports.Logger
	metrics  ports.Metrics
	observer PhaseObserver
}

// InstallerOption configures an Installer.
type InstallerOption func(*Installer)

// WithInstallerLogger sets the logger.
func WithInstallerLogger(l ports.Logger) InstallerOption {
	return func(i *Installer) {
		i.logger = l
	}
}

// WithInstallerMetrics records install results and uninstalls.
func WithInstallerMetrics(m ports.Metrics) InstallerOption {
	return func(i *Installer) {
		i.metrics = m
	}
}

// WithInstallerClock replaces time.Now.
func WithInstallerClock(now func() time.Time) InstallerOption {
	return func(i *Installer) {
		i.now = now
	}
}

// WithPhaseObserver reports every install phase change.
func WithPhaseObserver(fn PhaseObserver) InstallerOption {
	return func(i *Installer) {
		i.observer = fn
	}
}

// NewInstaller creates an Installer.
func NewInstaller(store *Store, releases Releases, catalog Catalog, cfg config.Provider, opts ...InstallerOption) *Installer {
	i := &Installer{
		store:    store,
		releases: releases,
		catalog:  catalog,
		config:   cfg,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Store returns the underlying store.
func (i *Installer) Store() *Store {
	return i.store
}

// Install downloads the latest release of the descriptor's package and
// installs its bundle under the descriptor's id, replacing any previous
// installation. The descriptor itself is written as meta.json.
func (i *Installer) Install(ctx context.Context, desc registry.Descriptor) (*Installed, error) {
	start := i.now()

	if err := validateDescriptor(desc); err != nil {
		i.finish(ctx, desc.ID, start, err)
		return nil, err
	}
	desc = desc.Normalized()

	i.prune.RLock()
	defer i.prune.RUnlock()
	unlock := i.locks.Lock(desc.ID)
	defer unlock()

	tr, err := newTracker(desc.ID, i.observePhase)
	if err != nil {
		return nil, fault.Wrap(fault.KindIO, err, "cannot start install")
	}
	defer tr.stop()

	inst, err := i.install(ctx, tr, desc)
	i.finish(ctx, desc.ID, start, err)
	return inst, err
}

func (i *Installer) install(ctx context.Context, tr *tracker, desc registry.Descriptor) (*Installed, error) {
	tr.advance(eventResolve)
	registryURL := i.config.Load(ctx).RegistryURL
	tb, err := i.releases.LatestTarball(ctx, registryURL, desc.PackageName)
	if err != nil {
		return nil, tr.fail(err)
	}

	tr.advance(eventDownload)
	data, err := i.releases.Download(ctx, tb)
	if err != nil {
		return nil, tr.fail(err)
	}

	tr.advance(eventExtract)
	entry := registry.BundleEntryPath(desc.BundleFile)
	bundle, err := archive.Lookup(data, entry)
	if err != nil {
		return nil, tr.fail(fault.Wrap(fault.KindNotFound, err, entry+" not found in tarball").
			WithPackage(desc.PackageName))
	}

	tr.advance(eventCommit)
	if err := i.store.Commit(ctx, desc, bundle); err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(eventDone)

	now := i.now().UnixMilli()
	return &Installed{
		Meta:            desc,
		InstalledAt:     now,
		UpdatedAt:       now,
		LocalBundlePath: i.store.BundlePath(desc.ID),
		Enabled:         true,
	}, nil
}

// Uninstall removes the plugin directory of id. Removing a plugin that is
// not installed succeeds.
func (i *Installer) Uninstall(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	i.prune.RLock()
	defer i.prune.RUnlock()
	unlock := i.locks.Lock(id)
	defer unlock()

	if err := i.store.Remove(id); err != nil {
		return err
	}
	i.info(ctx, "plugin uninstalled", ports.F("id", id))
	if i.metrics != nil {
		i.metrics.Uninstalled()
	}
	return nil
}

// List returns the installed plugins. A missing plugin root yields an
// empty list.
func (i *Installer) List(ctx context.Context) ([]Installed, error) {
	return i.store.List(ctx)
}

// CheckUpdates returns the catalog descriptors whose id is installed with
// a different version string.
func (i *Installer) CheckUpdates(ctx context.Context) ([]registry.Descriptor, error) {
	updates, err := i.Updates(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]registry.Descriptor, 0, len(updates))
	for _, u := range updates {
		out = append(out, u.Available)
	}
	return out, nil
}

// Updates is CheckUpdates with the installed version and update direction
// of each entry.
func (i *Installer) Updates(ctx context.Context) ([]Update, error) {
	installed, err := i.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(installed) == 0 {
		return []Update{}, nil
	}

	catalog, err := i.catalog.Fetch(ctx, false)
	if err != nil {
		return nil, err
	}

	versions := make(map[string]string, len(installed))
	for _, p := range installed {
		versions[p.Meta.ID] = p.Meta.Version
	}

	out := []Update{}
	for _, remote := range catalog {
		current, ok := versions[remote.ID]
		if !ok || current == remote.Version {
			continue
		}
		out = append(out, Update{
			ID:        remote.ID,
			Installed: current,
			Available: remote,
			Direction: UpdateDirection(current, remote.Version),
		})
	}
	return out, nil
}

// BundlePath returns the bundle.mjs path of an installed plugin.
func (i *Installer) BundlePath(_ context.Context, id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	path := i.store.BundlePath(id)
	if !i.store.fs.Exists(path) {
		return "", fault.Newf(fault.KindNotFound, "bundle of plugin %q not found", id)
	}
	return path, nil
}

// ReadBundle returns the bundle source of an installed plugin.
func (i *Installer) ReadBundle(ctx context.Context, id string) (string, error) {
	path, err := i.BundlePath(ctx, id)
	if err != nil {
		return "", err
	}
	data, err := i.store.fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fault.Newf(fault.KindNotFound, "bundle of plugin %q not found", id)
		}
		return "", fault.Wrap(fault.KindIO, err, "cannot read bundle")
	}
	return string(data), nil
}

// Prune removes leftovers of interrupted installs. It waits for running
// installs and uninstalls to finish.
func (i *Installer) Prune(ctx context.Context) ([]string, error) {
	i.prune.Lock()
	defer i.prune.Unlock()
	return i.store.Prune(ctx)
}

func validateDescriptor(d registry.Descriptor) error {
	if err := ValidateID(d.ID); err != nil {
		return err
	}
	switch {
	case d.PackageName == "":
		return fault.Newf(fault.KindValidation, "plugin %q has no package name", d.ID)
	case d.PackageName == registry.LocalDebugPackage:
		return fault.Newf(fault.KindValidation, "plugin %q is a local debug plugin and cannot be installed", d.ID)
	case d.BundleFile == "":
		return fault.Newf(fault.KindValidation, "plugin %q has no bundle file", d.ID)
	}
	return nil
}

func (i *Installer) finish(ctx context.Context, id string, start time.Time, err error) {
	var result string
	if err != nil {
		result = string(fault.KindOf(err))
		if result == "" {
			result = "error"
		}
		i.warn(ctx, "plugin install failed", ports.F("id", id), ports.Err(err))
	} else {
		i.info(ctx, "plugin installed", ports.F("id", id))
	}
	if i.metrics != nil {
		i.metrics.InstallFinished(result, i.now().Sub(start))
	}
}

func (i *Installer) observePhase(id string, phase Phase) {
	if i.logger != nil {
		i.logger.Debug(context.Background(), "install phase", ports.F("id", id), ports.F("phase", string(phase)))
	}
	if i.observer != nil {
		i.observer(id, phase)
	}
}

func (i *Installer) info(ctx context.Context, msg string, fields ...ports.Field) {
	if i.logger != nil {
		i.logger.Info(ctx, msg, fields...)
	}
}

func (i *Installer) warn(ctx context.Context, msg string, fields ...ports.Field) {
	if i.logger != nil {
		i.logger.Warn(ctx, msg, fields...)
	}
}
