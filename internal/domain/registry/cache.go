package registry

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/usefultools/toolbox/internal/domain/config"
	"github.com/usefultools/toolbox/internal/domain/fault"
	"github.com/usefultools/toolbox/internal/ports"
)

// CacheFileName is the snapshot file inside the plugin root.
const CacheFileName = "registry-cache.json"

// DefaultTTL is the freshness window written into new snapshots.
const DefaultTTL = time.Hour

// Snapshot is the persisted catalog. Times are unix milliseconds.
type Snapshot struct {
	FetchedAt int64        `json:"fetchedAt"`
	TTL       int64        `json:"ttl"`
	Plugins   []Descriptor `json:"plugins"`
}

// ExpiresAt returns when the snapshot stops being fresh.
func (s Snapshot) ExpiresAt() time.Time {
	return time.UnixMilli(s.FetchedAt + s.TTL)
}

// FreshAt reports whether the snapshot is still fresh at now.
func (s Snapshot) FreshAt(now time.Time) bool {
	return s.FetchedAt+s.TTL > now.UnixMilli()
}

// CatalogSource produces the full catalog from a registry.
type CatalogSource interface {
	ResolveAll(ctx context.Context, registryURL string) ([]Descriptor, error)
}

// Cache serves the catalog from registry-cache.json, refreshing it from
// the registry when expired or forced and falling back to the stale
// snapshot when the registry cannot be reached.
type Cache struct {
	fs      ports.FileSystem
	root    string
	source  CatalogSource
	config  config.Provider
	ttl     time.Duration
	now     func() time.Time
	logger  ports.Logger
	metrics ports.Metrics
	group   singleflight.Group
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets the freshness window for new snapshots.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l ports.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = l
	}
}

// WithCacheMetrics records fetch outcomes.
func WithCacheMetrics(m ports.Metrics) CacheOption {
	return func(c *Cache) {
		c.metrics = m
	}
}

// NewCache creates a Cache for the plugin root.
func NewCache(fs ports.FileSystem, root string, source CatalogSource, cfg config.Provider, opts ...CacheOption) *Cache {
	c := &Cache{
		fs:     fs,
		root:   root,
		source: source,
		config: cfg,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the snapshot file location.
func (c *Cache) Path() string {
	return filepath.Join(c.root, CacheFileName)
}

// Fetch returns the catalog. A fresh snapshot is returned without network
// access unless forceRefresh is set.
func (c *Cache) Fetch(ctx context.Context, forceRefresh bool) ([]Descriptor, error) {
	plugins, _, err := c.FetchWithOutcome(ctx, forceRefresh)
	return plugins, err
}

// FetchWithOutcome is Fetch that also reports how the result was obtained:
// ports.CacheHit, CacheRefreshed, CacheStale, or CacheFailed.
func (c *Cache) FetchWithOutcome(ctx context.Context, forceRefresh bool) ([]Descriptor, string, error) {
	snap, haveSnap := c.Snapshot()

	if !forceRefresh && haveSnap && snap.FreshAt(c.now()) {
		return c.done(snap.Plugins, ports.CacheHit, nil)
	}

	registryURL := c.config.Load(ctx).RegistryURL

	plugins, err := c.sharedRefresh(ctx, registryURL)
	if err == nil {
		return c.done(plugins, ports.CacheRefreshed, nil)
	}

	if haveSnap {
		c.warn(ctx, "registry unreachable, serving cached catalog",
			ports.Err(err), ports.F("fetched_at", time.UnixMilli(snap.FetchedAt).UTC().Format(time.RFC3339)))
		return c.done(snap.Plugins, ports.CacheStale, nil)
	}

	return c.done(nil, ports.CacheFailed,
		fault.Wrap(fault.KindTransport, err, "cannot fetch plugin registry: no network and no cache"))
}

// sharedRefresh joins the refresh in flight for registryURL or starts one.
// The refresh outlives the caller that started it; each caller stops
// waiting when its own ctx is done. The HTTP client timeout bounds it.
func (c *Cache) sharedRefresh(ctx context.Context, registryURL string) ([]Descriptor, error) {
	ch := c.group.DoChan(registryURL, func() (interface{}, error) {
		return c.refresh(context.WithoutCancel(ctx), registryURL)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		plugins := res.Val.([]Descriptor)
		if res.Shared {
			plugins = append([]Descriptor(nil), plugins...)
		}
		return plugins, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) refresh(ctx context.Context, registryURL string) ([]Descriptor, error) {
	plugins, err := c.source.ResolveAll(ctx, registryURL)
	if err != nil {
		return nil, err
	}

	snap := Snapshot{
		FetchedAt: c.now().UnixMilli(),
		TTL:       c.ttl.Milliseconds(),
		Plugins:   plugins,
	}
	if err := c.write(snap); err != nil {
		c.warn(ctx, "failed to write registry cache", ports.Err(err), ports.F("path", c.Path()))
	}
	return plugins, nil
}

// Snapshot reads the persisted snapshot. A missing or unparsable file
// reports false.
func (c *Cache) Snapshot() (Snapshot, bool) {
	data, err := c.fs.ReadFile(c.Path())
	if err != nil {
		return Snapshot{}, false
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false
	}
	if snap.Plugins == nil {
		snap.Plugins = []Descriptor{}
	}
	return snap, true
}

// Clear deletes the snapshot so the next fetch goes to the registry.
func (c *Cache) Clear() error {
	if err := c.fs.RemoveAll(c.Path()); err != nil {
		return fault.Wrap(fault.KindIO, err, "cannot remove registry cache")
	}
	return nil
}

func (c *Cache) write(snap Snapshot) error {
	if err := c.fs.MkdirAll(c.root, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return c.fs.WriteFileAtomic(c.Path(), data, 0o644)
}

func (c *Cache) done(plugins []Descriptor, outcome string, err error) ([]Descriptor, string, error) {
	if c.metrics != nil {
		c.metrics.CacheFetch(outcome)
	}
	return plugins, outcome, err
}

func (c *Cache) warn(ctx context.Context, msg string, fields ...ports.Field) {
	if c.logger != nil {
		c.logger.Warn(ctx, msg, fields...)
	}
}
