package registry

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usefultools/toolbox/internal/adapters/filesystem"
	"github.com/usefultools/toolbox/internal/domain/config"
	"github.com/usefultools/toolbox/internal/domain/fault"
	"github.com/usefultools/toolbox/internal/ports"
	"github.com/usefultools/toolbox/internal/testutil"
	"github.com/usefultools/toolbox/internal/testutil/mocks"
)

type staticConfig struct {
	url string
}

func (s staticConfig) Load(context.Context) config.Config {
	return config.Config{RegistryURL: s.url}
}

type fakeSource struct {
	calls   atomic.Int32
	plugins []Descriptor
	err     error
	started chan struct{}
	release chan struct{}
	urls    []string
	mu      sync.Mutex
}

func (s *fakeSource) ResolveAll(ctx context.Context, registryURL string) ([]Descriptor, error) {
	if s.calls.Add(1) == 1 && s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	s.urls = append(s.urls, registryURL)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]Descriptor(nil), s.plugins...), nil
}

func descriptors(ids ...string) []Descriptor {
	out := make([]Descriptor, 0, len(ids))
	for _, id := range ids {
		out = append(out, ManifestEntry{ID: id, Version: "1.0.0", Bundle: id + ".mjs"}.Descriptor(OfficialPackage))
	}
	return out
}

func writeSnapshot(t *testing.T, root string, snap Snapshot) {
	t.Helper()

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	testutil.WriteTempFile(t, root, CacheFileName, string(data))
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(t *testing.T, fs ports.FileSystem, source CatalogSource, opts ...CacheOption) (*Cache, string) {
	t.Helper()

	root := t.TempDir()
	return NewCache(fs, root, source, staticConfig{url: "https://registry.test"}, opts...), root
}

func TestSnapshot_Freshness(t *testing.T) {
	t.Parallel()

	fetched := time.UnixMilli(1_700_000_000_000)
	snap := Snapshot{FetchedAt: fetched.UnixMilli(), TTL: time.Hour.Milliseconds()}

	assert.True(t, snap.FreshAt(fetched))
	assert.True(t, snap.FreshAt(fetched.Add(59*time.Minute)))
	assert.False(t, snap.FreshAt(fetched.Add(time.Hour)), "expiry instant is stale")
	assert.False(t, snap.FreshAt(fetched.Add(2*time.Hour)))
	assert.Equal(t, fetched.Add(time.Hour), snap.ExpiresAt())
}

func TestCache_RefreshWritesSnapshot(t *testing.T) {
	t.Parallel()

	clk := &clock{now: time.UnixMilli(1_700_000_000_000)}
	source := &fakeSource{plugins: descriptors("json", "clock")}
	metrics := &recordingMetrics{}
	cache, root := newTestCache(t, filesystem.NewRealFileSystem(), source,
		WithClock(clk.Now), WithCacheMetrics(metrics))

	plugins, outcome, err := cache.FetchWithOutcome(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, ports.CacheRefreshed, outcome)
	assert.Len(t, plugins, 2)
	assert.Equal(t, []string{"https://registry.test"}, source.urls)

	data, err := os.ReadFile(filepath.Join(root, CacheFileName))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, 1_700_000_000_000, raw["fetchedAt"])
	assert.EqualValues(t, 3_600_000, raw["ttl"])
	assert.Len(t, raw["plugins"], 2)

	assert.Equal(t, []string{ports.CacheRefreshed}, metrics.fetches)
}

func TestCache_FreshHitSkipsNetwork(t *testing.T) {
	t.Parallel()

	reg := testutil.NewFakeRegistry(t)
	resolver := NewResolver(testClient())
	clk := &clock{now: time.UnixMilli(1_700_000_000_000)}

	root := t.TempDir()
	writeSnapshot(t, root, Snapshot{
		FetchedAt: clk.Now().Add(-10 * time.Minute).UnixMilli(),
		TTL:       time.Hour.Milliseconds(),
		Plugins:   descriptors("json"),
	})
	cache := NewCache(filesystem.NewRealFileSystem(), root, resolver, staticConfig{url: reg.URL()}, WithClock(clk.Now))

	plugins, outcome, err := cache.FetchWithOutcome(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, ports.CacheHit, outcome)
	require.Len(t, plugins, 1)
	assert.Equal(t, "json", plugins[0].ID)
	assert.Zero(t, reg.TotalHits())
}

func TestCache_ExpiredSnapshotRefreshes(t *testing.T) {
	t.Parallel()

	clk := &clock{now: time.UnixMilli(1_700_000_000_000)}
	source := &fakeSource{plugins: descriptors("new")}
	cache, root := newTestCache(t, filesystem.NewRealFileSystem(), source, WithClock(clk.Now))

	writeSnapshot(t, root, Snapshot{
		FetchedAt: clk.Now().Add(-2 * time.Hour).UnixMilli(),
		TTL:       time.Hour.Milliseconds(),
		Plugins:   descriptors("old"),
	})

	plugins, outcome, err := cache.FetchWithOutcome(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, ports.CacheRefreshed, outcome)
	assert.Equal(t, "new", plugins[0].ID)

	snap, ok := cache.Snapshot()
	require.True(t, ok)
	assert.Equal(t, clk.Now().UnixMilli(), snap.FetchedAt)
	assert.Equal(t, "new", snap.Plugins[0].ID)
}

func TestCache_TTLFromSnapshotNotOption(t *testing.T) {
	t.Parallel()

	clk := &clock{now: time.UnixMilli(1_700_000_000_000)}
	source := &fakeSource{plugins: descriptors("x")}
	cache, root := newTestCache(t, filesystem.NewRealFileSystem(), source,
		WithClock(clk.Now), WithTTL(24*time.Hour))

	writeSnapshot(t, root, Snapshot{
		FetchedAt: clk.Now().Add(-2 * time.Minute).UnixMilli(),
		TTL:       time.Minute.Milliseconds(),
		Plugins:   descriptors("x"),
	})

	_, outcome, err := cache.FetchWithOutcome(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, ports.CacheRefreshed, outcome)

	snap, ok := cache.Snapshot()
	require.True(t, ok)
	assert.Equal(t, (24 * time.Hour).Milliseconds(), snap.TTL)

	clk.Advance(23 * time.Hour)
	_, outcome, err = cache.FetchWithOutcome(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, ports.CacheHit, outcome)
	assert.Equal(t, int32(1), source.calls.Load())
}

func TestCache_ForceRefresh(t *testing.T) {
	t.Parallel()

	clk := &clock{now: time.UnixMilli(1_700_000_000_000)}
	source := &fakeSource{plugins: descriptors("fresh")}
	cache, root := newTestCache(t, filesystem.NewRealFileSystem(), source, WithClock(clk.Now))

	writeSnapshot(t, root, Snapshot{
		FetchedAt: clk.Now().UnixMilli(),
		TTL:       time.Hour.Milliseconds(),
		Plugins:   descriptors("cached"),
	})

	plugins, err := cache.Fetch(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "fresh", plugins[0].ID)
	assert.Equal(t, int32(1), source.calls.Load())
}

func TestCache_StaleFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		forceRefresh bool
		age          time.Duration
	}{
		{name: "forced refresh fails", forceRefresh: true, age: 48 * time.Hour},
		{name: "expired snapshot refresh fails", forceRefresh: false, age: 2 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clk := &clock{now: time.UnixMilli(1_700_000_000_000)}
			source := &fakeSource{err: fault.New(fault.KindTransport, "registry search unavailable")}

			var logs syncBuffer
			logger := newTestLogger(&logs)
			metrics := &recordingMetrics{}
			cache, root := newTestCache(t, filesystem.NewRealFileSystem(), source,
				WithClock(clk.Now), WithCacheLogger(logger), WithCacheMetrics(metrics))

			fetchedAt := clk.Now().Add(-tt.age).UnixMilli()
			writeSnapshot(t, root, Snapshot{
				FetchedAt: fetchedAt,
				TTL:       time.Hour.Milliseconds(),
				Plugins:   descriptors("old", "older"),
			})

			plugins, outcome, err := cache.FetchWithOutcome(context.Background(), tt.forceRefresh)
			require.NoError(t, err)
			assert.Equal(t, ports.CacheStale, outcome)
			require.Len(t, plugins, 2)
			assert.Equal(t, "old", plugins[0].ID)
			assert.Equal(t, "older", plugins[1].ID)
			assert.Equal(t, int32(1), source.calls.Load())
			assert.Contains(t, logs.String(), "serving cached catalog")
			assert.Equal(t, []string{ports.CacheStale}, metrics.fetches)

			snap, ok := cache.Snapshot()
			require.True(t, ok)
			assert.Equal(t, fetchedAt, snap.FetchedAt, "stale snapshot is left untouched")
		})
	}
}

func TestCache_NoNetworkNoCache(t *testing.T) {
	t.Parallel()

	source := &fakeSource{err: errors.New("dial tcp: connection refused")}
	metrics := &recordingMetrics{}
	cache, _ := newTestCache(t, filesystem.NewRealFileSystem(), source, WithCacheMetrics(metrics))

	plugins, outcome, err := cache.FetchWithOutcome(context.Background(), false)
	testutil.AssertFault(t, err, fault.KindTransport, "")
	assert.Contains(t, err.Error(), "no network and no cache")
	assert.Nil(t, plugins)
	assert.Equal(t, ports.CacheFailed, outcome)
	assert.Equal(t, []string{ports.CacheFailed}, metrics.fetches)
}

func TestCache_CorruptSnapshotIsIgnored(t *testing.T) {
	t.Parallel()

	source := &fakeSource{plugins: descriptors("x")}
	cache, root := newTestCache(t, filesystem.NewRealFileSystem(), source)
	testutil.WriteTempFile(t, root, CacheFileName, "{not json")

	_, ok := cache.Snapshot()
	assert.False(t, ok)

	_, outcome, err := cache.FetchWithOutcome(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, ports.CacheRefreshed, outcome)
}

func TestCache_WriteFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	fs := mocks.NewFileSystem(filesystem.NewRealFileSystem())
	fs.FailOn(mocks.OpWriteFileAtomic, CacheFileName, errors.New("disk full"))

	var logs syncBuffer
	source := &fakeSource{plugins: descriptors("x")}
	cache, root := newTestCache(t, fs, source, WithCacheLogger(newTestLogger(&logs)))

	plugins, err := cache.Fetch(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, plugins, 1)
	assert.Contains(t, logs.String(), "failed to write registry cache")
	testutil.AssertNotExists(t, filepath.Join(root, CacheFileName))
}

func TestCache_ConcurrentRefreshIsCoalesced(t *testing.T) {
	t.Parallel()

	source := &fakeSource{
		plugins: descriptors("x"),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	cache, _ := newTestCache(t, filesystem.NewRealFileSystem(), source)

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]Descriptor, callers)
	errs := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = cache.Fetch(context.Background(), true)
	}()
	<-source.started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.Fetch(context.Background(), true)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(source.release)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Len(t, results[i], 1)
	}
	assert.Less(t, source.calls.Load(), int32(callers))

	results[0][0].ID = "changed"
	for i := 1; i < callers; i++ {
		assert.Equal(t, "x", results[i][0].ID, "callers do not share the result slice")
	}
}

func TestCache_SharedRefreshSurvivesCancelledCaller(t *testing.T) {
	t.Parallel()

	source := &fakeSource{
		plugins: descriptors("x"),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	cache, _ := newTestCache(t, filesystem.NewRealFileSystem(), source)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := cache.Fetch(ctxA, true)
		errA <- err
	}()
	<-source.started

	type result struct {
		plugins []Descriptor
		err     error
	}
	resB := make(chan result, 1)
	go func() {
		plugins, err := cache.Fetch(context.Background(), true)
		resB <- result{plugins, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(source.release)
	select {
	case r := <-resB:
		require.NoError(t, r.err)
		require.Len(t, r.plugins, 1)
		assert.Equal(t, "x", r.plugins[0].ID)
	case <-time.After(5 * time.Second):
		t.Fatal("waiting caller did not get the refreshed catalog")
	}
	assert.Equal(t, int32(1), source.calls.Load())

	_, ok := cache.Snapshot()
	assert.True(t, ok, "the shared refresh still persists the snapshot")
}

func TestCache_Clear(t *testing.T) {
	t.Parallel()

	source := &fakeSource{plugins: descriptors("x")}
	cache, root := newTestCache(t, filesystem.NewRealFileSystem(), source)

	require.NoError(t, cache.Clear(), "clearing a missing cache is fine")

	_, err := cache.Fetch(context.Background(), false)
	require.NoError(t, err)
	testutil.AssertFileExists(t, filepath.Join(root, CacheFileName))

	require.NoError(t, cache.Clear())
	testutil.AssertNotExists(t, filepath.Join(root, CacheFileName))

	fs := mocks.NewFileSystem(filesystem.NewRealFileSystem())
	fs.FailOn(mocks.OpRemoveAll, CacheFileName, errors.New("permission denied"))
	failing := NewCache(fs, root, source, staticConfig{})
	testutil.AssertFault(t, failing.Clear(), fault.KindIO, "")
}
