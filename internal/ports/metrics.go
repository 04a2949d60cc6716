package ports

import "time"

// Cache fetch outcomes reported to Metrics.
const (
	CacheHit       = "hit"
	CacheRefreshed = "refreshed"
	CacheStale     = "stale"
	CacheFailed    = "failed"
)

// Metrics records subsystem counters and latencies.
type Metrics interface {
	// RegistryRequest records one HTTP call to the registry.
	// endpoint is one of "search", "package", "tarball".
	RegistryRequest(endpoint string, status int, d time.Duration)
	// CacheFetch records the outcome of a catalog fetch.
	CacheFetch(outcome string)
	// PackageSkipped records a package dropped during catalog resolution.
	PackageSkipped(kind string)
	// InstallFinished records an install attempt; kind is empty on success.
	InstallFinished(kind string, d time.Duration)
	// Uninstalled records a removal.
	Uninstalled()
}
