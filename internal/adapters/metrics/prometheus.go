// Package metrics provides ports.Metrics implementations.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/usefultools/toolbox/internal/ports"
)

const namespace = "usefultools"

// Prometheus records subsystem metrics into a Prometheus registry.
type Prometheus struct {
	registry *prometheus.Registry

	RegistryRequests *prometheus.CounterVec
	RegistryDuration *prometheus.HistogramVec
	CacheFetches     *prometheus.CounterVec
	PackagesSkipped  *prometheus.CounterVec
	Installs         *prometheus.CounterVec
	InstallDuration  prometheus.Histogram
	Uninstalls       prometheus.Counter
}

// NewPrometheus registers the collectors on a fresh registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,

		RegistryRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_requests_total",
				Help:      "Registry HTTP requests by endpoint and status code",
			},
			[]string{"endpoint", "status"},
		),
		RegistryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "registry_request_duration_seconds",
				Help:      "Registry HTTP request duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"endpoint"},
		),
		CacheFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_fetches_total",
				Help:      "Catalog fetches by outcome (hit, refreshed, stale, failed)",
			},
			[]string{"outcome"},
		),
		PackagesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_packages_skipped_total",
				Help:      "Packages dropped during catalog resolution by error kind",
			},
			[]string{"kind"},
		),
		Installs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "installs_total",
				Help:      "Plugin installs by result",
			},
			[]string{"result"},
		),
		InstallDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "install_duration_seconds",
				Help:      "Plugin install duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		Uninstalls: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uninstalls_total",
				Help:      "Plugin removals",
			},
		),
	}
}

// RegistryRequest records one HTTP call to the registry. status is 0 when
// no response was received.
func (p *Prometheus) RegistryRequest(endpoint string, status int, d time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	p.RegistryRequests.WithLabelValues(endpoint, code).Inc()
	p.RegistryDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// CacheFetch records the outcome of a catalog fetch.
func (p *Prometheus) CacheFetch(outcome string) {
	p.CacheFetches.WithLabelValues(outcome).Inc()
}

// PackageSkipped records a package dropped during catalog resolution.
func (p *Prometheus) PackageSkipped(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	p.PackagesSkipped.WithLabelValues(kind).Inc()
}

// InstallFinished records an install attempt.
func (p *Prometheus) InstallFinished(kind string, d time.Duration) {
	result := "success"
	if kind != "" {
		result = kind
	}
	p.Installs.WithLabelValues(result).Inc()
	p.InstallDuration.Observe(d.Seconds())
}

// Uninstalled records a removal.
func (p *Prometheus) Uninstalled() {
	p.Uninstalls.Inc()
}

// Registry returns the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Ensure Prometheus implements ports.Metrics.
var _ ports.Metrics = (*Prometheus)(nil)
