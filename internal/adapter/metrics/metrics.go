package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sinecast"

// Set bundles every metric group the service exports on one registry.
type Set struct {
	Registry *prometheus.Registry
	HTTP     *HTTPMetrics
	Stream   *StreamMetrics
	Series   *SeriesMetrics
}

// NewSet creates a registry and registers all metric groups on it.
// seriesCount is sampled on every scrape.
func NewSet(seriesCount func() int) *Set {
	reg := NewRegistry()
	return &Set{
		Registry: reg,
		HTTP:     NewHTTPMetrics(reg),
		Stream:   NewStreamMetrics(reg),
		Series:   NewSeriesMetrics(reg, seriesCount),
	}
}

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
