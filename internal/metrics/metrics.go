// Package metrics records cache and source activity as prometheus counters.
//
// A CLI process is short lived, so counters live in a private registry and
// can be dumped with WriteTextfile for the node_exporter textfile collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup results.
const (
	LookupHit     = "hit"
	LookupMiss    = "miss"
	LookupStale   = "stale"
	LookupCorrupt = "corrupt"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// Recorder provides methods to record credential cache metrics.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	cacheLookups  *prometheus.CounterVec
	sourceFetches *prometheus.CounterVec
	cacheWrites   *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credcache_cache_lookups_total",
				Help: "Total number of cache lookups by result",
			},
			[]string{"result"},
		),
		sourceFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credcache_source_fetches_total",
				Help: "Total number of credential field fetches from the source",
			},
			[]string{"source", "status"},
		),
		cacheWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credcache_cache_writes_total",
				Help: "Total number of cache file writes",
			},
			[]string{"status"},
		),
	}
}

// CacheLookup records one cache lookup with a Lookup* result.
func (r *Recorder) CacheLookup(result string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// SourceFetch records one field fetch.
func (r *Recorder) SourceFetch(source string, ok bool) {
	if r == nil {
		return
	}
	r.sourceFetches.WithLabelValues(source, status(ok)).Inc()
}

// CacheWrite records one cache store attempt.
func (r *Recorder) CacheWrite(ok bool) {
	if r == nil {
		return
	}
	r.cacheWrites.WithLabelValues(status(ok)).Inc()
}

// Gatherer exposes the registry, e.g. for tests or an HTTP handler.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// WriteTextfile writes all metrics in text exposition format to path,
// atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.Gatherer())
}

func status(ok bool) string {
	if ok {
		return statusOK
	}
	return statusError
}
