// Package metrics provides the Prometheus collectors of the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tts_gateway"

// Label values.
const (
	KindSpeech       = "speech"
	KindConversation = "conversation"
	StatusSuccess    = "success"
	StatusError      = "error"
)

// Metrics bundles the gateway collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	cacheLookups      *prometheus.CounterVec
	providerRequests  *prometheus.CounterVec
	fallbacks         *prometheus.CounterVec
	characters        *prometheus.CounterVec
	costUSD           *prometheus.CounterVec
	evictedFiles      prometheus.Counter
	evictionFailures  prometheus.Counter
	cacheBytes        prometheus.Gauge
	cacheFiles        prometheus.Gauge
	synthesisDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) *Metrics {
	collectors := &Metrics{
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Cache lookups by artifact kind and result",
			},
			[]string{"kind", "result"}, // result: hit, miss
		),
		providerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Remote synthesis calls by status",
			},
			[]string{"status"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallback_total",
				Help:      "Synthesis calls served by the local fallback generator",
			},
			[]string{"reason"},
		),
		characters: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "synthesized_characters_total",
				Help:      "Characters synthesized on cache misses by voice tier",
			},
			[]string{"tier"},
		),
		costUSD: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cost_usd_total",
				Help:      "Accumulated synthesis cost in USD by voice tier",
			},
			[]string{"tier"},
		),
		evictedFiles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_evicted_files_total",
				Help:      "Cache files deleted by the retention sweep",
			},
		),
		evictionFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_eviction_failures_total",
				Help:      "Cache files the retention sweep failed to delete",
			},
		),
		cacheBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_bytes",
				Help:      "Total size of the cache directory after the last sweep",
			},
		),
		cacheFiles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_files",
				Help:      "Number of files in the cache directory after the last sweep",
			},
		),
		synthesisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "synthesis_duration_seconds",
				Help:      "Wall time of synthesis requests",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind", "status"},
		),
	}

	registerer.MustRegister(
		collectors.cacheLookups,
		collectors.providerRequests,
		collectors.fallbacks,
		collectors.characters,
		collectors.costUSD,
		collectors.evictedFiles,
		collectors.evictionFailures,
		collectors.cacheBytes,
		collectors.cacheFiles,
		collectors.synthesisDuration,
	)

	return collectors
}

// CacheLookup records a hit or miss for kind.
func (m *Metrics) CacheLookup(kind string, hit bool) {
	if m == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}

	m.cacheLookups.WithLabelValues(kind, result).Inc()
}

// ProviderRequest records one remote synthesis call.
func (m *Metrics) ProviderRequest(status string) {
	if m == nil {
		return
	}

	m.providerRequests.WithLabelValues(status).Inc()
}

// Fallback records one use of the local generator.
func (m *Metrics) Fallback(reason string) {
	if m == nil {
		return
	}

	m.fallbacks.WithLabelValues(reason).Inc()
}

// Billed records characters and cost charged at tier.
func (m *Metrics) Billed(tier string, characters int, cost float64) {
	if m == nil {
		return
	}

	m.characters.WithLabelValues(tier).Add(float64(characters))
	m.costUSD.WithLabelValues(tier).Add(cost)
}

// Evicted records the outcome of a retention sweep.
func (m *Metrics) Evicted(deleted, failed, remainingFiles int, remainingBytes int64) {
	if m == nil {
		return
	}

	m.evictedFiles.Add(float64(deleted))
	m.evictionFailures.Add(float64(failed))
	m.cacheFiles.Set(float64(remainingFiles))
	m.cacheBytes.Set(float64(remainingBytes))
}

// ObserveSynthesis records the wall time of a request.
func (m *Metrics) ObserveSynthesis(kind, status string, seconds float64) {
	if m == nil {
		return
	}

	m.synthesisDuration.WithLabelValues(kind, status).Observe(seconds)
}
