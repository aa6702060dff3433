package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// TravelProviderRequests counts provider computations by outcome
	TravelProviderRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "travel_provider_requests_total", Help: "Travel-time provider computations by provider and outcome."},
		[]string{"provider", "outcome"},
	)
	// TravelCacheLookups counts travel-time cache hits and misses
	TravelCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "travel_cache_lookups_total", Help: "Travel-time cache lookups by result."},
		[]string{"result"},
	)

	// OptimizeDuration tracks route optimization wall time by algorithm
	OptimizeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "route_optimize_duration_seconds", Help: "Route optimization duration in seconds.", Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30}},
		[]string{"algorithm"},
	)
	// BatchesCreated counts batches emitted by the batcher
	BatchesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "batches_created_total", Help: "Batches produced by the geo batcher."},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(TravelProviderRequests)
		Registry.MustRegister(TravelCacheLookups)
		Registry.MustRegister(OptimizeDuration)
		Registry.MustRegister(BatchesCreated)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
