// Package metrics provides Prometheus metrics for the HTTP server and the
// concentration simulator:
//   - http_request_total: Counter with method, path, and status labels
//   - http_request_duration_seconds: Histogram with method and path labels
//   - http_request_in_flight: Gauge for concurrent requests
//   - rate_limiter_buckets_total: Gauge of tracked client IPs
//   - simulations_total: Counter of simulations served, by source
//   - simulation_days: Histogram of the number of days per simulation
//   - simulation_cache_results_total: Counter of memo hits and misses
//
// All metrics are registered with the Prometheus default registry during
// package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (IPs seen since the last prune)",
		},
	)

	SimulationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simulations_total",
			Help: "Concentration simulations served",
		},
		[]string{"source"},
	)

	SimulatedDays = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "simulation_days",
			Help:    "Number of daily samples per simulation",
			Buckets: []float64{29, 35, 60, 90, 180, 365, 730},
		},
	)

	SimulationCacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simulation_cache_results_total",
			Help: "Simulation memo lookups by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(SimulationsTotal)
	prometheus.MustRegister(SimulatedDays)
	prometheus.MustRegister(SimulationCacheResults)
}

// ObserveSimulation records one simulation of days samples. source names the
// endpoint family ("profile", "adhoc", "cli").
func ObserveSimulation(source string, days int, cacheHit bool) {
	SimulationsTotal.WithLabelValues(source).Inc()
	if days > 0 {
		SimulatedDays.Observe(float64(days))
	}

	result := "miss"
	if cacheHit {
		result = "hit"
	}
	SimulationCacheResults.WithLabelValues(result).Inc()
}
