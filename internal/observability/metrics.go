package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BootstrapTotal counts feed bootstraps by generator and outcome.
	BootstrapTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "novafeed_bootstrap_total",
		Help: "Total number of feed bootstraps by generator and outcome",
	}, []string{"generator", "outcome"})

	// BootstrapLatency records how long the generator took to produce a feed.
	BootstrapLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "novafeed_bootstrap_latency_seconds",
		Help:    "Feed generation latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
	}, []string{"generator"})

	// MutationsTotal counts feed mutations by kind and outcome (applied or noop).
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "novafeed_mutations_total",
		Help: "Total number of feed mutations by kind and outcome",
	}, []string{"kind", "outcome"})

	// ActiveSessions is the gauge of live feed sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "novafeed_active_sessions",
		Help: "Number of live feed sessions",
	})

	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "novafeed_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})
)

// TrackBootstrap returns a function that records latency and outcome when called (e.g. defer).
func TrackBootstrap(generator string) func(outcome string) {
	start := time.Now()
	return func(outcome string) {
		BootstrapLatency.WithLabelValues(generator).Observe(time.Since(start).Seconds())
		BootstrapTotal.WithLabelValues(generator, outcome).Inc()
	}
}

// RecordMutation increments the mutation counter.
func RecordMutation(kind string, applied bool) {
	outcome := "noop"
	if applied {
		outcome = "applied"
	}
	MutationsTotal.WithLabelValues(kind, outcome).Inc()
}
