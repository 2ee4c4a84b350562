// Package metrics collects prometheus metrics for fetches, runs and sends.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the pipeline reports to. Nop satisfies it when metrics are off.
type Recorder interface {
	RecordFetch(subject, source string, latency time.Duration)
	RecordRun(kind, outcome string)
	RecordSend(kind, outcome string)
}

// Collector is the prometheus-backed Recorder.
type Collector struct {
	fetches      *prometheus.CounterVec
	fetchLatency prometheus.Histogram
	runs         *prometheus.CounterVec
	sends        *prometheus.CounterVec
}

// NewCollector registers all metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "horoscopebot_fetch_total",
			Help: "Content fetches by subject and source (live or fallback).",
		}, []string{"subject", "source"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "horoscopebot_fetch_latency_seconds",
			Help:    "Content fetch latency in seconds, fallback included.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 45},
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "horoscopebot_runs_total",
			Help: "Orchestrator runs by kind and outcome.",
		}, []string{"kind", "outcome"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "horoscopebot_sends_total",
			Help: "Channel sends by kind (daily, weekly, apology) and outcome.",
		}, []string{"kind", "outcome"}),
	}

	reg.MustRegister(c.fetches, c.fetchLatency, c.runs, c.sends)
	return c
}

func (c *Collector) RecordFetch(subject, source string, latency time.Duration) {
	c.fetches.WithLabelValues(subject, source).Inc()
	c.fetchLatency.Observe(latency.Seconds())
}

func (c *Collector) RecordRun(kind, outcome string) {
	c.runs.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) RecordSend(kind, outcome string) {
	c.sends.WithLabelValues(kind, outcome).Inc()
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordFetch(string, string, time.Duration) {}
func (Nop) RecordRun(string, string)                  {}
func (Nop) RecordSend(string, string)                 {}

// Handler returns the prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Routes serves /metrics only.
func Routes(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
