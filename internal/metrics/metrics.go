// Package metrics exports probe results for Prometheus and serves them,
// together with recent history, while webprobe watches a page.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ibeckermayer/webprobe/internal/probe"
)

const namespace = "webprobe"

// Metrics holds the probe collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	checkFailures *prometheus.CounterVec
	checkVisible  *prometheus.GaugeVec
	duration      prometheus.Histogram
	lastRun       prometheus.Gauge
	lastSuccess   prometheus.Gauge

	mu     sync.RWMutex
	latest *probe.Report
}

// New registers the probe collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Probe runs by final status.",
		}, []string{"status"}),
		checkFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_failures_total",
			Help:      "Checks that ran and found no visible element.",
		}, []string{"check"}),
		checkVisible: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "check_visible",
			Help:      "1 if the check passed on the latest run, 0 otherwise.",
		}, []string{"check"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a probe run.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the latest run finished.",
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if every check passed on the latest run.",
		}),
	}
}

// Observe records a finished run
func (m *Metrics) Observe(r *probe.Report) {
	m.runs.WithLabelValues(string(r.Status())).Inc()
	m.duration.Observe(r.Duration().Seconds())
	m.lastRun.Set(float64(r.FinishedAt.Unix()))

	if r.AllPassed() {
		m.lastSuccess.Set(1)
	} else {
		m.lastSuccess.Set(0)
	}

	for _, c := range r.Checks {
		switch c.Outcome {
		case probe.Passed:
			m.checkVisible.WithLabelValues(c.Name).Set(1)
		case probe.Failed:
			m.checkFailures.WithLabelValues(c.Name).Inc()
			m.checkVisible.WithLabelValues(c.Name).Set(0)
		default:
			m.checkVisible.WithLabelValues(c.Name).Set(0)
		}
	}

	m.mu.Lock()
	m.latest = r
	m.mu.Unlock()
}

// Latest returns the most recently observed report, or nil
func (m *Metrics) Latest() *probe.Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
