// internal/metrics/prom.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromCollector mirrors run metrics into a Prometheus registry so a long run
// can be scraped while it is in progress. A nil *PromCollector is valid and
// records nothing.
type PromCollector struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	rateObservations *prometheus.CounterVec
	checksTotal      *prometheus.CounterVec
	activeVUs        prometheus.Gauge
	iterationsTotal  prometheus.Counter
}

// NewPromCollector creates a collector backed by its own registry.
func NewPromCollector(scenario string) *PromCollector {
	constLabels := prometheus.Labels{"scenario": scenario}
	c := &PromCollector{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "boutiqueload_http_requests_total",
				Help:        "Total number of probe requests issued",
				ConstLabels: constLabels,
			},
			[]string{"step", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "boutiqueload_http_request_duration_seconds",
				Help:        "Probe request duration in seconds",
				Buckets:     prometheus.ExponentialBuckets(0.01, 2, 12),
				ConstLabels: constLabels,
			},
			[]string{"step"},
		),
		rateObservations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "boutiqueload_rate_observations_total",
				Help:        "Observations recorded into error-rate metrics",
				ConstLabels: constLabels,
			},
			[]string{"metric", "outcome"},
		),
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "boutiqueload_checks_total",
				Help:        "Check evaluations by name and result",
				ConstLabels: constLabels,
			},
			[]string{"check", "result"},
		),
		activeVUs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "boutiqueload_vus",
				Help:        "Number of active virtual users",
				ConstLabels: constLabels,
			},
		),
		iterationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "boutiqueload_iterations_total",
				Help:        "Completed journey iterations",
				ConstLabels: constLabels,
			},
		),
	}

	c.registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.rateObservations,
		c.checksTotal,
		c.activeVUs,
		c.iterationsTotal,
		collectors.NewGoCollector(),
	)
	return c
}

// RecordRequest records one probe request. status 0 means the request never
// got a response.
func (c *PromCollector) RecordRequest(step string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(step, statusClass(status)).Inc()
	c.requestDuration.WithLabelValues(step).Observe(d.Seconds())
}

// RecordRate records one observation into an error-rate metric.
func (c *PromCollector) RecordRate(metric string, failed bool) {
	if c == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	c.rateObservations.WithLabelValues(metric, outcome).Inc()
}

// RecordCheck records one check evaluation.
func (c *PromCollector) RecordCheck(name string, passed bool) {
	if c == nil {
		return
	}
	c.checksTotal.WithLabelValues(name, strconv.FormatBool(passed)).Inc()
}

// SetVUs records the number of active virtual users.
func (c *PromCollector) SetVUs(n int) {
	if c == nil {
		return
	}
	c.activeVUs.Set(float64(n))
}

// IncIterations counts one completed iteration.
func (c *PromCollector) IncIterations() {
	if c == nil {
		return
	}
	c.iterationsTotal.Inc()
}

// Registry exposes the underlying Prometheus registry.
func (c *PromCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *PromCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "error"
	}
}
