package availability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports the monitor's results. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	up                  prometheus.Gauge
	uptime              prometheus.Gauge
	consecutiveFailures prometheus.Gauge
	lastRun             prometheus.Gauge
	runsTotal           *prometheus.CounterVec
	casesTotal          *prometheus.CounterVec
	caseDuration        *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boutiqueload_availability_up",
			Help: "1 when the last availability run was healthy",
		}),
		uptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boutiqueload_availability_uptime_percentage",
			Help: "Uptime estimate derived from consecutive failures",
		}),
		consecutiveFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boutiqueload_availability_consecutive_failures",
			Help: "Number of failing runs in a row",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boutiqueload_availability_last_run_timestamp_seconds",
			Help: "Unix time of the last availability run",
		}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boutiqueload_availability_runs_total",
			Help: "Availability runs by overall status",
		}, []string{"status"}),
		casesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boutiqueload_availability_cases_total",
			Help: "Availability test cases by name and status",
		}, []string{"test", "status"}),
		caseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boutiqueload_availability_case_duration_seconds",
			Help:    "Availability test case duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"test"}),
	}

	m.registry.MustRegister(
		m.up, m.uptime, m.consecutiveFailures, m.lastRun,
		m.runsTotal, m.casesTotal, m.caseDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe records one finished run.
func (m *Metrics) Observe(s Status) {
	if m == nil {
		return
	}
	if s.Status == HealthHealthy {
		m.up.Set(1)
	} else {
		m.up.Set(0)
	}
	m.uptime.Set(s.UptimePercentage)
	m.consecutiveFailures.Set(float64(s.ConsecutiveFailures))
	if s.LastRun != nil {
		m.lastRun.Set(float64(s.LastRun.Unix()))
	}
	m.runsTotal.WithLabelValues(s.Status).Inc()
	for _, r := range s.TestDetails {
		m.casesTotal.WithLabelValues(r.TestName, r.Status).Inc()
		m.caseDuration.WithLabelValues(r.TestName).Observe(r.Duration)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
