// internal/metrics/registry.go
package metrics

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Built-in metric names, matching the names load-testing tools use so threshold
// expressions written for them carry over unchanged.
const (
	HTTPReqs          = "http_reqs"
	HTTPReqDuration   = "http_req_duration"
	HTTPReqFailed     = "http_req_failed"
	Iterations        = "iterations"
	IterationDuration = "iteration_duration"
	Checks            = "checks"
	DataReceived      = "data_received"
	VUs               = "vus"
	VUsMax            = "vus_max"
)

// Error-rate metrics recorded by the boutique journey.
const (
	Errors         = "errors"
	FrontendErrors = "frontend_errors"
	BackendErrors  = "backend_errors"
)

var (
	// ErrUnknownMetric is returned when a name has not been registered.
	ErrUnknownMetric = errors.New("metrics: unknown metric")
	// ErrKindMismatch is returned when a name is reused with a different kind.
	ErrKindMismatch = errors.New("metrics: metric registered with a different kind")
)

// Registry owns every metric of one run.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
}

// NewRegistry creates a registry pre-populated with the built-in metrics.
func NewRegistry() *Registry {
	r := &Registry{metrics: make(map[string]Metric)}
	r.Counter(HTTPReqs)
	r.Trend(HTTPReqDuration)
	r.Rate(HTTPReqFailed)
	r.Counter(Iterations)
	r.Trend(IterationDuration)
	r.Rate(Checks)
	r.Counter(DataReceived)
	r.Gauge(VUs)
	r.Gauge(VUsMax)
	return r
}

func (r *Registry) getOrCreate(name string, kind Kind, create func() Metric) (Metric, error) {
	r.mu.RLock()
	m, ok := r.metrics[name]
	r.mu.RUnlock()
	if !ok {
		r.mu.Lock()
		if m, ok = r.metrics[name]; !ok {
			m = create()
			r.metrics[name] = m
		}
		r.mu.Unlock()
	}
	if m.Kind() != kind {
		return nil, fmt.Errorf("%w: %q is a %s, not a %s", ErrKindMismatch, name, m.Kind(), kind)
	}
	return m, nil
}

// NewCounter returns the counter registered under name, creating it if needed.
func (r *Registry) NewCounter(name string) (*Counter, error) {
	m, err := r.getOrCreate(name, KindCounter, func() Metric { return &Counter{name: name} })
	if err != nil {
		return nil, err
	}
	return m.(*Counter), nil
}

// NewGauge returns the gauge registered under name, creating it if needed.
func (r *Registry) NewGauge(name string) (*Gauge, error) {
	m, err := r.getOrCreate(name, KindGauge, func() Metric { return &Gauge{name: name} })
	if err != nil {
		return nil, err
	}
	return m.(*Gauge), nil
}

// NewRate returns the rate registered under name, creating it if needed.
func (r *Registry) NewRate(name string) (*Rate, error) {
	m, err := r.getOrCreate(name, KindRate, func() Metric { return &Rate{name: name} })
	if err != nil {
		return nil, err
	}
	return m.(*Rate), nil
}

// NewTrend returns the trend registered under name, creating it if needed.
func (r *Registry) NewTrend(name string) (*Trend, error) {
	m, err := r.getOrCreate(name, KindTrend, func() Metric { return &Trend{name: name} })
	if err != nil {
		return nil, err
	}
	return m.(*Trend), nil
}

// Counter is like NewCounter but panics on a kind mismatch.
func (r *Registry) Counter(name string) *Counter {
	c, err := r.NewCounter(name)
	if err != nil {
		panic(err)
	}
	return c
}

// Gauge is like NewGauge but panics on a kind mismatch.
func (r *Registry) Gauge(name string) *Gauge {
	g, err := r.NewGauge(name)
	if err != nil {
		panic(err)
	}
	return g
}

// Rate is like NewRate but panics on a kind mismatch.
func (r *Registry) Rate(name string) *Rate {
	rt, err := r.NewRate(name)
	if err != nil {
		panic(err)
	}
	return rt
}

// Trend is like NewTrend but panics on a kind mismatch.
func (r *Registry) Trend(name string) *Trend {
	t, err := r.NewTrend(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns a registered metric.
func (r *Registry) Lookup(name string) (Metric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metrics[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
	return m, nil
}

// Names returns the registered names in alphabetical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// MetricSnapshot is the summary view of one metric.
type MetricSnapshot struct {
	Name   string             `json:"name"`
	Kind   string             `json:"type"`
	Values map[string]float64 `json:"values"`
}

// Snapshot returns the summary view of every metric that has recorded anything,
// alphabetically.
func (r *Registry) Snapshot(elapsed time.Duration) []MetricSnapshot {
	names := r.Names()
	out := make([]MetricSnapshot, 0, len(names))
	for _, name := range names {
		m, err := r.Lookup(name)
		if err != nil || empty(m) {
			continue
		}
		out = append(out, MetricSnapshot{
			Name:   name,
			Kind:   m.Kind().String(),
			Values: m.Values(elapsed),
		})
	}
	return out
}

func empty(m Metric) bool {
	switch v := m.(type) {
	case *Counter:
		return v.Count() == 0
	case *Rate:
		_, total := v.Counts()
		return total == 0
	case *Trend:
		return v.Len() == 0
	case *Gauge:
		v.mu.Lock()
		defer v.mu.Unlock()
		return !v.touched
	}
	return false
}
