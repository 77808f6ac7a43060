// internal/metrics/sample.go
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Kind identifies how a metric aggregates its samples.
type Kind int

const (
	KindCounter Kind = iota
	KindGauge
	KindRate
	KindTrend
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindRate:
		return "rate"
	case KindTrend:
		return "trend"
	default:
		return "unknown"
	}
}

// Aggregation names a reduction over a metric's samples.
// Percentile is only meaningful when Name is AggPercentile.
type Aggregation struct {
	Name       string
	Percentile float64
}

// Aggregation names
const (
	AggCount      = "count"
	AggRate       = "rate"
	AggValue      = "value"
	AggAvg        = "avg"
	AggMin        = "min"
	AggMax        = "max"
	AggMed        = "med"
	AggPercentile = "p"
)

func (a Aggregation) String() string {
	if a.Name == AggPercentile {
		return "p(" + strconv.FormatFloat(a.Percentile, 'f', -1, 64) + ")"
	}
	return a.Name
}

// Supports reports whether the aggregation is defined for metrics of kind k.
func (a Aggregation) Supports(k Kind) bool {
	switch k {
	case KindCounter:
		return a.Name == AggCount || a.Name == AggRate
	case KindGauge:
		return a.Name == AggValue || a.Name == AggMin || a.Name == AggMax
	case KindRate:
		return a.Name == AggRate
	case KindTrend:
		switch a.Name {
		case AggAvg, AggMin, AggMax, AggMed:
			return true
		case AggPercentile:
			return a.Percentile >= 0 && a.Percentile <= 100
		}
	}
	return false
}

// Metric is a named, concurrency-safe sample sink.
type Metric interface {
	Name() string
	Kind() Kind
	// Aggregate reduces the samples. elapsed is the run duration and is only
	// used by counters to derive a per-second rate.
	Aggregate(agg Aggregation, elapsed time.Duration) (float64, error)
	// Values returns the aggregations shown in a run summary.
	Values(elapsed time.Duration) map[string]float64
}

func unsupported(m Metric, agg Aggregation) error {
	return fmt.Errorf("metrics: aggregation %s not supported by %s metric %q", agg, m.Kind(), m.Name())
}

// Counter accumulates a monotonically increasing sum.
type Counter struct {
	name  string
	mu    sync.Mutex
	value float64
}

func (c *Counter) Name() string { return c.name }
func (c *Counter) Kind() Kind   { return KindCounter }

// Add adds v to the counter. Negative values are ignored.
func (c *Counter) Add(v float64) {
	if v < 0 {
		return
	}
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.Add(1) }

// Count returns the accumulated sum.
func (c *Counter) Count() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *Counter) Aggregate(agg Aggregation, elapsed time.Duration) (float64, error) {
	switch agg.Name {
	case AggCount:
		return c.Count(), nil
	case AggRate:
		if elapsed <= 0 {
			return 0, nil
		}
		return c.Count() / elapsed.Seconds(), nil
	}
	return 0, unsupported(c, agg)
}

func (c *Counter) Values(elapsed time.Duration) map[string]float64 {
	rate, _ := c.Aggregate(Aggregation{Name: AggRate}, elapsed)
	return map[string]float64{AggCount: c.Count(), AggRate: rate}
}

// Gauge keeps the last value set along with the observed extremes.
type Gauge struct {
	name    string
	mu      sync.Mutex
	value   float64
	min     float64
	max     float64
	touched bool
}

func (g *Gauge) Name() string { return g.name }
func (g *Gauge) Kind() Kind   { return KindGauge }

// Set records the current value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = v
	if !g.touched || v < g.min {
		g.min = v
	}
	if !g.touched || v > g.max {
		g.max = v
	}
	g.touched = true
}

// Value returns the last value set.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

func (g *Gauge) Aggregate(agg Aggregation, _ time.Duration) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch agg.Name {
	case AggValue:
		return g.value, nil
	case AggMin:
		return g.min, nil
	case AggMax:
		return g.max, nil
	}
	return 0, unsupported(g, agg)
}

func (g *Gauge) Values(_ time.Duration) map[string]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return map[string]float64{AggValue: g.value, AggMin: g.min, AggMax: g.max}
}

// Rate tracks the fraction of non-zero observations.
type Rate struct {
	name    string
	mu      sync.Mutex
	nonZero int64
	total   int64
}

func (r *Rate) Name() string { return r.name }
func (r *Rate) Kind() Kind   { return KindRate }

// Add records one observation.
func (r *Rate) Add(nonZero bool) {
	r.mu.Lock()
	if nonZero {
		r.nonZero++
	}
	r.total++
	r.mu.Unlock()
}

// Counts returns the non-zero and total observation counts.
func (r *Rate) Counts() (nonZero, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nonZero, r.total
}

// Value returns nonZero/total, or 0 with no observations.
func (r *Rate) Value() float64 {
	nz, total := r.Counts()
	if total == 0 {
		return 0
	}
	return float64(nz) / float64(total)
}

func (r *Rate) Aggregate(agg Aggregation, _ time.Duration) (float64, error) {
	if agg.Name != AggRate {
		return 0, unsupported(r, agg)
	}
	return r.Value(), nil
}

func (r *Rate) Values(_ time.Duration) map[string]float64 {
	nz, total := r.Counts()
	v := 0.0
	if total > 0 {
		v = float64(nz) / float64(total)
	}
	return map[string]float64{AggRate: v, "passes": float64(nz), "fails": float64(total - nz)}
}

// Trend keeps every sample so arbitrary percentiles can be computed at the end
// of a run. Durations are stored in milliseconds.
type Trend struct {
	name    string
	mu      sync.Mutex
	samples []float64
	sorted  bool
	sum     float64
}

func (t *Trend) Name() string { return t.name }
func (t *Trend) Kind() Kind   { return KindTrend }

// Add records one sample.
func (t *Trend) Add(v float64) {
	t.mu.Lock()
	t.samples = append(t.samples, v)
	t.sum += v
	t.sorted = false
	t.mu.Unlock()
}

// AddDuration records d in milliseconds.
func (t *Trend) AddDuration(d time.Duration) {
	t.Add(float64(d) / float64(time.Millisecond))
}

// Len returns the number of samples.
func (t *Trend) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}

// sortLocked must be called with t.mu held.
func (t *Trend) sortLocked() {
	if !t.sorted {
		sort.Float64s(t.samples)
		t.sorted = true
	}
}

// Percentile returns the p-th percentile (0-100) using linear interpolation
// between closest ranks.
func (t *Trend) Percentile(p float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sortLocked()
	return Percentile(t.samples, p)
}

func (t *Trend) Aggregate(agg Aggregation, _ time.Duration) (float64, error) {
	if !agg.Supports(KindTrend) {
		return 0, unsupported(t, agg)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.samples)
	if n == 0 {
		return 0, nil
	}
	t.sortLocked()
	switch agg.Name {
	case AggAvg:
		return t.sum / float64(n), nil
	case AggMin:
		return t.samples[0], nil
	case AggMax:
		return t.samples[n-1], nil
	case AggMed:
		return Percentile(t.samples, 50), nil
	default:
		return Percentile(t.samples, agg.Percentile), nil
	}
}

// SummaryAggregations are the trend columns printed in run summaries.
var SummaryAggregations = []Aggregation{
	{Name: AggAvg},
	{Name: AggMin},
	{Name: AggMed},
	{Name: AggMax},
	{Name: AggPercentile, Percentile: 90},
	{Name: AggPercentile, Percentile: 95},
}

func (t *Trend) Values(elapsed time.Duration) map[string]float64 {
	out := make(map[string]float64, len(SummaryAggregations))
	for _, agg := range SummaryAggregations {
		v, _ := t.Aggregate(agg, elapsed)
		out[agg.String()] = v
	}
	return out
}

// Percentile computes the p-th percentile of an ascending slice.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 || p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}
