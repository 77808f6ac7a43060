package loadtest

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/boutiqueload/internal/metrics"
	"github.com/FairForge/boutiqueload/internal/scenario"
)

// DefaultTickInterval is how often the controller reconciles the VU count.
const DefaultTickInterval = 100 * time.Millisecond

// ErrAlreadyRunning is returned when Run is called on a busy executor.
var ErrAlreadyRunning = errors.New("loadtest: executor already running")

// VU is the per-virtual-user state handed to every iteration.
type VU struct {
	ID        int
	Iteration int64
	Rand      *rand.Rand
}

// Iterator runs one iteration for a virtual user. The context is canceled when
// the VU is interrupted; an iteration that returns after that is not counted.
type Iterator interface {
	Iterate(ctx context.Context, vu *VU) error
}

// IteratorFunc adapts a function to Iterator.
type IteratorFunc func(ctx context.Context, vu *VU) error

// Iterate calls f.
func (f IteratorFunc) Iterate(ctx context.Context, vu *VU) error { return f(ctx, vu) }

// Config defines the ramping schedule.
type Config struct {
	Name             string
	Stages           []scenario.Stage
	StartVUs         int
	GracefulRampDown time.Duration
	GracefulStop     time.Duration
	TickInterval     time.Duration
	// Seed seeds the per-VU random sources. Zero uses the clock.
	Seed int64
}

// ConfigFromScenario copies the schedule of s.
func ConfigFromScenario(s *scenario.Scenario) *Config {
	return &Config{
		Name:             s.Name,
		Stages:           s.Stages,
		StartVUs:         s.StartVUs,
		GracefulRampDown: s.GracefulRampDown,
		GracefulStop:     s.GracefulStop,
		TickInterval:     DefaultTickInterval,
	}
}

// RunInfo describes a finished run.
type RunInfo struct {
	Name        string        `json:"name"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
	Iterations  int64         `json:"iterations"`
	Interrupted int64         `json:"interrupted_iterations"`
	MaxVUs      int           `json:"max_vus"`
	PeakVUs     int           `json:"peak_vus"`
	Aborted     bool          `json:"aborted"`
}

type vuHandle struct {
	vu       *VU
	cancel   context.CancelFunc
	stop     chan struct{}
	stopOnce sync.Once
}

func (h *vuHandle) requestStop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Executor runs an Iterator under a ramping virtual-user schedule.
type Executor struct {
	config   *Config
	iterator Iterator
	registry *metrics.Registry
	prom     *metrics.PromCollector
	logger   *zap.Logger

	iterations   *metrics.Counter
	iterDuration *metrics.Trend
	vus          *metrics.Gauge
	vusMax       *metrics.Gauge

	// State
	mu          sync.Mutex
	running     bool
	startTime   time.Time
	nextID      int
	active      []*vuHandle
	all         []*vuHandle
	live        atomic.Int64
	peak        atomic.Int64
	completed   atomic.Int64
	interrupted atomic.Int64
	wg          sync.WaitGroup
}

// NewExecutor creates an executor. prom may be nil.
func NewExecutor(config *Config, iterator Iterator, registry *metrics.Registry,
	prom *metrics.PromCollector, logger *zap.Logger) *Executor {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		config:       config,
		iterator:     iterator,
		registry:     registry,
		prom:         prom,
		logger:       logger,
		iterations:   registry.Counter(metrics.Iterations),
		iterDuration: registry.Trend(metrics.IterationDuration),
		vus:          registry.Gauge(metrics.VUs),
		vusMax:       registry.Gauge(metrics.VUsMax),
	}
}

// Run executes the whole schedule. When ctx is canceled every VU is
// interrupted and Run returns the partial RunInfo together with ctx.Err().
func (e *Executor) Run(ctx context.Context) (*RunInfo, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.running = true
	e.startTime = time.Now()
	e.active = nil
	e.all = nil
	e.nextID = 0
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.completed.Store(0)
	e.interrupted.Store(0)
	e.peak.Store(0)

	maxVUs := e.maxVUs()
	e.vusMax.Set(float64(maxVUs))

	seed := e.config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	total := e.totalDuration()
	e.logger.Info("load test starting",
		zap.String("name", e.config.Name),
		zap.Duration("duration", total),
		zap.Int("max_vus", maxVUs))

	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	var runErr error
	e.reconcile(ctx, 0, seed)
loop:
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		case <-ticker.C:
			elapsed := time.Since(e.startTime)
			if elapsed >= total {
				break loop
			}
			e.reconcile(ctx, elapsed, seed)
		}
	}

	if runErr != nil {
		e.cancelAll()
		e.wg.Wait()
	} else {
		e.drain(ctx)
	}
	e.publishVUs()

	end := time.Now()
	info := &RunInfo{
		Name:        e.config.Name,
		StartTime:   e.startTime,
		EndTime:     end,
		Duration:    end.Sub(e.startTime),
		Iterations:  e.completed.Load(),
		Interrupted: e.interrupted.Load(),
		MaxVUs:      maxVUs,
		PeakVUs:     int(e.peak.Load()),
		Aborted:     runErr != nil,
	}

	e.logger.Info("load test finished",
		zap.String("name", info.Name),
		zap.Duration("elapsed", info.Duration),
		zap.Int64("iterations", info.Iterations),
		zap.Int64("interrupted", info.Interrupted),
		zap.Bool("aborted", info.Aborted))

	return info, runErr
}

// reconcile starts or gracefully stops VUs so the active count matches the
// schedule at elapsed.
func (e *Executor) reconcile(ctx context.Context, elapsed time.Duration, seed int64) {
	target := TargetAt(e.config.Stages, e.config.StartVUs, elapsed)

	e.mu.Lock()
	for len(e.active) < target {
		e.nextID++
		h := e.spawn(ctx, e.nextID, seed)
		e.active = append(e.active, h)
		e.all = append(e.all, h)
	}
	for len(e.active) > target {
		h := e.active[len(e.active)-1]
		e.active = e.active[:len(e.active)-1]
		h.requestStop()
		time.AfterFunc(e.config.GracefulRampDown, h.cancel)
	}
	e.mu.Unlock()

	e.publishVUs()
}

func (e *Executor) spawn(parent context.Context, id int, seed int64) *vuHandle {
	ctx, cancel := context.WithCancel(parent)
	h := &vuHandle{
		vu:     &VU{ID: id, Rand: rand.New(rand.NewSource(seed + int64(id)))},
		cancel: cancel,
		stop:   make(chan struct{}),
	}

	n := e.live.Add(1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.live.Add(-1)
		defer cancel()
		e.loop(ctx, h)
	}()
	return h
}

func (e *Executor) loop(ctx context.Context, h *vuHandle) {
	for {
		select {
		case <-h.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		err := e.iterator.Iterate(ctx, h.vu)
		if ctx.Err() != nil {
			e.interrupted.Add(1)
			return
		}
		if err != nil {
			e.logger.Debug("iteration error",
				zap.Int("vu", h.vu.ID),
				zap.Int64("iteration", h.vu.Iteration),
				zap.Error(err))
		}

		e.iterations.Inc()
		e.iterDuration.AddDuration(time.Since(start))
		e.prom.IncIterations()
		e.completed.Add(1)
		h.vu.Iteration++
	}
}

// drain asks every remaining VU to finish its iteration and interrupts the
// ones still busy after GracefulStop.
func (e *Executor) drain(ctx context.Context) {
	e.mu.Lock()
	for _, h := range e.active {
		h.requestStop()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(e.config.GracefulStop)
	defer timer.Stop()

	select {
	case <-done:
		return
	case <-timer.C:
		e.logger.Warn("graceful stop expired, interrupting VUs",
			zap.Int64("vus", e.live.Load()))
	case <-ctx.Done():
	}
	e.cancelAll()
	<-done
}

func (e *Executor) cancelAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, h := range e.all {
		h.cancel()
	}
}

func (e *Executor) publishVUs() {
	n := int(e.live.Load())
	e.vus.Set(float64(n))
	e.prom.SetVUs(n)
}

func (e *Executor) totalDuration() time.Duration {
	var total time.Duration
	for _, st := range e.config.Stages {
		total += st.Duration
	}
	return total
}

func (e *Executor) maxVUs() int {
	max := e.config.StartVUs
	for _, st := range e.config.Stages {
		if st.Target > max {
			max = st.Target
		}
	}
	return max
}

// IsRunning returns whether a run is in progress.
func (e *Executor) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// ActiveVUs returns the number of VU goroutines currently alive, including
// ones finishing their last iteration.
func (e *Executor) ActiveVUs() int {
	return int(e.live.Load())
}

// CurrentStats returns real-time progress during a run.
func (e *Executor) CurrentStats() (iterations int64, vus int, elapsed time.Duration) {
	e.mu.Lock()
	start := e.startTime
	e.mu.Unlock()
	if !start.IsZero() {
		elapsed = time.Since(start)
	}
	return e.completed.Load(), e.ActiveVUs(), elapsed
}
