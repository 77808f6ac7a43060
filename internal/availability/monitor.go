package availability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/boutiqueload/internal/store"
)

// Monitor runs the tester on an interval, keeps the latest Status and
// persists every result.
type Monitor struct {
	tester  *Tester
	state   *State
	store   store.Store
	metrics *Metrics
	logger  *zap.Logger

	runMu    sync.Mutex
	interval atomic.Int64
	reset    chan struct{}
	now      func() time.Time
}

// NewMonitor wires a monitor. st and m may be nil.
func NewMonitor(tester *Tester, st store.Store, m *Metrics, interval time.Duration, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	mon := &Monitor{
		tester:  tester,
		state:   NewState(),
		store:   st,
		metrics: m,
		logger:  logger,
		reset:   make(chan struct{}, 1),
		now:     time.Now,
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	mon.interval.Store(int64(interval))
	return mon
}

// State returns the monitor's status holder.
func (m *Monitor) State() *State { return m.state }

// Interval returns the current pause between runs.
func (m *Monitor) Interval() time.Duration {
	return time.Duration(m.interval.Load())
}

// SetInterval changes the pause between runs; the next wait uses it.
// Non-positive values reset to DefaultInterval.
func (m *Monitor) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultInterval
	}
	if time.Duration(m.interval.Swap(int64(d))) == d {
		return
	}
	select {
	case m.reset <- struct{}{}:
	default:
	}
}

// RunOnce executes the suite, updates the state and saves each result. Runs
// are serialized. The returned Status is valid even when saving fails.
func (m *Monitor) RunOnce(ctx context.Context) (Status, error) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	m.logger.Info("starting availability test", zap.Strings("cases", m.tester.Cases()))

	results := m.tester.Run(ctx)
	status := m.state.Record(m.now(), results)
	m.metrics.Observe(status)

	var errs []error
	if m.store != nil {
		for _, r := range results {
			if err := m.store.SaveCheck(ctx, r.Record()); err != nil {
				errs = append(errs, fmt.Errorf("availability: save %s: %w", r.TestName, err))
			}
		}
	}

	m.logger.Info("availability test completed",
		zap.String("status", status.Status),
		zap.Int("passed", status.PassedTests),
		zap.Int("failed", status.FailedTests),
		zap.Float64("uptime", status.UptimePercentage))

	return status, errors.Join(errs...)
}

// Run tests immediately and then once per interval until ctx ends.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		if _, err := m.RunOnce(ctx); err != nil {
			m.logger.Error("error running periodic test", zap.Error(err))
		}
		if !m.wait(ctx) {
			return nil
		}
	}
}

// wait sleeps for one interval, restarting the wait whenever it changes.
func (m *Monitor) wait(ctx context.Context) bool {
	for {
		timer := time.NewTimer(m.Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-m.reset:
			timer.Stop()
			m.logger.Info("test interval changed", zap.Duration("interval", m.Interval()))
		case <-timer.C:
			return true
		}
	}
}

// History returns up to n persisted results, newest first.
func (m *Monitor) History(ctx context.Context, n int) ([]store.CheckRecord, error) {
	if m.store == nil {
		return []store.CheckRecord{}, nil
	}
	return m.store.RecentChecks(ctx, n)
}
