package probe

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/boutiqueload/internal/loadtest"
	"github.com/FairForge/boutiqueload/internal/metrics"
	"github.com/FairForge/boutiqueload/internal/scenario"
)

// Sleeper pauses for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the default Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Journey runs a scenario's steps once per iteration. It implements
// loadtest.Iterator.
type Journey struct {
	scenario *scenario.Scenario
	client   *Client
	checks   *CheckSet
	catalog  *scenario.Catalog
	sleep    Sleeper
	logger   *zap.Logger
	prom     *metrics.PromCollector

	errors   *metrics.Rate
	frontend *metrics.Rate
	backend  *metrics.Rate
}

// JourneyOption customises a Journey.
type JourneyOption func(*Journey)

// WithSleeper replaces the think-time sleeper.
func WithSleeper(s Sleeper) JourneyOption {
	return func(j *Journey) { j.sleep = s }
}

// WithCatalog replaces the product catalog.
func WithCatalog(c *scenario.Catalog) JourneyOption {
	return func(j *Journey) { j.catalog = c }
}

// WithPromCollector mirrors rate observations to Prometheus.
func WithPromCollector(p *metrics.PromCollector) JourneyOption {
	return func(j *Journey) { j.prom = p }
}

// NewJourney binds a scenario to a client. The scenario's error-rate metrics
// are registered in reg.
func NewJourney(sc *scenario.Scenario, client *Client, checks *CheckSet, reg *metrics.Registry,
	logger *zap.Logger, opts ...JourneyOption) *Journey {
	if logger == nil {
		logger = zap.NewNop()
	}
	sc.RegisterMetrics(reg)
	j := &Journey{
		scenario: sc,
		client:   client,
		checks:   checks,
		catalog:  scenario.DefaultCatalog(),
		sleep:    ContextSleep,
		logger:   logger,
		errors:   reg.Rate(metrics.Errors),
		frontend: reg.Rate(metrics.FrontendErrors),
		backend:  reg.Rate(metrics.BackendErrors),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Iterate runs every step once. Steps after a failed homepage are skipped;
// a skipped health step records a pass on backend_errors so a frontend
// outage is not blamed on the backend. Returns ctx.Err() when interrupted,
// in which case the interrupted step is not recorded.
func (j *Journey) Iterate(ctx context.Context, vu *loadtest.VU) error {
	frontendWorking := false

	for _, step := range j.scenario.Steps {
		if step.Gated() && !frontendWorking {
			j.skip(step)
		} else {
			ok, err := j.run(ctx, step, vu)
			if err != nil {
				return err
			}
			if step.Kind == scenario.KindHomepage {
				frontendWorking = ok
			}
		}

		if err := j.sleep(ctx, step.SleepAfter.Draw(vu.Rand)); err != nil {
			return err
		}
	}
	return nil
}

func (j *Journey) run(ctx context.Context, step scenario.Step, vu *loadtest.VU) (bool, error) {
	var productID string
	if step.Kind == scenario.KindProduct {
		productID = j.catalog.Pick(vu.Rand)
	}

	resp, err := j.client.Get(ctx, step.Name, step.Path(productID))
	if err != nil {
		return false, err
	}

	success := j.checks.Evaluate(step.Checks, resp)
	j.observe(step.Layer().ErrorMetric(), !success)
	j.observe(metrics.Errors, !success)

	if resp.Err != nil && step.Kind == scenario.KindHomepage && j.scenario.Verbose {
		j.logger.Warn("frontend connection failed",
			zap.Int("vu", vu.ID),
			zap.String("url", resp.URL),
			zap.Error(resp.Err))
	}
	return success, nil
}

func (j *Journey) skip(step scenario.Step) {
	if step.Kind != scenario.KindHealth {
		return
	}
	if j.scenario.Verbose {
		j.logger.Warn("frontend down, cannot test backend via HTTP")
	}
	j.observe(metrics.BackendErrors, false)
}

func (j *Journey) observe(name string, failed bool) {
	switch name {
	case metrics.Errors:
		j.errors.Add(failed)
	case metrics.FrontendErrors:
		j.frontend.Add(failed)
	case metrics.BackendErrors:
		j.backend.Add(failed)
	}
	j.prom.RecordRate(name, failed)
}
