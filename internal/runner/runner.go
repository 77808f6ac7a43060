// Package runner wires a scenario, the probe journey and the ramping executor
// into one load-test run and turns the outcome into a report summary.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/boutiqueload/internal/loadtest"
	"github.com/FairForge/boutiqueload/internal/metrics"
	"github.com/FairForge/boutiqueload/internal/probe"
	"github.com/FairForge/boutiqueload/internal/report"
	"github.com/FairForge/boutiqueload/internal/scenario"
	"github.com/FairForge/boutiqueload/internal/threshold"
)

// Options configures one run.
type Options struct {
	Scenario *scenario.Scenario
	Client   probe.Config
	// RunID defaults to a fresh UUID.
	RunID   string
	Seed    int64
	Catalog *scenario.Catalog
	Prom    *metrics.PromCollector
	// Sleeper replaces think-time pauses, mostly for tests.
	Sleeper      probe.Sleeper
	TickInterval time.Duration
	Logger       *zap.Logger
}

// Run is a prepared load test.
type Run struct {
	id       string
	scenario *scenario.Scenario
	target   string
	registry *metrics.Registry
	checks   *probe.CheckSet
	executor *loadtest.Executor
	ths      []*threshold.Threshold
	logger   *zap.Logger
}

// New validates the scenario and builds every component of the run.
func New(opts Options) (*Run, error) {
	if opts.Scenario == nil {
		return nil, errors.New("runner: scenario is required")
	}
	if err := opts.Scenario.Validate(); err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	ths, err := opts.Scenario.ParsedThresholds()
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	logger := opts.Logger.With(zap.String("run_id", opts.RunID), zap.String("scenario", opts.Scenario.Name))

	reg := metrics.NewRegistry()
	checks := probe.NewCheckSet(reg, opts.Prom)
	client := probe.NewClient(opts.Client, reg, opts.Prom, logger)

	jopts := []probe.JourneyOption{probe.WithPromCollector(opts.Prom)}
	if opts.Catalog != nil {
		jopts = append(jopts, probe.WithCatalog(opts.Catalog))
	}
	if opts.Sleeper != nil {
		jopts = append(jopts, probe.WithSleeper(opts.Sleeper))
	}
	journey := probe.NewJourney(opts.Scenario, client, checks, reg, logger, jopts...)

	cfg := loadtest.ConfigFromScenario(opts.Scenario)
	cfg.Seed = opts.Seed
	if opts.TickInterval > 0 {
		cfg.TickInterval = opts.TickInterval
	}

	return &Run{
		id:       opts.RunID,
		scenario: opts.Scenario,
		target:   client.BaseURL(),
		registry: reg,
		checks:   checks,
		executor: loadtest.NewExecutor(cfg, journey, reg, opts.Prom, logger),
		ths:      ths,
		logger:   logger,
	}, nil
}

// ID returns the run id.
func (r *Run) ID() string { return r.id }

// Registry exposes the run's metrics.
func (r *Run) Registry() *metrics.Registry { return r.registry }

// Progress reports completed iterations, live VUs and elapsed time.
func (r *Run) Progress() (int64, int, time.Duration) {
	return r.executor.CurrentStats()
}

// Execute runs the schedule and evaluates thresholds. An interrupted run
// still yields a summary of what was measured, together with ctx.Err().
func (r *Run) Execute(ctx context.Context) (*report.Summary, error) {
	info, runErr := r.executor.Run(ctx)
	if info == nil {
		return nil, runErr
	}

	results := threshold.Evaluate(r.ths, r.registry, info.Duration)
	for _, res := range threshold.Failed(results) {
		r.logger.Warn("threshold crossed",
			zap.String("threshold", res.Threshold.String()),
			zap.Float64("actual", res.Actual),
			zap.Error(res.Err))
	}

	summary := report.Build(report.Run{
		ID:       r.id,
		Scenario: r.scenario.Name,
		Target:   r.target,
		Info:     info,
	}, r.registry, r.checks.Counts(), results)
	return summary, runErr
}
