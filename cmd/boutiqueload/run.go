package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/FairForge/boutiqueload/internal/config"
	"github.com/FairForge/boutiqueload/internal/metrics"
	"github.com/FairForge/boutiqueload/internal/probe"
	"github.com/FairForge/boutiqueload/internal/report"
	"github.com/FairForge/boutiqueload/internal/runner"
	"github.com/FairForge/boutiqueload/internal/scenario"
	"github.com/FairForge/boutiqueload/internal/store"
)

// deliveryTimeout bounds writing the summary after an interrupted run.
const deliveryTimeout = 30 * time.Second

var (
	scenarioFlag = &cli.StringFlag{
		Name:    "scenario",
		Aliases: []string{"s"},
		Usage:   "Scenario to run (smoke, load, spike, stress, or a name from --file)",
	}
	scenarioFileFlag = &cli.StringFlag{
		Name:    "file",
		Aliases: []string{"f"},
		Usage:   "YAML file with custom scenarios",
	}
	targetFlag = &cli.StringFlag{
		Name:    "target",
		Aliases: []string{"t"},
		Usage:   "Frontend base URL (overrides TARGET_URL)",
	}
	outFlag = &cli.StringSliceFlag{
		Name:    "out",
		Aliases: []string{"o"},
		Usage:   "Summary output: stdout, json, file:<path>[.gz] or s3://bucket/key (repeatable)",
	}
	seedFlag = &cli.Int64Flag{
		Name:  "seed",
		Usage: "Seed for product picks and think times (0 = random)",
	}
	rateLimitFlag = &cli.Float64Flag{
		Name:  "rate-limit",
		Usage: "Cap on requests per second across all VUs (0 = unlimited)",
	}
	metricsAddrFlag = &cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "Serve live Prometheus metrics on this address during the run",
	}
	noColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colors in the text summary",
	}
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run a load-test scenario against the storefront",
	ArgsUsage: "[scenario]",
	Flags: []cli.Flag{
		scenarioFlag,
		scenarioFileFlag,
		targetFlag,
		outFlag,
		seedFlag,
		rateLimitFlag,
		metricsAddrFlag,
		noColorFlag,
	},
	Action: runAction,
}

func runAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()

	cfg := e.cfg
	switch {
	case c.Args().Present():
		cfg.Run.Scenario = c.Args().First()
	case c.IsSet(scenarioFlag.Name):
		cfg.Run.Scenario = c.String(scenarioFlag.Name)
	case c.IsSet(scenarioFileFlag.Name):
		cfg.Run.Scenario = ""
	}
	if c.IsSet(scenarioFileFlag.Name) {
		cfg.Run.ScenarioFile = c.String(scenarioFileFlag.Name)
	}
	if c.IsSet(targetFlag.Name) {
		cfg.Target.URL = c.String(targetFlag.Name)
	}
	if c.IsSet(outFlag.Name) {
		cfg.Run.Outputs = c.StringSlice(outFlag.Name)
	}
	if c.IsSet(seedFlag.Name) {
		cfg.Run.Seed = c.Int64(seedFlag.Name)
	}
	if c.IsSet(rateLimitFlag.Name) {
		cfg.Target.RateLimit = c.Float64(rateLimitFlag.Name)
	}
	if c.IsSet(metricsAddrFlag.Name) {
		cfg.Run.MetricsAddr = c.String(metricsAddrFlag.Name)
	}
	if c.Bool(noColorFlag.Name) {
		cfg.Run.NoColor = true
	}

	sc, err := scenario.Resolve(cfg.Run.Scenario, cfg.Run.ScenarioFile)
	if err != nil {
		return err
	}

	ctx := c.Context
	runID := uuid.New().String()
	logger := e.logger.With(zap.String("run_id", runID))

	sinks, err := buildSinks(ctx, c, e, logger)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	var prom *metrics.PromCollector
	if cfg.Run.MetricsAddr != "" {
		prom = metrics.NewPromCollector(sc.Name)
		srv := serveMetrics(cfg.Run.MetricsAddr, prom, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	r, err := runner.New(runner.Options{
		Scenario: sc,
		Client: probe.Config{
			BaseURL:   cfg.Target.URL,
			Timeout:   cfg.Target.Timeout,
			MaxConns:  cfg.Target.MaxConns,
			RateLimit: cfg.Target.RateLimit,
			Burst:     cfg.Target.Burst,
			UserAgent: cfg.Target.UserAgent,
		},
		RunID:  runID,
		Seed:   cfg.Run.Seed,
		Prom:   prom,
		Logger: e.logger,
	})
	if err != nil {
		return err
	}

	logger.Info("starting load test",
		zap.String("scenario", sc.Name),
		zap.String("target", cfg.Target.URL),
		zap.Duration("duration", sc.TotalDuration()),
		zap.Int("max_vus", sc.MaxVUs()))

	summary, runErr := r.Execute(ctx)
	if summary == nil {
		return runErr
	}

	// The run context may already be canceled; delivery gets its own.
	deliverCtx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	var errs []error
	for _, sink := range sinks {
		if err := sink.Write(deliverCtx, summary); err != nil {
			errs = append(errs, fmt.Errorf("output %s: %w", sink, err))
		}
	}
	if rec, err := summary.Record(); err != nil {
		errs = append(errs, err)
	} else if err := st.SaveRun(deliverCtx, rec); err != nil {
		errs = append(errs, fmt.Errorf("save run: %w", err))
	}
	for _, err := range errs {
		logger.Error("failed to deliver summary", zap.Error(err))
	}

	switch {
	case !summary.Passed:
		return cli.Exit(fmt.Sprintf("thresholds crossed: %d of %d",
			len(summary.FailedThresholds()), len(summary.Thresholds)), report.ExitThresholdsFailed)
	case runErr != nil:
		return cli.Exit("run interrupted", 1)
	case len(errs) > 0:
		return cli.Exit(errors.Join(errs...).Error(), 1)
	}
	return nil
}

func buildSinks(ctx context.Context, c *cli.Context, e *env, logger *zap.Logger) ([]report.Sink, error) {
	opts := report.SinkOptions{
		Stdout: c.App.Writer,
		Text:   report.Options{Indent: " ", Colors: !e.cfg.Run.NoColor},
		S3: report.S3Options{
			Region:    e.cfg.Report.S3Region,
			Endpoint:  e.cfg.Report.S3Endpoint,
			AccessKey: e.cfg.Report.S3AccessKey,
			SecretKey: e.cfg.Report.S3SecretKey,
			PathStyle: e.cfg.Report.S3PathStyle,
		},
		Logger: logger,
	}
	outputs := e.cfg.Run.Outputs
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	sinks := make([]report.Sink, 0, len(outputs))
	for _, spec := range outputs {
		sink, err := report.ParseSink(ctx, spec, opts)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	return sinks, nil
}

func serveMetrics(addr string, prom *metrics.PromCollector, logger *zap.Logger) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", prom.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

// openStore returns Postgres when a DSN is configured and an in-memory store
// otherwise.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.Store, error) {
	if cfg.DSN == "" {
		return store.NewMemory(cfg.Capacity), nil
	}
	pg, err := store.NewPostgres(store.PostgresConfig{DSN: cfg.DSN})
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pg.Ping(pingCtx); err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if err := pg.CreateTables(pingCtx); err != nil {
		_ = pg.Close()
		return nil, err
	}
	logger.Info("persisting results to postgres")
	return pg, nil
}
