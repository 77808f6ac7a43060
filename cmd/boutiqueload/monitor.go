package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FairForge/boutiqueload/internal/availability"
	"github.com/FairForge/boutiqueload/internal/config"
)

var monitorCommand = &cli.Command{
	Name:  "monitor",
	Usage: "Run the cart availability tests on an interval and serve their status",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "listen",
			Usage: "Address for the dashboard and API (default from config, :5000)",
		},
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "Time between test runs (overrides TEST_INTERVAL)",
		},
		&cli.BoolFlag{
			Name:  "once",
			Usage: "Run the tests once, print the status and exit",
		},
	},
	Action: monitorAction,
}

func monitorAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()

	cfg := e.cfg
	if c.IsSet("listen") {
		cfg.Monitor.Listen = c.String("listen")
	}
	if c.IsSet("interval") {
		cfg.Monitor.Interval = c.Duration("interval")
	}

	ctx := c.Context
	logger := e.logger.With(zap.String("component", "availability"))

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	tester := availability.NewTester(availability.Config{
		FrontendURL: cfg.Monitor.FrontendURL,
		CartURL:     cfg.Monitor.CartURL,
		Services:    cfg.Monitor.Services,
	}, logger)
	m := availability.NewMetrics()
	mon := availability.NewMonitor(tester, st, m, cfg.Monitor.Interval, logger)

	if c.Bool("once") {
		status, err := mon.RunOnce(ctx)
		if err != nil {
			logger.Error("failed to save results", zap.Error(err))
		}
		fmt.Fprintf(c.App.Writer, "%s: %d/%d passed\n", status.Status, status.PassedTests, status.TotalTests)
		if status.Status != availability.HealthHealthy {
			return cli.Exit("", 1)
		}
		return nil
	}

	srv := &http.Server{
		Addr:              cfg.Monitor.Listen,
		Handler:           availability.NewAPIHandler(mon, m, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting availability monitor",
		zap.String("listen", cfg.Monitor.Listen),
		zap.String("frontend", cfg.Monitor.FrontendURL),
		zap.String("cart", cfg.Monitor.CartURL),
		zap.Duration("interval", mon.Interval()),
		zap.Strings("tests", tester.Cases()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("monitor: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return mon.Run(gctx)
	})
	if path := c.String(configFlag.Name); path != "" {
		g.Go(func() error {
			return config.Watch(gctx, path, logger, func(next *config.Config) {
				mon.SetInterval(next.Monitor.Interval)
			})
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("availability monitor stopped")
	return nil
}
