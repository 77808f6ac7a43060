// cmd/boutiqueload/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/FairForge/boutiqueload/internal/config"
	"github.com/FairForge/boutiqueload/internal/logging"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the YAML configuration file",
		EnvVars: []string{"BOUTIQUELOAD_CONFIG"},
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log.level",
		Usage: "Log level: debug, info, warn, error",
	}
	logFormatFlag = &cli.StringFlag{
		Name:  "log.format",
		Usage: "Log format: json or console",
	}
)

// env carries what every command needs.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		return nil, err
	}
	if v := c.String(logLevelFlag.Name); v != "" {
		cfg.Log.Level = v
	}
	if v := c.String(logFormatFlag.Name); v != "" {
		cfg.Log.Format = v
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger}, nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "boutiqueload",
		Usage: "Load and availability testing for the Online Boutique storefront",
		Flags: []cli.Flag{
			configFlag,
			logLevelFlag,
			logFormatFlag,
		},
		Commands: []*cli.Command{
			runCommand,
			listCommand,
			validateCommand,
			exportCommand,
			monitorCommand,
		},
		// main decides the exit code.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			if msg := exitErr.Error(); msg != "" {
				fmt.Fprintln(os.Stderr, msg)
			}
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
