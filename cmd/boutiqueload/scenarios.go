package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/FairForge/boutiqueload/internal/export"
	"github.com/FairForge/boutiqueload/internal/scenario"
)

var listCommand = &cli.Command{
	Name:  "list",
	Usage: "List built-in scenarios and those defined in --file",
	Flags: []cli.Flag{scenarioFileFlag},
	Action: func(c *cli.Context) error {
		scenarios := scenario.Builtin()
		if path := c.String(scenarioFileFlag.Name); path != "" {
			custom, err := scenario.LoadFile(path)
			if err != nil {
				return err
			}
			scenarios = append(scenarios, custom...)
		}
		writeScenarioTable(c.App.Writer, scenarios)
		return nil
	},
}

func writeScenarioTable(w io.Writer, scenarios []*scenario.Scenario) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Name", "Duration", "Max VUs", "Steps", "Description"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, sc := range scenarios {
		table.Append([]string{
			sc.Name,
			export.K6Duration(sc.TotalDuration()),
			strconv.Itoa(sc.MaxVUs()),
			strconv.Itoa(len(sc.Steps)),
			sc.Description,
		})
	}
	table.Render()
}

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Check scenario files against the schema and scenario rules",
	ArgsUsage: "<file>...",
	Action: func(c *cli.Context) error {
		if !c.Args().Present() {
			return cli.Exit("validate: at least one file is required", 2)
		}
		e, err := setup(c)
		if err != nil {
			return err
		}
		defer func() { _ = e.logger.Sync() }()

		failed := 0
		for _, path := range c.Args().Slice() {
			scenarios, err := scenario.LoadFile(path)
			if err != nil {
				failed++
				e.logger.Error("invalid scenario file", zap.String("path", path), zap.Error(err))
				continue
			}
			for _, sc := range scenarios {
				fmt.Fprintf(c.App.Writer, "%s: %s ok\n", path, sc.Name)
			}
		}
		if failed > 0 {
			return cli.Exit(fmt.Sprintf("%d of %d files invalid", failed, c.NArg()), 1)
		}
		return nil
	},
}

var exportCommand = &cli.Command{
	Name:      "export",
	Usage:     "Render scenarios as standalone k6 scripts",
	ArgsUsage: "[scenario]",
	Flags: []cli.Flag{
		scenarioFileFlag,
		targetFlag,
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output file, or directory with --all (default stdout)",
		},
		&cli.BoolFlag{
			Name:  "all",
			Usage: "Export every scenario as <name>-test.js into --output",
		},
	},
	Action: exportAction,
}

func exportAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()

	opts := export.Options{TargetURL: e.cfg.Target.URL}
	if c.IsSet(targetFlag.Name) {
		opts.TargetURL = c.String(targetFlag.Name)
	}
	file := c.String(scenarioFileFlag.Name)
	output := c.String("output")

	if !c.Bool("all") {
		name := c.Args().First()
		if name == "" && file == "" {
			name = e.cfg.Run.Scenario
		}
		sc, err := scenario.Resolve(name, file)
		if err != nil {
			return err
		}
		if output == "" {
			return export.K6ScriptWithOptions(c.App.Writer, sc, opts)
		}
		return exportFile(output, sc, opts)
	}

	if output == "" {
		return cli.Exit("export: --all requires --output directory", 2)
	}
	scenarios := scenario.Builtin()
	if file != "" {
		custom, err := scenario.LoadFile(file)
		if err != nil {
			return err
		}
		scenarios = custom
	}
	if err := os.MkdirAll(output, 0o755); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	for _, sc := range scenarios {
		path := filepath.Join(output, sc.Name+"-test.js")
		if err := exportFile(path, sc, opts); err != nil {
			return err
		}
		e.logger.Info("exported scenario", zap.String("scenario", sc.Name), zap.String("path", path))
	}
	return nil
}

func exportFile(path string, sc *scenario.Scenario, opts export.Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := export.K6ScriptWithOptions(f, sc, opts); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
