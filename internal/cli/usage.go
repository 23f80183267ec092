package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tobert/tracestat/internal/report"
	"github.com/tobert/tracestat/internal/viz"
	"github.com/urfave/cli/v3"
)

// UsageCommand prints the project usage table, or the org usage chart with
// --chart, from file sources or demo data.
func UsageCommand() *cli.Command {
	flags := append(dataFlags(),
		&cli.StringFlag{
			Name:    "category",
			Aliases: []string{"c"},
			Usage:   "Data category: error, transaction, attachment, default, security, session",
			Value:   "error",
		},
		&cli.StringFlag{
			Name:  "sort",
			Usage: "Sort descriptor, e.g. -total or project",
			Value: "-total",
		},
		&cli.BoolFlag{
			Name:  "chart",
			Usage: "Print the org chart instead of the project table",
		},
		&cli.StringFlag{
			Name:  "transform",
			Usage: "Chart transform: cumulative or daily",
			Value: "cumulative",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print the view as JSON",
		},
	)

	return &cli.Command{
		Name:  "usage",
		Usage: "Print usage stats per project from OTLP JSONL files",
		Description: `Loads outcome points from --file-source directories (or --otel-config
file exporters) and prints the accepted/filtered/dropped table per project.
--demo adds two weeks of sample outcomes.`,
		Flags:  flags,
		Action: runUsage,
	}
}

func runUsage(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := loadOffline(ctx, cmd, cfg)
	if err != nil {
		return err
	}

	reports := report.New(store, report.Options{
		Org:         cfg.Org,
		StatsPeriod: cfg.StatsPeriod,
		Verbose:     cfg.Verbose,
	})
	w := output(cmd)

	if cmd.Bool("chart") {
		view, err := reports.Chart(cmd.String("category"), cmd.String("transform"), "")
		if err != nil {
			return err
		}
		if cmd.Bool("json") {
			return writeJSON(w, view)
		}
		_, err = fmt.Fprint(w, viz.ChartReport(view))
		return err
	}

	view, err := reports.Table(cmd.String("category"), cmd.String("sort"), "")
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return writeJSON(w, view)
	}
	_, err = fmt.Fprint(w, viz.TableReport(view))
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
