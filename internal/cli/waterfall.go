package cli

import (
	"context"
	"fmt"

	"github.com/tobert/tracestat/internal/report"
	"github.com/tobert/tracestat/internal/viz"
	"github.com/urfave/cli/v3"
)

// WaterfallCommand prints the waterfall of one trace, or lists the stored
// traces when no trace ID is given.
func WaterfallCommand() *cli.Command {
	flags := append(dataFlags(),
		&cli.StringSliceFlag{
			Name:  "collapse",
			Usage: "Span ID whose subtree is hidden (repeatable)",
		},
		&cli.IntFlag{
			Name:  "width",
			Usage: "Line width",
			Value: 100,
		},
		&cli.StringFlag{
			Name:  "service",
			Usage: "When listing, only traces with a span from this service",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print the laid out rows as JSON",
		},
	)

	return &cli.Command{
		Name:      "waterfall",
		Usage:     "Print a trace waterfall from OTLP JSONL files",
		ArgsUsage: "[trace-id]",
		Flags:     flags,
		Action:    runWaterfall,
	}
}

func runWaterfall(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := loadOffline(ctx, cmd, cfg)
	if err != nil {
		return err
	}

	reports := report.New(store, report.Options{Org: cfg.Org, Verbose: cfg.Verbose})
	w := output(cmd)

	traceID := cmd.Args().First()
	if traceID == "" {
		traces := reports.Traces(cmd.String("service"), 0)
		if cmd.Bool("json") {
			return writeJSON(w, traces)
		}
		if len(traces) == 0 {
			_, err := fmt.Fprintln(w, "No traces loaded.")
			return err
		}
		_, err := fmt.Fprint(w, viz.TraceList(traces))
		return err
	}

	view, err := reports.Waterfall(traceID, cmd.StringSlice("collapse"))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return writeJSON(w, view)
	}
	_, err = fmt.Fprint(w, viz.WaterfallReport(view, int(cmd.Int("width"))))
	return err
}
