package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tobert/tracestat/internal/cli"
	cliframework "github.com/urfave/cli/v3"
)

const version = "0.1.0-dev"

func main() {
	app := &cliframework.Command{
		Name:    "tracestat",
		Usage:   "Usage stats and trace waterfalls from OTLP data",
		Version: version,
		Commands: []*cliframework.Command{
			cli.ServeCommand(),
			cli.UsageCommand(),
			cli.WaterfallCommand(),
			cli.DoctorCommand(version),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ error: %v\n", err)
		os.Exit(1)
	}
}
