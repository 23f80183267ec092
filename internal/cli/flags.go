package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/tobert/tracestat/internal/filereader"
	"github.com/tobert/tracestat/internal/sample"
	"github.com/tobert/tracestat/internal/storage"
	"github.com/urfave/cli/v3"
)

// demoDays is how much outcome history --demo generates.
const demoDays = 14

// dataFlags are shared by every command that builds a store.
func dataFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Config file (default: .tracestat.json in the project, then ~/.config/tracestat/config.json)",
		},
		&cli.StringFlag{
			Name:  "org",
			Usage: "Organization slug used in project links",
		},
		&cli.StringFlag{
			Name:  "stats-period",
			Usage: "Default usage window, e.g. 24h, 14d, 90d",
		},
		&cli.IntFlag{
			Name:  "trace-buffer-size",
			Usage: "Number of spans to buffer",
		},
		&cli.IntFlag{
			Name:  "outcome-buffer-size",
			Usage: "Number of outcome points to buffer",
		},
		&cli.StringSliceFlag{
			Name:  "file-source",
			Usage: "Directory with traces/ and metrics/ OTLP JSONL files (repeatable)",
		},
		&cli.StringFlag{
			Name:  "otel-config",
			Usage: "OpenTelemetry Collector config to discover file exporter directories from",
		},
		&cli.BoolFlag{
			Name:  "active-only",
			Usage: "Skip rotated JSONL archives",
		},
		&cli.BoolFlag{
			Name:  "demo",
			Usage: "Load a sample trace and two weeks of sample outcomes",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
		},
	}
}

// loadConfig layers config files and then any flags that were set.
func loadConfig(cmd *cli.Command) (*Config, error) {
	cfg, err := LoadEffectiveConfig(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	overlay := &Config{}
	if cmd.IsSet("org") {
		overlay.Org = cmd.String("org")
	}
	if cmd.IsSet("stats-period") {
		overlay.StatsPeriod = cmd.String("stats-period")
	}
	if cmd.IsSet("trace-buffer-size") {
		overlay.TraceBufferSize = int(cmd.Int("trace-buffer-size"))
	}
	if cmd.IsSet("outcome-buffer-size") {
		overlay.OutcomeBufferSize = int(cmd.Int("outcome-buffer-size"))
	}
	if cmd.IsSet("file-source") {
		overlay.FileSources = cmd.StringSlice("file-source")
	}
	if cmd.IsSet("otel-config") {
		overlay.OtelConfig = cmd.String("otel-config")
	}
	overlay.ActiveOnly = cmd.Bool("active-only")
	overlay.Verbose = cmd.Bool("verbose")

	// serve-only flags
	if cmd.IsSet("otlp-host") {
		overlay.OTLPHost = cmd.String("otlp-host")
	}
	if cmd.IsSet("otlp-port") {
		overlay.OTLPPort = int(cmd.Int("otlp-port"))
	}
	if cmd.IsSet("transport") {
		overlay.Transport = cmd.String("transport")
	}
	if cmd.IsSet("http-host") {
		overlay.HTTPHost = cmd.String("http-host")
	}
	if cmd.IsSet("http-port") {
		overlay.HTTPPort = int(cmd.Int("http-port"))
	}
	if cmd.IsSet("stateless") {
		overlay.Stateless = cmd.Bool("stateless")
	}
	if cmd.IsSet("webui-host") {
		overlay.WebUIHost = cmd.String("webui-host")
	}
	if cmd.IsSet("webui-port") {
		overlay.WebUIPort = int(cmd.Int("webui-port"))
	}

	cfg = MergeConfigs(cfg, overlay)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newStore creates the store and registers the configured projects.
func newStore(cfg *Config) *storage.Store {
	store := storage.NewStore(cfg.TraceBufferSize, cfg.OutcomeBufferSize)
	store.Outcomes().RegisterProjects(cfg.Projects)
	return store
}

// fileSourceDirs returns the configured directories plus any discovered
// from the Collector config.
func fileSourceDirs(cfg *Config) ([]string, error) {
	dirs := append([]string(nil), cfg.FileSources...)
	if cfg.OtelConfig == "" {
		return dirs, nil
	}
	found, err := ParseOtelConfig(cfg.OtelConfig)
	if err != nil {
		return nil, err
	}
	if cfg.Verbose {
		log.Printf("🔎 Found %d file source(s) in %s\n", len(found), cfg.OtelConfig)
	}
	return append(dirs, found...), nil
}

// loadDemo fills the store with the sample trace and outcomes.
func loadDemo(ctx context.Context, store *storage.Store, now time.Time) error {
	store.Outcomes().RegisterProjects(sample.Projects)
	if err := store.ReceiveSpans(ctx, sample.Trace(now.Add(-time.Minute))); err != nil {
		return fmt.Errorf("failed to load sample trace: %w", err)
	}
	if err := store.ReceiveMetrics(ctx, sample.Outcomes(now, demoDays)); err != nil {
		return fmt.Errorf("failed to load sample outcomes: %w", err)
	}
	return nil
}

// loadOffline builds a store from file sources and, with --demo, sample data.
func loadOffline(ctx context.Context, cmd *cli.Command, cfg *Config) (*storage.Store, error) {
	store := newStore(cfg)

	if cmd.Bool("demo") {
		if err := loadDemo(ctx, store, time.Now()); err != nil {
			return nil, err
		}
	}

	dirs, err := fileSourceDirs(cfg)
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		n, err := filereader.Load(ctx, filereader.Config{
			Directory:  dir,
			Verbose:    cfg.Verbose,
			ActiveOnly: cfg.ActiveOnly,
		}, store)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", dir, err)
		}
		if cfg.Verbose {
			log.Printf("📂 Loaded %d lines from %s\n", n, dir)
		}
	}

	return store, nil
}

// output returns where a command prints its report.
func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}
