package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"path"
	"strconv"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tobert/tracestat/internal/mcpserver"
	"github.com/tobert/tracestat/internal/otlpreceiver"
	"github.com/tobert/tracestat/internal/report"
	"github.com/tobert/tracestat/internal/storage"
	"github.com/tobert/tracestat/internal/webui"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// ServeCommand returns the CLI command definition for the 'serve' subcommand.
// This command starts the OTLP gRPC receiver, the MCP server and optionally
// the web API.
func ServeCommand() *cli.Command {
	flags := append(dataFlags(),
		&cli.StringFlag{
			Name:  "otlp-host",
			Usage: "OTLP server bind address",
		},
		&cli.IntFlag{
			Name:  "otlp-port",
			Usage: "OTLP server port (0 for ephemeral)",
		},
		&cli.StringFlag{
			Name:  "transport",
			Usage: "MCP transport: stdio or http",
		},
		&cli.StringFlag{
			Name:  "http-host",
			Usage: "HTTP transport bind address",
		},
		&cli.IntFlag{
			Name:  "http-port",
			Usage: "HTTP transport port",
		},
		&cli.BoolFlag{
			Name:  "stateless",
			Usage: "Run the HTTP transport without sessions",
		},
		&cli.StringFlag{
			Name:  "webui-host",
			Usage: "Web API bind address",
		},
		&cli.IntFlag{
			Name:  "webui-port",
			Usage: "Web API port (0 serves it on the HTTP transport port, or not at all with stdio)",
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Start the OTLP receiver and MCP server",
		Description: `Starts an OTLP gRPC receiver on localhost:0 (ephemeral port) and an
MCP server on stdio (or streamable HTTP with --transport http). Spans and
"tracestat.outcomes" metric points sent to the receiver, or written as JSONL
under a file source, feed the usage table, usage chart and trace waterfall
tools.`,
		Flags:  flags,
		Action: runServe,
	}
}

// runServe is the action handler for the serve command.
// It wires together all components: storage, reports, OTLP receiver, MCP
// server and web API, and runs them under one errgroup.
func runServe(cliCtx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cfg.Verbose {
		log.Println("🔧 Configuration:")
		log.Printf("  Org: %s (%d configured projects)\n", cfg.Org, len(cfg.Projects))
		log.Printf("  Stats period: %s\n", cfg.StatsPeriod)
		log.Printf("  Trace buffer: %d spans\n", cfg.TraceBufferSize)
		log.Printf("  Outcome buffer: %d points\n", cfg.OutcomeBufferSize)
		log.Printf("  OTLP bind: %s:%d\n", cfg.OTLPHost, cfg.OTLPPort)
		log.Printf("  Transport: %s\n", cfg.Transport)
		log.Println()
	}

	ctx, stop := signal.NotifyContext(cliCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := newStore(cfg)
	if cmd.Bool("demo") {
		if err := loadDemo(ctx, store, time.Now()); err != nil {
			return err
		}
		log.Println("🧪 Loaded sample trace and outcomes")
	}

	reports := report.New(store, report.Options{
		Org:         cfg.Org,
		StatsPeriod: cfg.StatsPeriod,
		Verbose:     cfg.Verbose,
	})

	otlpServer, err := otlpreceiver.NewServer(
		otlpreceiver.Config{
			Host: cfg.OTLPHost,
			Port: cfg.OTLPPort,
		},
		store,
	)
	if err != nil {
		return fmt.Errorf("failed to create OTLP server: %w", err)
	}

	endpoint := otlpServer.Endpoint()
	log.Printf("🌐 OTLP gRPC server listening on %s\n", endpoint)
	if cfg.Verbose {
		log.Printf("   Programs can send data with: OTEL_EXPORTER_OTLP_ENDPOINT=%s\n", endpoint)
		log.Printf("   Outcomes are read from the %q metric\n", storage.OutcomeMetricName)
	}

	mcpServer, err := mcpserver.NewServer(store, reports, otlpServer, mcpserver.ServerOptions{Verbose: cfg.Verbose})
	if err != nil {
		otlpServer.Stop()
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	dirs, err := fileSourceDirs(cfg)
	if err != nil {
		otlpServer.Stop()
		return err
	}
	for _, dir := range dirs {
		if err := mcpServer.AddFileSource(ctx, dir, cfg.ActiveOnly); err != nil {
			log.Printf("⚠️  Skipping file source %s: %v\n", dir, err)
			continue
		}
		log.Printf("📂 Watching %s\n", dir)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := otlpServer.Start(gctx); err != nil {
			return fmt.Errorf("OTLP server error: %w", err)
		}
		return nil
	})

	web := webui.New(store, reports)
	if cfg.WebUIPort > 0 {
		addr := net.JoinHostPort(cfg.WebUIHost, strconv.Itoa(cfg.WebUIPort))
		log.Printf("🖥️  Web API listening on http://%s\n", addr)
		g.Go(func() error {
			if err := web.ListenAndServe(gctx, addr); err != nil {
				return fmt.Errorf("web API error: %w", err)
			}
			return nil
		})
	}

	switch cfg.Transport {
	case "http":
		srv, err := newHTTPServer(cfg, mcpServer, web)
		if err != nil {
			otlpServer.Stop()
			return err
		}
		log.Printf("🎯 MCP server ready on http://%s/mcp\n", srv.Addr)
		g.Go(func() error {
			defer mcpServer.Shutdown()
			return serveHTTP(gctx, srv)
		})
	default:
		log.Println("🎯 MCP server ready on stdio")
		log.Println("💡 Use MCP tools to query usage stats and trace waterfalls")
		log.Println()

		// stdin closing ends the whole process
		g.Go(func() error {
			defer stop()
			if err := mcpServer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP server error: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	if cfg.Verbose {
		log.Println("📡 Shutdown complete")
	}
	return err
}

// newHTTPServer mounts the streamable MCP handler at /mcp, and the web API on
// the same mux unless it has a port of its own.
func newHTTPServer(cfg *Config, mcpServer *mcpserver.Server, web *webui.Server) (*http.Server, error) {
	idle, err := cfg.SessionIdleTimeout()
	if err != nil {
		return nil, err
	}

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpServer.MCPServer()
	}, &mcp.StreamableHTTPOptions{Stateless: cfg.Stateless})

	mux := http.NewServeMux()
	mux.Handle("/mcp", checkOrigin(cfg.AllowedOrigins, handler))
	if cfg.WebUIPort == 0 {
		web.RegisterRoutes(mux)
	}

	return &http.Server{
		Addr:              net.JoinHostPort(cfg.HTTPHost, strconv.Itoa(cfg.HTTPPort)),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       idle,
	}, nil
}

// serveHTTP runs srv until ctx is cancelled.
func serveHTTP(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP transport error: %w", err)
		}
		return nil
	}
}

// checkOrigin rejects browser requests whose Origin matches none of the
// allowed patterns. Requests without an Origin header pass.
func checkOrigin(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && !originAllowed(allowed, origin) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(patterns []string, origin string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, origin); ok {
			return true
		}
	}
	return false
}
