package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
	"google.golang.org/protobuf/encoding/protojson"

	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tobert/tracestat/internal/report"
	"github.com/tobert/tracestat/internal/sample"
	"github.com/tobert/tracestat/internal/storage"
)

// runApp runs args against a root command with an isolated home directory
// and an explicit config file.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	cfgPath := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, cfgPath, `{"org": "acme"}`)

	var out bytes.Buffer
	app := &cli.Command{
		Name:     "tracestat",
		Writer:   &out,
		Commands: []*cli.Command{UsageCommand(), WaterfallCommand()},
	}

	full := append([]string{"tracestat", args[0], "--config", cfgPath}, args[1:]...)
	err := app.Run(context.Background(), full)
	return out.String(), err
}

func TestUsageCommandDemo(t *testing.T) {
	out, err := runApp(t, "usage", "--demo")
	require.NoError(t, err)

	assert.Contains(t, out, "error usage, last 14d")
	for _, p := range sample.Projects {
		assert.Contains(t, out, p.Slug)
	}
}

func TestUsageCommandJSON(t *testing.T) {
	out, err := runApp(t, "usage", "--demo", "--category", "transaction", "--sort", "project", "--json")
	require.NoError(t, err)

	var view report.TableView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "acme", view.Org)
	assert.Equal(t, "project", view.Sort)
	require.Len(t, view.Rows, len(sample.Projects))
	assert.Equal(t, "backend", view.Rows[0].Project.Slug)
	assert.Contains(t, view.Rows[0].ProjectLink, "/organizations/acme/performance/")
}

func TestUsageCommandChart(t *testing.T) {
	out, err := runApp(t, "usage", "--demo", "--chart", "--transform", "daily")
	require.NoError(t, err)
	assert.Contains(t, out, "per 1h")
	assert.Contains(t, out, "# accepted")
}

func TestUsageCommandBadCategory(t *testing.T) {
	_, err := runApp(t, "usage", "--demo", "--category", "bogus")
	assert.Error(t, err)
}

func TestWaterfallCommand(t *testing.T) {
	out, err := runApp(t, "waterfall", "--demo", sample.TraceIDHex)
	require.NoError(t, err)
	assert.Contains(t, out, "Trace deadbeef")
	assert.Contains(t, out, "Errors (1)")

	out, err = runApp(t, "waterfall", "--demo")
	require.NoError(t, err)
	assert.Contains(t, out, "Recent Traces (1)")

	_, err = runApp(t, "waterfall", "--demo", "0000")
	assert.Error(t, err)
}

func TestWaterfallCommandFileSource(t *testing.T) {
	dir := t.TempDir()
	line, err := protojson.Marshal(&tracepb.TracesData{ResourceSpans: sample.Trace(time.Now())})
	require.NoError(t, err)
	writeFile(t, filepath.Join(dir, "traces", "traces.jsonl"), string(line)+"\n")

	out, err := runApp(t, "waterfall", "--file-source", dir, "--json", sample.TraceIDHex)
	require.NoError(t, err)

	var view report.WaterfallView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, sample.TraceIDHex, view.TraceID)
	assert.NotEmpty(t, view.Rows)
}

func TestLoadDemo(t *testing.T) {
	store := storage.NewStore(100, 10_000)
	require.NoError(t, loadDemo(context.Background(), store, time.Now()))

	stats := store.Stats()
	assert.Equal(t, 5, stats.Traces.SpanCount)
	assert.Equal(t, len(sample.Projects), stats.Outcomes.ProjectCount)
}

func TestFileSourceDirs(t *testing.T) {
	collector := filepath.Join(t.TempDir(), "collector.yaml")
	writeFile(t, collector, "exporters:\n  file/t:\n    path: /otel/traces/t.jsonl\n")

	dirs, err := fileSourceDirs(&Config{FileSources: []string{"/a"}, OtelConfig: collector})
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/otel"}, dirs)

	_, err = fileSourceDirs(&Config{OtelConfig: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestOriginAllowed(t *testing.T) {
	allowed := DefaultConfig().AllowedOrigins

	assert.True(t, originAllowed(allowed, "http://localhost:3000"))
	assert.True(t, originAllowed(allowed, "http://127.0.0.1:4380"))
	assert.False(t, originAllowed(allowed, "http://evil.example:80"))
	assert.False(t, originAllowed(nil, "http://localhost:3000"))

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := checkOrigin(allowed, ok)

	for origin, want := range map[string]int{
		"":                      http.StatusNoContent,
		"http://localhost:8080": http.StatusNoContent,
		"https://evil.example":  http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, "origin %q", origin)
	}
}

func TestLoadConfigFlagsOverrideFiles(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, cfgPath, `{"org": "acme", "stats_period": "30d", "transport": "http"}`)

	var got *Config
	cmd := ServeCommand()
	cmd.Action = func(ctx context.Context, cmd *cli.Command) error {
		var err error
		got, err = loadConfig(cmd)
		return err
	}

	err := cmd.Run(context.Background(), []string{"serve", "--config", cfgPath, "--org", "globex", "--http-port", "9999"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "globex", got.Org)
	assert.Equal(t, "30d", got.StatsPeriod)
	assert.Equal(t, "http", got.Transport)
	assert.Equal(t, 9999, got.HTTPPort)
	assert.Equal(t, 10_000, got.TraceBufferSize)
}
