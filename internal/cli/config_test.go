package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobert/tracestat/internal/usage"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestMergeConfigs(t *testing.T) {
	base := DefaultConfig()
	base.FileSources = []string{"/var/otel"}

	merged := MergeConfigs(base, &Config{
		Org:               "acme",
		Projects:          []usage.Project{{ID: "1", Slug: "web"}},
		OutcomeBufferSize: 500,
		Transport:         "http",
		FileSources:       []string{"/tmp/otel"},
	})

	assert.Equal(t, "acme", merged.Org)
	assert.Equal(t, []usage.Project{{ID: "1", Slug: "web"}}, merged.Projects)
	assert.Equal(t, 500, merged.OutcomeBufferSize)
	assert.Equal(t, 10_000, merged.TraceBufferSize, "unset overlay fields keep the base value")
	assert.Equal(t, "http", merged.Transport)
	assert.Equal(t, usage.DefaultStatsPeriod, merged.StatsPeriod)
	assert.Equal(t, []string{"/var/otel", "/tmp/otel"}, merged.FileSources)

	// base is not modified
	assert.Equal(t, "default", base.Org)
	assert.Equal(t, []string{"/var/otel"}, base.FileSources)

	assert.Same(t, base, MergeConfigs(base, nil))
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{
		"comment": "team defaults",
		"org": "acme",
		"projects": [{"id": "3", "slug": "worker"}],
		"stats_period": "30d",
		"webui_port": 8080
	}`)

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.Org)
	assert.Equal(t, "30d", cfg.StatsPeriod)
	assert.Equal(t, 8080, cfg.WebUIPort)
	require.Len(t, cfg.Projects, 1)
	assert.Equal(t, "worker", cfg.Projects[0].Slug)

	writeFile(t, path, `{"org": `)
	_, err = LoadConfigFromFile(path)
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = LoadConfigFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestFindProjectConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	_, err := FindProjectConfig(nested)
	assert.ErrorIs(t, err, os.ErrNotExist, "search stops at the repo root")

	want := filepath.Join(root, ".tracestat.json")
	writeFile(t, want, `{}`)

	got, err := FindProjectConfig(nested)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"transport", func(c *Config) { c.Transport = "ssh" }, "invalid transport"},
		{"trace buffer", func(c *Config) { c.TraceBufferSize = 0 }, "trace buffer size"},
		{"outcome buffer", func(c *Config) { c.OutcomeBufferSize = -1 }, "outcome buffer size"},
		{"period", func(c *Config) { c.StatsPeriod = "fortnight" }, "invalid stats period"},
		{"session timeout", func(c *Config) { c.SessionTimeout = "later" }, "invalid session timeout"},
		{"project id", func(c *Config) { c.Projects = []usage.Project{{Slug: "web"}} }, "project 0 has no id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestSessionIdleTimeout(t *testing.T) {
	cfg := DefaultConfig()
	d, err := cfg.SessionIdleTimeout()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, d)

	cfg.SessionTimeout = ""
	d, err = cfg.SessionIdleTimeout()
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestParseOtelConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.yaml")
	writeFile(t, path, `
exporters:
  file/traces:
    path: /var/otel/traces/traces.jsonl
  file/metrics:
    path: /var/otel/metrics/metrics.jsonl
  file/logs:
    path: /var/logs/otel/logs.jsonl
  file/unused:
    path: /srv/unused/traces.jsonl
  otlp:
    endpoint: localhost:4317
service:
  pipelines:
    traces:
      exporters: [file/traces, otlp]
    metrics/outcomes:
      exporters: [file/metrics]
    logs:
      exporters: [file/logs]
`)

	dirs, err := ParseOtelConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/var/otel"}, dirs)
}

func TestParseOtelConfigWithoutPipelines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.yaml")
	writeFile(t, path, `
exporters:
  file/a:
    path: /data/a/traces/traces.jsonl
  file/b:
    path: /data/b/out.jsonl
  file/empty: {}
`)

	dirs, err := ParseOtelConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/data/a", "/data/b"}, dirs)

	writeFile(t, path, "exporters: [")
	_, err = ParseOtelConfig(path)
	assert.ErrorContains(t, err, "failed to parse otel config")
}
