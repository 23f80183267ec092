package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tobert/tracestat/internal/sample"
)

func readReq(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: uri},
	}
}

func readJSON(t *testing.T, result *mcp.ReadResourceResult) map[string]any {
	t.Helper()
	if len(result.Contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(result.Contents))
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(result.Contents[0].Text), &data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return data
}

func TestEndpointResource(t *testing.T) {
	srv := newTestServer(t)
	result, err := srv.handleEndpointResource(context.Background(), readReq("tracestat://endpoint"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := result.Contents[0].Text
	if !strings.Contains(text, "OTEL_EXPORTER_OTLP_ENDPOINT=127.0.0.1:4317") {
		t.Errorf("expected endpoint env var, got:\n%s", text)
	}
	if !strings.Contains(text, "tracestat.outcomes") {
		t.Errorf("expected outcome metric name, got:\n%s", text)
	}
}

func TestStatsResource(t *testing.T) {
	srv := newTestServer(t)
	result, err := srv.handleStatsResource(context.Background(), readReq("tracestat://stats"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data := readJSON(t, result)

	traces := data["traces"].(map[string]any)
	if int(traces["capacity"].(float64)) != 100 {
		t.Errorf("expected trace capacity 100, got %v", traces["capacity"])
	}
	outcomes := data["outcomes"].(map[string]any)
	if int(outcomes["capacity"].(float64)) != 10000 {
		t.Errorf("expected outcome capacity 10000, got %v", outcomes["capacity"])
	}
}

func TestProjectsResource(t *testing.T) {
	srv := newTestServer(t)
	result, err := srv.handleProjectsResource(context.Background(), readReq("tracestat://projects"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := int(readJSON(t, result)["count"].(float64)); n != 0 {
		t.Errorf("expected 0 projects, got %d", n)
	}

	loadSample(t, srv)
	result, err = srv.handleProjectsResource(context.Background(), readReq("tracestat://projects"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data := readJSON(t, result)
	if n := int(data["count"].(float64)); n != 3 {
		t.Errorf("expected 3 projects, got %d", n)
	}
	if data["org"] != "acme" {
		t.Errorf("expected org acme, got %v", data["org"])
	}
}

func TestTraceResource(t *testing.T) {
	srv := newTestServer(t)
	loadSample(t, srv)

	result, err := srv.handleTraceResource(context.Background(), readReq("tracestat://traces/"+sample.TraceIDHex))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Contents[0].Text, "Trace deadbeef") {
		t.Errorf("expected waterfall header, got:\n%s", result.Contents[0].Text)
	}
}

func TestTraceResourceNotFound(t *testing.T) {
	srv := newTestServer(t)
	if _, err := srv.handleTraceResource(context.Background(), readReq("tracestat://traces/nonexistent")); err == nil {
		t.Fatal("expected error for unknown trace")
	}
}

func TestExtractURIParam(t *testing.T) {
	tests := []struct {
		uri, prefix, want string
		err               bool
	}{
		{"tracestat://traces/abc", "tracestat://traces/", "abc", false},
		{"tracestat://traces/url%20encoded", "tracestat://traces/", "url encoded", false},
		{"tracestat://traces/", "tracestat://traces/", "", true},
		{"tracestat://wrong/path", "tracestat://traces/", "", true},
	}
	for _, tt := range tests {
		got, err := extractURIParam(tt.uri, tt.prefix)
		if tt.err && err == nil {
			t.Errorf("extractURIParam(%q, %q): expected error", tt.uri, tt.prefix)
		}
		if !tt.err && err != nil {
			t.Errorf("extractURIParam(%q, %q): unexpected error: %v", tt.uri, tt.prefix, err)
		}
		if got != tt.want {
			t.Errorf("extractURIParam(%q, %q) = %q, want %q", tt.uri, tt.prefix, got, tt.want)
		}
	}
}
