package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tobert/tracestat/internal/storage"
	"github.com/tobert/tracestat/internal/viz"
)

// registerResources registers all MCP resources and resource templates.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "tracestat://endpoint",
		Name:        "endpoint",
		Description: "OTLP gRPC endpoint address, outcome metric name, and environment variable suggestions.",
		MIMEType:    "text/plain",
	}, s.handleEndpointResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "tracestat://stats",
		Name:        "stats",
		Description: "Span and outcome buffer counts, capacities, and store generation.",
		MIMEType:    "application/json",
	}, s.handleStatsResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "tracestat://projects",
		Name:        "projects",
		Description: "Projects the usage table has rows for, registered or learned from outcome points.",
		MIMEType:    "application/json",
	}, s.handleProjectsResource)

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "tracestat://traces/{trace_id}",
		Name:        "trace-waterfall",
		Description: "ASCII waterfall of a stored trace.",
		MIMEType:    "text/plain",
	}, s.handleTraceResource)
}

// ─── Static resource handlers ───────────────────────────────────────────

func (s *Server) handleEndpointResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	endpoint := s.otlpReceiver.Endpoint()

	var b strings.Builder
	b.WriteString("OTLP Endpoint\n")
	b.WriteString("═════════════\n")
	fmt.Fprintf(&b, "  Address:   %s\n", endpoint)
	b.WriteString("  Protocol:  grpc\n")
	fmt.Fprintf(&b, "  Outcomes:  metric %q (attributes category, outcome, project, times_seen)\n", storage.OutcomeMetricName)
	b.WriteString("\n  Environment Variables:\n")
	fmt.Fprintf(&b, "    OTEL_EXPORTER_OTLP_ENDPOINT=%s\n", endpoint)
	b.WriteString("    OTEL_EXPORTER_OTLP_PROTOCOL=grpc\n")

	return textResult(req.Params.URI, b.String()), nil
}

func (s *Server) handleStatsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	return jsonResult(req.Params.URI, s.store.Stats())
}

func (s *Server) handleProjectsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	projects := s.store.Outcomes().Projects()
	return jsonResult(req.Params.URI, map[string]any{
		"org":      s.reports.Org(),
		"count":    len(projects),
		"projects": projects,
	})
}

// ─── Template resource handlers ─────────────────────────────────────────

func (s *Server) handleTraceResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	traceID, err := extractURIParam(req.Params.URI, "tracestat://traces/")
	if err != nil {
		return nil, err
	}

	view, err := s.reports.Waterfall(traceID, nil)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	return textResult(req.Params.URI, viz.WaterfallReport(view, 100)), nil
}

// ─── Helpers ────────────────────────────────────────────────────────────

// extractURIParam extracts the parameter value from a URI by stripping the prefix
// and URL-decoding the remainder.
func extractURIParam(uri, prefix string) (string, error) {
	if !strings.HasPrefix(uri, prefix) {
		return "", fmt.Errorf("invalid URI: %s", uri)
	}
	param := strings.TrimPrefix(uri, prefix)
	if param == "" {
		return "", fmt.Errorf("empty parameter in URI: %s", uri)
	}
	decoded, err := url.PathUnescape(param)
	if err != nil {
		return "", fmt.Errorf("invalid encoding in URI: %w", err)
	}
	return decoded, nil
}

// textResult wraps a string in a ReadResourceResult.
func textResult(uri, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:  uri,
			Text: text,
		}},
	}
}

// jsonResult marshals v into a ReadResourceResult.
func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
