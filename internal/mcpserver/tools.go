package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tobert/tracestat/internal/filereader"
	"github.com/tobert/tracestat/internal/report"
	"github.com/tobert/tracestat/internal/storage"
	"github.com/tobert/tracestat/internal/viz"
)

// ═══════════════════════════════════════════════════════════════════════════
// USAGE + WATERFALL MCP TOOLS
//
// 1. get_otlp_endpoint - Where to send spans and outcome metrics
// 2. usage_table       - Per-project usage for one data category
// 3. usage_chart       - Org usage per interval for one data category
// 4. toggle_sort       - Apply a header click to the table sort
// 5. list_traces       - Stored traces, newest first
// 6. trace_waterfall   - Laid out trace tree with an ASCII rendering
// 7. get_stats         - Buffer health dashboard
// 8. clear_data        - Wipe spans and outcome points
//
// Every usage and waterfall tool returns structured data plus a "text"
// rendering an agent can show as is.
// ═══════════════════════════════════════════════════════════════════════════

// Tool 1: get_otlp_endpoint

type GetOTLPEndpointInput struct{}

type GetOTLPEndpointOutput struct {
	Endpoint        string            `json:"endpoint" jsonschema:"OTLP gRPC endpoint address (accepts traces and metrics)"`
	Protocol        string            `json:"protocol" jsonschema:"Protocol type (grpc)"`
	OutcomeMetric   string            `json:"outcome_metric" jsonschema:"Metric name outcome points must be reported under"`
	EnvironmentVars map[string]string `json:"environment_vars" jsonschema:"Suggested environment variables for configuring applications"`
}

func (s *Server) handleGetOTLPEndpoint(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetOTLPEndpointInput,
) (*mcp.CallToolResult, GetOTLPEndpointOutput, error) {
	endpoint := s.otlpReceiver.Endpoint()
	return &mcp.CallToolResult{}, GetOTLPEndpointOutput{
		Endpoint:      endpoint,
		Protocol:      "grpc",
		OutcomeMetric: storage.OutcomeMetricName,
		EnvironmentVars: map[string]string{
			"OTEL_EXPORTER_OTLP_ENDPOINT": endpoint,
			"OTEL_EXPORTER_OTLP_PROTOCOL": "grpc",
		},
	}, nil
}

// Tool 2: usage_table

type UsageTableInput struct {
	Category    string `json:"category,omitempty" jsonschema:"Data category: error, transaction, attachment, default, security or session (default error)"`
	Sort        string `json:"sort,omitempty" jsonschema:"Sort descriptor: column name for ascending, -column for descending (default -total)"`
	StatsPeriod string `json:"stats_period,omitempty" jsonschema:"Window such as 24h, 14d or 90d (default from config)"`
}

type UsageTableOutput struct {
	Table report.TableView `json:"table" jsonschema:"Usage rows, one per project, in sort order"`
	Text  string           `json:"text" jsonschema:"ASCII rendering of the table"`
}

func (s *Server) handleUsageTable(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input UsageTableInput,
) (*mcp.CallToolResult, UsageTableOutput, error) {
	view, err := s.reports.Table(input.Category, input.Sort, input.StatsPeriod)
	if err != nil {
		return nil, UsageTableOutput{}, fmt.Errorf("usage table: %w", err)
	}
	return &mcp.CallToolResult{}, UsageTableOutput{Table: view, Text: viz.TableReport(view)}, nil
}

// Tool 3: usage_chart

type UsageChartInput struct {
	Category    string `json:"category,omitempty" jsonschema:"Data category (default error)"`
	Transform   string `json:"transform,omitempty" jsonschema:"cumulative (running totals, default) or daily (per interval)"`
	StatsPeriod string `json:"stats_period,omitempty" jsonschema:"Window such as 24h, 14d or 90d (default from config)"`
}

type UsageChartOutput struct {
	Chart report.ChartView `json:"chart" jsonschema:"Org usage per interval"`
	Text  string           `json:"text" jsonschema:"ASCII rendering of the chart"`
}

func (s *Server) handleUsageChart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input UsageChartInput,
) (*mcp.CallToolResult, UsageChartOutput, error) {
	view, err := s.reports.Chart(input.Category, input.Transform, input.StatsPeriod)
	if err != nil {
		return nil, UsageChartOutput{}, fmt.Errorf("usage chart: %w", err)
	}
	return &mcp.CallToolResult{}, UsageChartOutput{Chart: view, Text: viz.ChartReport(view)}, nil
}

// Tool 4: toggle_sort

type ToggleSortInput struct {
	CurrentSort string `json:"current_sort,omitempty" jsonschema:"Sort descriptor currently applied (default -total)"`
	Column      string `json:"column" jsonschema:"Column clicked: project, total, accepted, filtered or dropped"`
	Category    string `json:"category,omitempty" jsonschema:"Data category (default error)"`
	StatsPeriod string `json:"stats_period,omitempty" jsonschema:"Window such as 24h, 14d or 90d (default from config)"`
}

type ToggleSortOutput struct {
	Sort  string           `json:"sort" jsonschema:"New sort descriptor"`
	Table report.TableView `json:"table" jsonschema:"Usage rows re-sorted by the new descriptor"`
	Text  string           `json:"text" jsonschema:"ASCII rendering of the table"`
}

func (s *Server) handleToggleSort(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ToggleSortInput,
) (*mcp.CallToolResult, ToggleSortOutput, error) {
	next, err := report.Toggle(input.CurrentSort, input.Column)
	if err != nil {
		return nil, ToggleSortOutput{}, err
	}
	view, err := s.reports.Table(input.Category, next, input.StatsPeriod)
	if err != nil {
		return nil, ToggleSortOutput{}, fmt.Errorf("usage table: %w", err)
	}
	return &mcp.CallToolResult{}, ToggleSortOutput{Sort: next, Table: view, Text: viz.TableReport(view)}, nil
}

// Tool 5: list_traces

type ListTracesInput struct {
	Service string `json:"service,omitempty" jsonschema:"Only traces with a span from this service"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Maximum traces to return (default 20)"`
}

type ListTracesOutput struct {
	Traces []storage.TraceSummary `json:"traces" jsonschema:"Stored traces, newest first"`
	Count  int                    `json:"count" jsonschema:"Number of traces returned"`
	Text   string                 `json:"text" jsonschema:"Compact listing"`
}

func (s *Server) handleListTraces(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListTracesInput,
) (*mcp.CallToolResult, ListTracesOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	traces := s.reports.Traces(input.Service, limit)

	return &mcp.CallToolResult{}, ListTracesOutput{
		Traces: traces,
		Count:  len(traces),
		Text:   viz.TraceList(traces),
	}, nil
}

// Tool 6: trace_waterfall

type TraceWaterfallInput struct {
	TraceID   string   `json:"trace_id" jsonschema:"Trace ID (hex)"`
	Collapsed []string `json:"collapsed,omitempty" jsonschema:"Span IDs whose subtrees are hidden"`
	Width     int      `json:"width,omitempty" jsonschema:"Line width of the text rendering (default 100)"`
}

type TraceWaterfallOutput struct {
	Waterfall report.WaterfallView `json:"waterfall" jsonschema:"Rows with geometry, in display order"`
	Text      string               `json:"text" jsonschema:"ASCII waterfall followed by the errors in the trace"`
}

func (s *Server) handleTraceWaterfall(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input TraceWaterfallInput,
) (*mcp.CallToolResult, TraceWaterfallOutput, error) {
	if input.TraceID == "" {
		return nil, TraceWaterfallOutput{}, fmt.Errorf("trace_id is required")
	}
	width := input.Width
	if width <= 0 {
		width = 100
	}

	view, err := s.reports.Waterfall(input.TraceID, input.Collapsed)
	if err != nil {
		return nil, TraceWaterfallOutput{}, fmt.Errorf("trace waterfall: %w", err)
	}
	return &mcp.CallToolResult{}, TraceWaterfallOutput{Waterfall: view, Text: viz.WaterfallReport(view, width)}, nil
}

// Tool 7: get_stats

type GetStatsInput struct{}

type GetStatsOutput struct {
	Store       storage.AllStats   `json:"store" jsonschema:"Span and outcome buffer statistics"`
	Cache       report.CacheStats  `json:"cache" jsonschema:"Usage view memo hits and misses"`
	FileSources []filereader.Stats `json:"file_sources,omitempty" jsonschema:"Directories being followed"`
	Text        string             `json:"text" jsonschema:"Buffer fill-level bars"`
}

func (s *Server) handleGetStats(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetStatsInput,
) (*mcp.CallToolResult, GetStatsOutput, error) {
	stats := s.store.Stats()

	return &mcp.CallToolResult{}, GetStatsOutput{
		Store:       stats,
		Cache:       s.reports.CacheStats(),
		FileSources: s.FileSourceStats(),
		Text:        viz.StatsOverview(bufferStats(stats)),
	}, nil
}

func bufferStats(stats storage.AllStats) viz.BufferStats {
	return viz.BufferStats{
		SpanCount:     stats.Traces.SpanCount,
		SpanCapacity:  stats.Traces.Capacity,
		PointCount:    stats.Outcomes.PointCount,
		PointCapacity: stats.Outcomes.Capacity,
		TraceCount:    stats.Traces.TraceCount,
		ProjectCount:  stats.Outcomes.ProjectCount,
	}
}

// Tool 8: clear_data

type ClearDataInput struct{}

type ClearDataOutput struct {
	Message string `json:"message" jsonschema:"Confirmation message"`
}

func (s *Server) handleClearData(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ClearDataInput,
) (*mcp.CallToolResult, ClearDataOutput, error) {
	s.store.Clear()

	return &mcp.CallToolResult{}, ClearDataOutput{
		Message: "Cleared all spans and outcome points (known projects are kept)",
	}, nil
}

// Register all tools

func (s *Server) registerTools() error {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_otlp_endpoint",
		Description: "🚀 START HERE: Get the OTLP gRPC endpoint address. Set OTEL_EXPORTER_OTLP_ENDPOINT=<endpoint> when running programs. Spans build trace waterfalls; points of the tracestat.outcomes metric (attributes category, outcome, project, times_seen) feed the usage table and chart.",
	}, s.handleGetOTLPEndpoint)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "usage_table",
		Description: "Per-project usage for one data category over a period: total, accepted, filtered and dropped (invalid counts as dropped). Rows are sorted by the sort descriptor, e.g. '-total' (default) or 'project'. Projects with no usage get zero rows. Answers: 'Which project is dropping the most errors?'",
	}, s.handleUsageTable)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "usage_chart",
		Description: "Org-wide usage for one data category per interval. Shorter periods use finer buckets (1h up to 14d, 4h up to 30d, then 1d). Cumulative by default; pass transform=daily for per-interval values.",
	}, s.handleUsageChart)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "toggle_sort",
		Description: "Click a usage table column header: the active column flips direction, any other column becomes active with its default direction (project ascending, counts descending). Returns the new descriptor and the re-sorted table.",
	}, s.handleToggleSort)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_traces",
		Description: "List stored traces newest first with root span, span count, error count and duration. Use the trace_id with trace_waterfall.",
	}, s.handleListTraces)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "trace_waterfall",
		Description: "Lay out a trace as a waterfall: one row per transaction with its generation, connector bars, bar start/width as fractions of the trace window and where its duration label goes. Spans whose parent never arrived are shown as orphans after the root transactions. Pass collapsed span IDs to hide subtrees.",
	}, s.handleTraceWaterfall)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_stats",
		Description: "Buffer health dashboard - span and outcome point counts against capacity, distinct traces, known projects, memo cache hits, and followed file sources.",
	}, s.handleGetStats)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "clear_data",
		Description: "Wipes ALL stored spans and outcome points. Known projects stay registered so the usage table keeps its rows.",
	}, s.handleClearData)

	return nil
}
