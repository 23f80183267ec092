package viz

import (
	"fmt"
	"strings"

	"github.com/tobert/tracestat/internal/report"
	"github.com/tobert/tracestat/internal/storage"
	"github.com/tobert/tracestat/internal/usage"
)

// TableReport renders a usage table view with a title line, or its warning.
func TableReport(view report.TableView) string {
	if view.Warning != "" {
		return "⚠️  " + view.Warning + "\n"
	}
	if len(view.Rows) == 0 {
		return fmt.Sprintf("No projects have reported %s usage.\n", view.Category)
	}
	return fmt.Sprintf("%s usage, last %s\n", view.Category, view.Period) + UsageTable(view.Rows, usage.ParseSort(view.Sort))
}

// ChartReport renders a usage chart view with a title line, or its warning.
func ChartReport(view report.ChartView) string {
	if view.Warning != "" {
		return "⚠️  " + view.Warning + "\n"
	}
	out := fmt.Sprintf("%s usage, last %s, %s per %s\n", view.Category, view.Period, view.Transform, view.Interval)
	if t := view.Total; t != nil {
		out += fmt.Sprintf("org total %d: %d accepted, %d filtered, %d dropped\n", t.Total, t.Accepted, t.Filtered, t.Dropped)
	}
	return out + UsageChart(view.Stats)
}

// TraceList renders stored trace summaries.
func TraceList(traces []storage.TraceSummary) string {
	activity := make([]ActivityTrace, len(traces))
	for i, t := range traces {
		activity[i] = ActivityTrace{
			TraceID:    t.TraceID,
			Service:    t.Service,
			RootSpan:   t.RootSpan,
			SpanCount:  t.SpanCount,
			ErrorCount: t.ErrorCount,
			DurationMs: t.DurationMs,
		}
	}
	return RecentTraces(activity)
}

// WaterfallReport renders a waterfall view followed by the errors in the
// trace and any assembly warnings.
func WaterfallReport(view report.WaterfallView, width int) string {
	var b strings.Builder
	b.WriteString(Waterfall(view.TraceID, view.Rows, width))
	if errs := TraceErrors(view.Rows); errs != "" {
		b.WriteString("\n")
		b.WriteString(errs)
	}
	for _, w := range view.Warnings {
		b.WriteString("⚠️  " + w + "\n")
	}
	return b.String()
}
