package viz

import (
	"fmt"
	"strings"

	"github.com/tobert/tracestat/internal/waterfall"
)

// RecentTraces renders a compact table of stored traces.
func RecentTraces(traces []ActivityTrace) string {
	if len(traces) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recent Traces (%d)\n", len(traces))

	for _, t := range traces {
		shortID := t.TraceID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}

		status := "✓"
		if t.ErrorCount > 0 {
			status = "✗"
		}
		durStr := fmt.Sprintf("%.0fms", t.DurationMs)
		label := truncate(t.Service+"/"+t.RootSpan, 40)

		fmt.Fprintf(&b, "  %s %s  %-40s  %4d spans  %8s\n", status, shortID, label, t.SpanCount, durStr)
	}

	return b.String()
}

// TraceErrors lists the errors attached to the transactions of a waterfall.
func TraceErrors(rows []waterfall.Row) string {
	var b strings.Builder
	count := 0
	for _, r := range rows {
		if r.Node == nil {
			continue
		}
		for _, e := range r.Node.Errors {
			label := truncate(r.ProjectSlug+"/"+r.Name, 30)
			fmt.Fprintf(&b, "  ✗ %-30s  %s\n", label, truncate(e.Title, 50))
			count++
		}
	}
	if count == 0 {
		return ""
	}
	return fmt.Sprintf("Errors (%d)\n", count) + b.String()
}
