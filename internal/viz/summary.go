package viz

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// StatsOverview renders buffer fill-level bars.
func StatsOverview(stats BufferStats) string {
	var b strings.Builder

	b.WriteString("Buffer Health\n")
	writeBar(&b, "Spans", stats.SpanCount, stats.SpanCapacity)
	writeBar(&b, "Outcomes", stats.PointCount, stats.PointCapacity)
	fmt.Fprintf(&b, "  Traces:   %s distinct\n", formatCount(int64(stats.TraceCount)))
	fmt.Fprintf(&b, "  Projects: %d\n", stats.ProjectCount)

	return b.String()
}

func writeBar(b *strings.Builder, label string, count, capacity int) {
	barWidth := 20
	filled := 0
	if capacity > 0 {
		filled = count * barWidth / capacity
	}
	if filled > barWidth {
		filled = barWidth
	}

	bar := strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)

	paddedLabel := fmt.Sprintf("%-8s", label)
	fmt.Fprintf(b, "  %s [%s]  %s / %s\n", paddedLabel, bar, formatCount(int64(count)), formatCount(int64(capacity)))
}

var printer = message.NewPrinter(language.English)

// formatCount groups thousands: 1234567 -> "1,234,567".
func formatCount(n int64) string {
	return printer.Sprintf("%d", n)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
