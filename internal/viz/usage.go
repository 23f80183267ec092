package viz

import (
	"fmt"
	"strings"

	"github.com/tobert/tracestat/internal/usage"
)

const (
	maxSlugWidth  = 24
	countColWidth = 10
	maxChartRows  = 60
	chartBarWidth = 30
)

// UsageTable renders the per-project usage table with the sort arrow on the
// active column. Rows are rendered in the order given.
func UsageTable(rows []usage.TableStat, spec usage.SortSpec) string {
	if len(rows) == 0 {
		return ""
	}

	slugWidth := len("Project") + 2
	for _, r := range rows {
		slugWidth = max(slugWidth, len(r.Project.Slug))
	}
	slugWidth = min(slugWidth, maxSlugWidth)

	var b strings.Builder
	b.WriteString(" ")
	for _, h := range usage.Headers(spec) {
		title := h.Title + arrow(h.Arrow)
		if h.Align == "left" {
			fmt.Fprintf(&b, " %-*s", slugWidth, title)
		} else {
			fmt.Fprintf(&b, " %*s", countColWidth, title)
		}
	}
	b.WriteByte('\n')

	for _, r := range rows {
		fmt.Fprintf(&b, "  %-*s", slugWidth, truncate(r.Project.Slug, slugWidth))
		for _, v := range []int64{r.Total, r.Accepted, r.Filtered, r.Dropped} {
			fmt.Fprintf(&b, " %*s", countColWidth, formatCount(v))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func arrow(dir string) string {
	switch dir {
	case "down":
		return " ↓"
	case "up":
		return " ↑"
	}
	return ""
}

// UsageChart renders one stacked bar per interval: '#' accepted, '+'
// filtered, 'x' dropped. Only the most recent intervals are shown when there
// are more than fit.
func UsageChart(stats []usage.UsageStat) string {
	if len(stats) == 0 {
		return ""
	}

	var b strings.Builder
	if len(stats) > maxChartRows {
		fmt.Fprintf(&b, "  ... %d earlier intervals\n", len(stats)-maxChartRows)
		stats = stats[len(stats)-maxChartRows:]
	}

	var peak int64
	for _, s := range stats {
		peak = max(peak, s.Total)
	}

	for _, s := range stats {
		bar := strings.Repeat("#", scale(s.Accepted, peak)) +
			strings.Repeat("+", scale(s.Filtered, peak)) +
			strings.Repeat("x", scale(s.Dropped.Total, peak))
		if len(bar) > chartBarWidth {
			bar = bar[:chartBarWidth]
		}
		fmt.Fprintf(&b, "  %-20s %-*s %s\n", truncate(s.Date, 20), chartBarWidth, bar, formatCount(s.Total))
	}
	b.WriteString("  # accepted  + filtered  x dropped\n")
	return b.String()
}

// scale maps v onto the chart width relative to peak, with a minimum of one
// cell for any non-zero value.
func scale(v, peak int64) int {
	if peak <= 0 || v <= 0 {
		return 0
	}
	n := int(v * chartBarWidth / peak)
	return max(n, 1)
}
