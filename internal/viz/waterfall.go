package viz

import (
	"fmt"
	"strings"

	"github.com/tobert/tracestat/internal/waterfall"
)

const (
	maxRowsPerTrace = 50
	defaultBarWidth = 20
)

// Waterfall renders flattened waterfall rows as ASCII. Only visible rows are
// drawn; bars are placed from each row's computed layout. Width controls the
// total line width; 0 uses a sensible default (80).
func Waterfall(traceID string, rows []waterfall.Row, width int) string {
	rows = waterfall.VisibleRows(rows)
	if len(rows) == 0 {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	var b strings.Builder

	shortID := traceID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	fmt.Fprintf(&b, "Trace %s (%d transactions, %s)\n", shortID, len(rows)-1, rows[0].Layout.DurationLabel)

	overflow := 0
	if len(rows) > maxRowsPerTrace {
		overflow = len(rows) - maxRowsPerTrace
		rows = rows[:maxRowsPerTrace]
	}

	// Pass 1: widest duration + suffix, so the right edge lines up.
	maxSuffixLen := 0
	for _, r := range rows {
		maxSuffixLen = max(maxSuffixLen, len(rowSuffix(r)))
	}

	// Pass 2
	for _, r := range rows {
		renderRow(&b, r, width, maxSuffixLen)
	}

	if overflow > 0 {
		fmt.Fprintf(&b, "  ... +%d more rows\n", overflow)
	}
	return b.String()
}

// treePrefix draws the branch lines for a row. A vertical bar is drawn at
// every level whose ancestor still has siblings below this row.
func treePrefix(r waterfall.Row) (string, int) {
	var prefix strings.Builder
	cols := 1
	prefix.WriteString(" ")
	if r.Generation == 0 {
		return prefix.String(), cols
	}

	open := make(map[int]bool, len(r.Continuing))
	for _, d := range r.Continuing {
		open[d.Depth] = true
	}
	for d := 0; d < r.Generation-1; d++ {
		if open[d] {
			prefix.WriteString("│ ")
		} else {
			prefix.WriteString("  ")
		}
		cols += 2
	}
	if r.IsLast {
		prefix.WriteString("└─ ")
	} else {
		prefix.WriteString("├─ ")
	}
	cols += 3
	return prefix.String(), cols
}

func rowLabel(r waterfall.Row) string {
	label := strings.TrimSpace(r.Op + " " + r.Name)
	if r.IsTraceRoot {
		return label
	}
	if r.ProjectSlug != "" {
		label = r.ProjectSlug + ": " + label
	}
	if r.HasToggle && !r.IsExpanded {
		label += fmt.Sprintf(" (+%d)", r.NumChildren)
	}
	return label
}

// rowSuffix is the duration label plus error and orphan markers.
func rowSuffix(r waterfall.Row) string {
	s := r.Layout.DurationLabel
	if r.ErrorCount > 0 {
		s += " !! ERR"
	}
	if r.IsOrphan {
		s += " ?"
	}
	return s
}

func renderRow(b *strings.Builder, r waterfall.Row, width, maxSuffixLen int) {
	barWidth := defaultBarWidth
	prefix, prefixCols := treePrefix(r)
	label := rowLabel(r)

	// Layout: prefix + label + " [" + bar + "] " + suffix
	fixedCols := prefixCols + 2 + barWidth + 2 + maxSuffixLen
	labelBudget := max(width-fixedCols, 8)
	label = truncate(label, labelBudget)
	paddedLabel := label + strings.Repeat(" ", max(0, labelBudget-len(label)))

	suffix := rowSuffix(r)
	paddedSuffix := suffix + strings.Repeat(" ", max(0, maxSuffixLen-len(suffix)))

	bar := buildBar(r.Layout.StartPercent, r.Layout.WidthPercent, barWidth)
	fmt.Fprintf(b, "%s%s [%s] %s\n", prefix, paddedLabel, bar, paddedSuffix)
}

// buildBar fills the cells covered by [start, start+width) of the window.
// Both are fractions of the trace window; every bar gets at least one cell.
func buildBar(start, width float64, barWidth int) string {
	startPos := int(start * float64(barWidth))
	endPos := int((start + width) * float64(barWidth))

	if startPos >= barWidth {
		startPos = barWidth - 1
	}
	endPos = max(endPos, startPos+1)
	endPos = min(endPos, barWidth)

	bar := make([]byte, barWidth)
	for i := range bar {
		if i >= startPos && i < endPos {
			bar[i] = '#'
		} else {
			bar[i] = '.'
		}
	}
	return string(bar)
}
