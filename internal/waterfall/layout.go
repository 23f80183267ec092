package waterfall

import "math"

// DurationDisplay is where a bar's duration label is placed.
type DurationDisplay string

const (
	DisplayLeft  DurationDisplay = "left"
	DisplayRight DurationDisplay = "right"
	DisplayInset DurationDisplay = "inset"
)

// spaceNeeded is the share of the row an outside label needs.
const spaceNeeded = 0.3

// Row geometry in pixels.
const (
	ToggleBorderBox = 46
	MarginLeft      = 0
	RowHeight       = 24
)

// LayoutResult is the geometry of one node's row.
type LayoutResult struct {
	LeftOffsetPx    int             `json:"left_offset_px"`
	StartPercent    float64         `json:"start_percent"`
	WidthPercent    float64         `json:"width_percent"`
	DurationDisplay DurationDisplay `json:"duration_display"`
	Duration        float64         `json:"duration_seconds"`
	DurationLabel   string          `json:"duration_label"`
	StartCSS        string          `json:"start_css"`
	WidthCSS        string          `json:"width_css"`
	PillColor       string          `json:"pill_color"`
}

// OffsetForGeneration is the horizontal indent of a row at generation g.
func OffsetForGeneration(g int) int {
	return g*(ToggleBorderBox/2) + MarginLeft
}

// ComputeTraceInfo walks the tree under root and returns its time window,
// deepest generation, and transaction and error counts.
func ComputeTraceInfo(root *TraceNode) TraceInfo {
	info := TraceInfo{
		StartTimestamp: math.Inf(1),
		EndTimestamp:   math.Inf(-1),
	}

	var walk func(n *TraceNode)
	walk = func(n *TraceNode) {
		if n == nil {
			return
		}
		if isFinite(n.StartTimestamp) {
			info.StartTimestamp = math.Min(info.StartTimestamp, n.StartTimestamp)
		}
		if isFinite(n.EndTimestamp) {
			info.EndTimestamp = math.Max(info.EndTimestamp, n.EndTimestamp)
		}
		info.MaxGeneration = max(info.MaxGeneration, n.Generation)
		if IsFullDetailed(n) {
			info.Transactions++
		}
		info.Errors += len(n.Errors)
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)

	if math.IsInf(info.StartTimestamp, 0) || math.IsInf(info.EndTimestamp, 0) {
		info.StartTimestamp, info.EndTimestamp = 0, 0
	}
	return info
}

// ComputeNodeLayout places node inside the window of info. Percentages are
// fractions in [0, 1] of the trace window.
func ComputeNodeLayout(node *TraceNode, info TraceInfo) LayoutResult {
	delta := math.Abs(info.EndTimestamp - info.StartTimestamp)
	if delta == 0 || !isFinite(delta) {
		delta = 1
	}

	start := math.Abs(node.StartTimestamp-info.StartTimestamp) / delta
	width := math.Abs(node.EndTimestamp-node.StartTimestamp) / delta

	display := DisplayInset
	if isFinite(start) && isFinite(width) {
		display = durationDisplay(Clamp(start, 0, 1), Clamp(width, 0, 1))
	}

	start, width = Clamp(start, 0, 1), Clamp(width, 0, 1)
	duration := node.Duration()
	if !isFinite(duration) {
		duration = 0
	}

	return LayoutResult{
		LeftOffsetPx:    OffsetForGeneration(node.Generation),
		StartPercent:    start,
		WidthPercent:    width,
		DurationDisplay: display,
		Duration:        duration,
		DurationLabel:   HumanDuration(duration),
		StartCSS:        ToPercent(start),
		WidthCSS:        ToPercent(width),
		PillColor:       PillColor(display, false),
	}
}

// durationDisplay puts the label right of the bar when it ends early enough,
// left of it when it starts late enough, and inside it otherwise.
func durationDisplay(left, width float64) DurationDisplay {
	if left+width < 1-spaceNeeded {
		return DisplayRight
	}
	if left > spaceNeeded {
		return DisplayLeft
	}
	return DisplayInset
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
