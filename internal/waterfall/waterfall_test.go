package waterfall

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func txn(id string, gen int, start, end float64, children ...*TraceNode) *TraceNode {
	return &TraceNode{
		Kind:           KindTransaction,
		ID:             id,
		Generation:     gen,
		StartTimestamp: start,
		EndTimestamp:   end,
		Children:       children,
		Transaction:    &Transaction{EventID: id, Op: "http.server", Name: "GET /" + id, ProjectSlug: "backend"},
	}
}

// root
// ├── a
// │   ├── a1
// │   └── a2
// └── b (orphan)
func sampleTree() *TraceNode {
	b := txn("b", 1, 5, 10)
	b.IsOrphan = true
	b.Errors = []ErrorRef{{EventID: "e1", Title: "boom", Level: "error"}}
	return &TraceNode{
		Kind:           KindTraceRoot,
		ID:             "root",
		TraceSlug:      "abc123",
		StartTimestamp: 0,
		EndTimestamp:   10,
		Children: []*TraceNode{
			txn("a", 1, 0, 5, txn("a1", 2, 1, 2), txn("a2", 2, 2, 3)),
			b,
		},
	}
}

func TestComputeTraceInfo(t *testing.T) {
	info := ComputeTraceInfo(sampleTree())
	assert.Equal(t, 0.0, info.StartTimestamp)
	assert.Equal(t, 10.0, info.EndTimestamp)
	assert.Equal(t, 2, info.MaxGeneration)
	assert.Equal(t, 4, info.Transactions)
	assert.Equal(t, 1, info.Errors)
}

func TestComputeTraceInfo_Empty(t *testing.T) {
	info := ComputeTraceInfo(&TraceNode{Kind: KindTraceRoot, StartTimestamp: math.NaN(), EndTimestamp: math.NaN()})
	assert.Equal(t, TraceInfo{}, info)
}

func TestComputeNodeLayout_Placement(t *testing.T) {
	info := TraceInfo{StartTimestamp: 0, EndTimestamp: 10}

	tests := []struct {
		name    string
		node    *TraceNode
		start   float64
		width   float64
		display DurationDisplay
	}{
		{"early short bar", txn("x", 1, 0, 5), 0, 0.5, DisplayRight},
		{"late bar", txn("x", 1, 5, 10), 0.5, 0.5, DisplayLeft},
		{"full width", txn("x", 1, 0, 10), 0, 1, DisplayInset},
		{"both sides fit prefers right", txn("x", 1, 4, 5), 0.4, 0.1, DisplayRight},
		{"overflowing end clamps", txn("x", 1, 8, 30), 0.8, 1, DisplayLeft},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := ComputeNodeLayout(tt.node, info)
			assert.InDelta(t, tt.start, l.StartPercent, 1e-9)
			assert.InDelta(t, tt.width, l.WidthPercent, 1e-9)
			assert.Equal(t, tt.display, l.DurationDisplay)
		})
	}
}

// A child in the middle of the trace has room on both sides; right wins.
func TestComputeNodeLayout_MiddleChildLabelsRight(t *testing.T) {
	root := &TraceNode{Kind: KindTraceRoot, ID: "root", StartTimestamp: 0, EndTimestamp: 100,
		Children: []*TraceNode{txn("child", 1, 40, 60)}}
	info := ComputeTraceInfo(root)

	l := ComputeNodeLayout(root.Children[0], info)
	assert.InDelta(t, 0.4, l.StartPercent, 1e-9)
	assert.InDelta(t, 0.2, l.WidthPercent, 1e-9)
	assert.Equal(t, DisplayRight, l.DurationDisplay)
	assert.Equal(t, OffsetForGeneration(1), l.LeftOffsetPx)
}

func TestComputeNodeLayout_Bounds(t *testing.T) {
	info := TraceInfo{StartTimestamp: 100, EndTimestamp: 101}
	nodes := []*TraceNode{
		txn("before", 1, 50, 100.5),
		txn("after", 1, 200, 300),
		txn("reversed", 1, 100.8, 100.2),
		txn("nan", 1, math.NaN(), 100.5),
		txn("inf", 1, 100, math.Inf(1)),
	}
	for _, n := range nodes {
		l := ComputeNodeLayout(n, info)
		assert.GreaterOrEqual(t, l.StartPercent, 0.0, n.ID)
		assert.LessOrEqual(t, l.StartPercent, 1.0, n.ID)
		assert.GreaterOrEqual(t, l.WidthPercent, 0.0, n.ID)
		assert.LessOrEqual(t, l.WidthPercent, 1.0, n.ID)
	}

	l := ComputeNodeLayout(txn("nan", 1, math.NaN(), 100.5), info)
	assert.Equal(t, DisplayInset, l.DurationDisplay)
	assert.Equal(t, 0.0, l.StartPercent)
}

func TestComputeNodeLayout_ZeroWindow(t *testing.T) {
	info := TraceInfo{StartTimestamp: 5, EndTimestamp: 5}
	l := ComputeNodeLayout(txn("x", 0, 5, 5), info)
	assert.Equal(t, 0.0, l.StartPercent)
	assert.Equal(t, 0.0, l.WidthPercent)
	assert.Equal(t, DisplayRight, l.DurationDisplay)
	assert.Equal(t, "0.000%", l.StartCSS)
}

func TestComputeNodeLayout_Labels(t *testing.T) {
	info := TraceInfo{StartTimestamp: 0, EndTimestamp: 20}
	l := ComputeNodeLayout(txn("x", 2, 0, 12.3456), info)
	assert.Equal(t, "12,345.60ms", l.DurationLabel)
	assert.Equal(t, "61.728%", l.WidthCSS)
	assert.Equal(t, 46, l.LeftOffsetPx)
	assert.Equal(t, ColorText, l.PillColor)
}

func TestOffsetForGeneration(t *testing.T) {
	assert.Equal(t, 0, OffsetForGeneration(0))
	assert.Equal(t, 23, OffsetForGeneration(1))
	assert.Equal(t, 69, OffsetForGeneration(3))
	for g := 1; g < 20; g++ {
		assert.Greater(t, OffsetForGeneration(g), OffsetForGeneration(g-1))
	}
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "0.00ms", HumanDuration(0))
	assert.Equal(t, "500.00ms", HumanDuration(0.5))
	assert.Equal(t, "1,500.00ms", HumanDuration(1.5))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-1, 0, 1))
	assert.Equal(t, 1.0, Clamp(2, 0, 1))
	assert.Equal(t, 0.25, Clamp(0.25, 0, 1))
	assert.Equal(t, 0.0, Clamp(math.NaN(), 0, 1))
}

func TestPillColor(t *testing.T) {
	assert.Equal(t, ColorWhite, PillColor(DisplayInset, false))
	assert.Equal(t, ColorGray300, PillColor(DisplayInset, true))
	assert.Equal(t, ColorText, PillColor(DisplayLeft, true))
	assert.Equal(t, ColorText, PillColor(DisplayRight, false))
}

func TestFlatten(t *testing.T) {
	rows := Flatten(sampleTree(), nil)
	require.Len(t, rows, 5)

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
		assert.Equal(t, i, r.Index)
		assert.True(t, r.IsVisible)
	}
	assert.Equal(t, []string{"root", "a", "a1", "a2", "b"}, ids)

	root := rows[0]
	assert.True(t, root.IsTraceRoot)
	assert.Equal(t, "Trace", root.Op)
	assert.Equal(t, "abc123", root.Name)
	assert.Equal(t, []ConnectorBar{{Key: "root", Toggle: true, RightPx: 16, HeightPx: 10, BottomPx: -5}}, root.Connectors)

	a := rows[1]
	assert.Equal(t, []TreeDepth{{Depth: 0}}, a.Continuing)
	require.Len(t, a.Connectors, 1)
	assert.True(t, a.Connectors[0].Toggle)
	assert.Equal(t, 0, a.Connectors[0].BottomPx)

	a1 := rows[2]
	assert.Equal(t, []TreeDepth{{Depth: 0}, {Depth: 1}}, a1.Continuing)
	assert.Equal(t, []ConnectorBar{{Key: "a1-0", LeftPx: -24}}, a1.Connectors)
	assert.Equal(t, 2, a1.PaletteIndex)

	a2 := rows[3]
	assert.True(t, a2.IsLast)
	assert.Equal(t, []TreeDepth{{Depth: 0}}, a2.Continuing)

	b := rows[4]
	assert.True(t, b.IsLast)
	assert.True(t, b.IsOrphan)
	assert.Empty(t, b.Continuing)
	assert.Empty(t, b.Connectors)
	assert.Equal(t, 1, b.ErrorCount)
	assert.Equal(t, DisplayLeft, b.Layout.DurationDisplay)
}

func TestFlatten_Collapsed(t *testing.T) {
	rows := Flatten(sampleTree(), map[string]bool{"a": true, "root": true})
	require.Len(t, rows, 5)

	assert.True(t, rows[0].IsExpanded, "root cannot collapse")
	assert.False(t, rows[1].IsExpanded)
	assert.Empty(t, rows[1].Connectors)

	visible := VisibleRows(rows)
	ids := make([]string, len(visible))
	for i, r := range visible {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"root", "a", "b"}, ids)
}

func TestFlatten_LastChildStub(t *testing.T) {
	root := &TraceNode{Kind: KindTraceRoot, ID: "root", EndTimestamp: 1,
		Children: []*TraceNode{txn("only", 1, 0, 1, txn("leaf", 2, 0, 1))}}
	rows := Flatten(root, nil)
	require.Len(t, rows, 3)
	require.Len(t, rows[1].Connectors, 1)
	assert.Equal(t, -RowHeight/2, rows[1].Connectors[0].BottomPx)
}

func TestFlatten_OrphanDepth(t *testing.T) {
	orphan := txn("o", 1, 0, 1, txn("o1", 2, 0, 1, txn("o11", 3, 0, 1)), txn("o2", 2, 0, 1))
	orphan.IsOrphan = true
	root := &TraceNode{Kind: KindTraceRoot, ID: "root", EndTimestamp: 1,
		Children: []*TraceNode{orphan, txn("z", 1, 0, 1)}}

	rows := Flatten(root, nil)
	var o11 Row
	for _, r := range rows {
		if r.ID == "o11" {
			o11 = r
		}
	}
	require.Equal(t, "o11", o11.ID)
	// depth 0 continues beside orphan o, depth 1 beside o1.
	require.Len(t, o11.Connectors, 2)
	assert.True(t, o11.Connectors[0].OrphanBranch)
	assert.Equal(t, -OffsetForGeneration(2)-1, o11.Connectors[0].LeftPx)
	assert.False(t, o11.Connectors[1].OrphanBranch)
	assert.Equal(t, -OffsetForGeneration(1)-1, o11.Connectors[1].LeftPx)
}

func TestConnectors_OrphanToggleStub(t *testing.T) {
	orphan := txn("o", 1, 0, 1, txn("o1", 2, 0, 1))
	orphan.IsOrphan = true

	bars := Connectors(orphan, []TreeDepth{{Depth: 0, IsOrphan: true}}, false, true)
	require.NotEmpty(t, bars)
	stub := bars[len(bars)-1]
	assert.True(t, stub.Toggle)
	assert.False(t, stub.OrphanBranch)
}
