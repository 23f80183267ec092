package waterfall

import "fmt"

// TreeDepth marks an ancestor generation whose vertical connector continues
// past the current row.
type TreeDepth struct {
	Depth    int  `json:"depth"`
	IsOrphan bool `json:"is_orphan,omitempty"`
}

// ConnectorBar is one line segment of the tree drawn left of a row.
// Vertical bars have LeftPx set; toggle stubs have RightPx and HeightPx set.
type ConnectorBar struct {
	Key          string `json:"key"`
	Toggle       bool   `json:"toggle,omitempty"`
	LeftPx       int    `json:"left_px,omitempty"`
	RightPx      int    `json:"right_px,omitempty"`
	HeightPx     int    `json:"height_px,omitempty"`
	BottomPx     int    `json:"bottom_px"`
	OrphanBranch bool   `json:"orphan_branch,omitempty"`
}

// Toggle stub geometry.
const (
	toggleStubRight  = 16
	toggleStubHeight = 10
)

// Connectors returns the bars drawn left of node. continuing lists the
// ancestor generations whose branches have further siblings below this row.
// A stub toward the toggle is added when the node is expanded and has
// children. The stub is never styled as an orphan branch; orphan styling
// belongs to the row.
func Connectors(node *TraceNode, continuing []TreeDepth, isLast, expanded bool) []ConnectorBar {
	var bars []ConnectorBar
	stub := expanded && len(node.Children) > 0

	if node.Generation == 0 {
		if stub {
			bars = append(bars, ConnectorBar{
				Key:      "root",
				Toggle:   true,
				RightPx:  toggleStubRight,
				HeightPx: toggleStubHeight,
				BottomPx: -toggleStubHeight / 2,
			})
		}
		return bars
	}

	for _, d := range continuing {
		if node.Generation-d.Depth <= 1 {
			continue
		}
		bars = append(bars, ConnectorBar{
			Key:          fmt.Sprintf("%s-%d", node.ID, d.Depth),
			LeftPx:       -OffsetForGeneration(node.Generation-d.Depth-1) - 1,
			OrphanBranch: d.IsOrphan,
		})
	}

	if stub {
		bottom := 0
		if isLast {
			bottom = -RowHeight / 2
		}
		bars = append(bars, ConnectorBar{
			Key:      node.ID + "-toggle",
			Toggle:   true,
			RightPx:  toggleStubRight,
			HeightPx: toggleStubHeight,
			BottomPx: bottom,
		})
	}
	return bars
}

// Row is one flattened waterfall row with its geometry.
type Row struct {
	Index        int            `json:"index"`
	Node         *TraceNode     `json:"-"`
	ID           string         `json:"id"`
	Op           string         `json:"op"`
	Name         string         `json:"name"`
	Generation   int            `json:"generation"`
	IsLast       bool           `json:"is_last"`
	IsVisible    bool           `json:"is_visible"`
	IsExpanded   bool           `json:"is_expanded"`
	HasToggle    bool           `json:"has_toggle"`
	NumChildren  int            `json:"num_children"`
	PaletteIndex int            `json:"palette_index"`
	Continuing   []TreeDepth    `json:"continuing,omitempty"`
	Connectors   []ConnectorBar `json:"connectors,omitempty"`
	Layout       LayoutResult   `json:"layout"`
	ErrorCount   int            `json:"error_count"`
	IsOrphan     bool           `json:"is_orphan,omitempty"`
	IsTraceRoot  bool           `json:"is_trace_root,omitempty"`
	ProjectSlug  string         `json:"project_slug,omitempty"`
}

// Flatten walks the tree depth first and returns one row per node, including
// rows hidden under collapsed ancestors (IsVisible false). Nodes present in
// collapsed are shown with their subtree hidden; the root cannot collapse.
func Flatten(root *TraceNode, collapsed map[string]bool) []Row {
	if root == nil {
		return nil
	}
	info := ComputeTraceInfo(root)
	palette := info.MaxGeneration + 1

	var rows []Row
	var walk func(n *TraceNode, continuing []TreeDepth, isLast, visible bool)
	walk = func(n *TraceNode, continuing []TreeDepth, isLast, visible bool) {
		expanded := n.Generation == 0 || !collapsed[n.ID]
		op, name := n.Title()
		row := Row{
			Index:        len(rows),
			Node:         n,
			ID:           n.ID,
			Op:           op,
			Name:         name,
			Generation:   n.Generation,
			IsLast:       isLast,
			IsVisible:    visible,
			IsExpanded:   expanded,
			HasToggle:    len(n.Children) > 0,
			NumChildren:  len(n.Children),
			PaletteIndex: n.Generation % palette,
			Continuing:   continuing,
			Layout:       ComputeNodeLayout(n, info),
			ErrorCount:   len(n.Errors),
			IsOrphan:     n.IsOrphan,
			IsTraceRoot:  n.Kind == KindTraceRoot,
		}
		if IsFullDetailed(n) {
			row.ProjectSlug = n.Transaction.ProjectSlug
		}
		row.Connectors = Connectors(n, continuing, isLast, expanded)
		rows = append(rows, row)

		for i, c := range n.Children {
			last := i == len(n.Children)-1
			// The parent's branch line keeps running beside the subtree of
			// every child that has later siblings.
			next := continuing
			if !last {
				next = appendDepth(continuing, TreeDepth{Depth: n.Generation, IsOrphan: c.IsOrphan})
			}
			walk(c, next, last, visible && expanded)
		}
	}
	walk(root, nil, true, true)
	return rows
}

// appendDepth copies so sibling subtrees never share a backing array.
func appendDepth(depths []TreeDepth, d TreeDepth) []TreeDepth {
	out := make([]TreeDepth, len(depths), len(depths)+1)
	copy(out, depths)
	return append(out, d)
}

// VisibleRows filters rows down to those currently shown.
func VisibleRows(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.IsVisible {
			out = append(out, r)
		}
	}
	return out
}
