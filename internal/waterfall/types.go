// Package waterfall computes the geometry of a trace waterfall: where each
// transaction bar starts, how wide it is, where its duration label goes, and
// which connector lines draw the tree. It performs no rendering itself.
package waterfall

// Kind discriminates the two node variants of a trace tree.
type Kind int

const (
	// KindTraceRoot is the synthetic node standing for the whole trace.
	KindTraceRoot Kind = iota
	// KindTransaction is a fully detailed transaction event.
	KindTransaction
)

func (k Kind) String() string {
	if k == KindTraceRoot {
		return "trace"
	}
	return "transaction"
}

// ErrorRef points at an error event attached to a transaction.
type ErrorRef struct {
	EventID string `json:"event_id"`
	Title   string `json:"title"`
	Level   string `json:"level"`
}

// Transaction holds the fields only a detailed transaction carries.
type Transaction struct {
	EventID     string `json:"event_id"`
	SpanID      string `json:"span_id"`
	ProjectSlug string `json:"project_slug"`
	Op          string `json:"transaction.op"`
	Name        string `json:"transaction"`
}

// TraceNode is one node of a trace tree. Timestamps are in seconds.
// Trees are built once per fetch and never mutated afterwards.
type TraceNode struct {
	Kind           Kind         `json:"kind"`
	ID             string       `json:"id"`
	Generation     int          `json:"generation"`
	StartTimestamp float64      `json:"start_timestamp"`
	EndTimestamp   float64      `json:"timestamp"`
	Children       []*TraceNode `json:"children,omitempty"`
	IsOrphan       bool         `json:"is_orphan,omitempty"`
	Errors         []ErrorRef   `json:"errors,omitempty"`

	// TraceSlug is set on KindTraceRoot nodes.
	TraceSlug string `json:"trace_slug,omitempty"`
	// Transaction is set on KindTransaction nodes.
	Transaction *Transaction `json:"transaction,omitempty"`
}

// IsFullDetailed reports whether n is a detailed transaction rather than the
// synthetic trace root.
func IsFullDetailed(n *TraceNode) bool {
	return n != nil && n.Kind == KindTransaction && n.Transaction != nil
}

// Title returns the operation and name shown in the row title.
func (n *TraceNode) Title() (op, name string) {
	if IsFullDetailed(n) {
		return n.Transaction.Op, n.Transaction.Name
	}
	return "Trace", n.TraceSlug
}

// Duration returns the node's duration in seconds.
func (n *TraceNode) Duration() float64 {
	d := n.EndTimestamp - n.StartTimestamp
	if d < 0 {
		return -d
	}
	return d
}

// TraceInfo summarizes the time window and depth of a whole trace.
type TraceInfo struct {
	StartTimestamp float64 `json:"start_timestamp"`
	EndTimestamp   float64 `json:"end_timestamp"`
	MaxGeneration  int     `json:"max_generation"`
	Transactions   int     `json:"transactions"`
	Errors         int     `json:"errors"`
}
