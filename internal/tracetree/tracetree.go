// Package tracetree assembles stored spans of one trace into the node tree
// the waterfall lays out.
package tracetree

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tobert/tracestat/internal/storage"
	"github.com/tobert/tracestat/internal/waterfall"
)

// MaxTraceSize caps how many transactions one tree holds.
const MaxTraceSize = 100

// ErrTraceNotFound is returned when there are no spans to build from.
var ErrTraceNotFound = errors.New("trace not found")

// Result is an assembled trace tree.
type Result struct {
	Root      *waterfall.TraceNode
	Truncated bool
	Warnings  []string
}

// Build turns the spans of traceID into a tree. The root is a synthetic
// trace node whose children are the real root transactions followed by
// orphans, each subtree walked breadth first with children ordered by start.
func Build(traceID string, spans []*storage.StoredSpan) (Result, error) {
	if len(spans) == 0 {
		return Result{}, fmt.Errorf("%s: %w", traceID, ErrTraceNotFound)
	}

	byID := make(map[string]*storage.StoredSpan, len(spans))
	for _, s := range spans {
		byID[s.SpanID] = s
	}

	var roots, orphans []*storage.StoredSpan
	children := make(map[string][]*storage.StoredSpan)
	for _, s := range spans {
		switch {
		case s.ParentSpanID == "":
			roots = append(roots, s)
		case byID[s.ParentSpanID] == nil:
			orphans = append(orphans, s)
		default:
			children[s.ParentSpanID] = append(children[s.ParentSpanID], s)
		}
	}
	byStart(roots)
	byStart(orphans)
	for _, c := range children {
		byStart(c)
	}

	var res Result
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		res.Warnings = append(res.Warnings, msg)
		log.Printf("⚠️  tracetree: %s\n", msg)
	}

	if len(roots) > 1 {
		warn("trace %s has %d root transactions, expected one", traceID, len(roots))
	}

	root := &waterfall.TraceNode{
		Kind:      waterfall.KindTraceRoot,
		ID:        traceID,
		TraceSlug: traceID,
	}

	type queued struct {
		span *storage.StoredSpan
		node *waterfall.TraceNode
	}
	var queue []queued
	visited := make(map[string]bool, len(spans))
	count := 0

	admit := func(s *storage.StoredSpan, parent *waterfall.TraceNode, generation int, orphan bool) {
		if visited[s.SpanID] {
			return
		}
		if count >= MaxTraceSize {
			res.Truncated = true
			return
		}
		visited[s.SpanID] = true
		count++

		n := newNode(s, generation, orphan)
		parent.Children = append(parent.Children, n)
		queue = append(queue, queued{span: s, node: n})
	}

	for _, s := range roots {
		admit(s, root, 1, false)
	}
	for _, s := range orphans {
		admit(s, root, 1, true)
	}

	for len(queue) > 0 {
		q := queue[0]
		queue = queue[1:]
		for _, c := range children[q.span.SpanID] {
			admit(c, q.node, q.node.Generation+1, q.node.IsOrphan)
		}
	}

	if res.Truncated {
		warn("trace %s exceeds %d transactions, output truncated", traceID, MaxTraceSize)
	}
	if unvisited := len(spans) - count; unvisited > 0 && !res.Truncated {
		warn("trace %s has %d spans unreachable from any root (span loop?)", traceID, unvisited)
	}

	root.StartTimestamp, root.EndTimestamp = window(root)
	res.Root = root
	return res, nil
}

func byStart(spans []*storage.StoredSpan) {
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
}

func newNode(s *storage.StoredSpan, generation int, orphan bool) *waterfall.TraceNode {
	return &waterfall.TraceNode{
		Kind:           waterfall.KindTransaction,
		ID:             s.SpanID,
		Generation:     generation,
		StartTimestamp: s.Start,
		EndTimestamp:   s.End,
		IsOrphan:       orphan,
		Errors:         errorRefs(s),
		Transaction: &waterfall.Transaction{
			EventID:     s.SpanID,
			SpanID:      s.SpanID,
			ProjectSlug: s.ServiceName,
			Op:          operation(s.Span),
			Name:        s.SpanName,
		},
	}
}

// operation prefers an explicit transaction.op attribute and falls back to
// the span kind.
func operation(span *tracepb.Span) string {
	if span == nil {
		return ""
	}
	for _, attr := range span.Attributes {
		if attr.Key == "transaction.op" {
			if v := attr.Value.GetStringValue(); v != "" {
				return v
			}
		}
	}
	kind := strings.TrimPrefix(span.Kind.String(), "SPAN_KIND_")
	return strings.ToLower(kind)
}

// errorRefs reports exception events, or the error status when the span
// carries no exception event.
func errorRefs(s *storage.StoredSpan) []waterfall.ErrorRef {
	var refs []waterfall.ErrorRef
	if s.Span != nil {
		for i, ev := range s.Span.Events {
			if ev.Name != "exception" {
				continue
			}
			var typ, msg string
			for _, attr := range ev.Attributes {
				switch attr.Key {
				case "exception.type":
					typ = attr.Value.GetStringValue()
				case "exception.message":
					msg = attr.Value.GetStringValue()
				}
			}
			refs = append(refs, waterfall.ErrorRef{
				EventID: fmt.Sprintf("%s-%d", s.SpanID, i),
				Title:   exceptionTitle(typ, msg),
				Level:   "error",
			})
		}
	}
	if len(refs) == 0 && s.IsError {
		title := s.StatusMessage
		if title == "" {
			title = "error status"
		}
		refs = append(refs, waterfall.ErrorRef{EventID: s.SpanID, Title: title, Level: "error"})
	}
	return refs
}

func exceptionTitle(typ, msg string) string {
	switch {
	case typ != "" && msg != "":
		return typ + ": " + msg
	case typ != "":
		return typ
	case msg != "":
		return msg
	}
	return "exception"
}

// window spans every transaction under root.
func window(root *waterfall.TraceNode) (start, end float64) {
	start, end = math.Inf(1), math.Inf(-1)
	var walk func(n *waterfall.TraceNode)
	walk = func(n *waterfall.TraceNode) {
		for _, c := range n.Children {
			start = math.Min(start, c.StartTimestamp)
			end = math.Max(end, c.EndTimestamp)
			walk(c)
		}
	}
	walk(root)
	if math.IsInf(start, 0) || math.IsInf(end, 0) {
		return 0, 0
	}
	return start, end
}
