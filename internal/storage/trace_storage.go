package storage

import (
	"context"
	"encoding/hex"
	"sort"
	"sync"

	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

// StoredSpan wraps a protobuf span with the fields trace assembly needs.
// It preserves the full OTLP hierarchy: ResourceSpans -> ScopeSpans -> Span.
type StoredSpan struct {
	ResourceSpan *tracepb.ResourceSpans
	ScopeSpan    *tracepb.ScopeSpans
	Span         *tracepb.Span

	TraceID      string
	SpanID       string
	ParentSpanID string // empty for root spans
	ServiceName  string
	SpanName     string

	// Start and End are Unix times in seconds.
	Start float64
	End   float64

	IsError       bool
	StatusMessage string
}

// TraceStorage stores OTLP spans in a ring buffer with a trace index that
// follows evictions.
type TraceStorage struct {
	spans      *RingBuffer[*StoredSpan]
	traceIndex map[string][]*StoredSpan // trace_id -> spans
	mu         sync.RWMutex              // protects traceIndex
}

// NewTraceStorage creates a new trace storage with the specified capacity.
func NewTraceStorage(capacity int) *TraceStorage {
	return &TraceStorage{
		spans:      NewRingBuffer[*StoredSpan](capacity),
		traceIndex: make(map[string][]*StoredSpan),
	}
}

// ReceiveSpans stores received spans and returns how many were added.
func (ts *TraceStorage) ReceiveSpans(ctx context.Context, resourceSpans []*tracepb.ResourceSpans) (int, error) {
	added := 0
	for _, rs := range resourceSpans {
		serviceName := extractServiceName(rs.Resource)

		for _, ss := range rs.ScopeSpans {
			for _, span := range ss.Spans {
				ts.addSpan(newStoredSpan(rs, ss, span, serviceName))
				added++
			}
		}
	}

	return added, nil
}

func newStoredSpan(rs *tracepb.ResourceSpans, ss *tracepb.ScopeSpans, span *tracepb.Span, serviceName string) *StoredSpan {
	stored := &StoredSpan{
		ResourceSpan: rs,
		ScopeSpan:    ss,
		Span:         span,
		TraceID:      hex.EncodeToString(span.TraceId),
		SpanID:       hex.EncodeToString(span.SpanId),
		ParentSpanID: hex.EncodeToString(span.ParentSpanId),
		ServiceName:  serviceName,
		SpanName:     span.Name,
		Start:        nanosToSeconds(span.StartTimeUnixNano),
		End:          nanosToSeconds(span.EndTimeUnixNano),
	}
	if span.Status != nil && span.Status.Code == tracepb.Status_STATUS_CODE_ERROR {
		stored.IsError = true
		stored.StatusMessage = span.Status.Message
	}
	return stored
}

// addSpan adds a span to storage and keeps the trace index in step with the
// ring buffer.
func (ts *TraceStorage) addSpan(span *StoredSpan) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if old, evicted := ts.spans.Add(span); evicted {
		ts.unindex(old)
	}
	ts.traceIndex[span.TraceID] = append(ts.traceIndex[span.TraceID], span)
}

// unindex drops an evicted span from the trace index. Caller holds ts.mu.
func (ts *TraceStorage) unindex(span *StoredSpan) {
	spans := ts.traceIndex[span.TraceID]
	for i, s := range spans {
		if s == span {
			spans = append(spans[:i:i], spans[i+1:]...)
			break
		}
	}
	if len(spans) == 0 {
		delete(ts.traceIndex, span.TraceID)
		return
	}
	ts.traceIndex[span.TraceID] = spans
}

// GetRecentSpans returns the N most recent spans in chronological order.
func (ts *TraceStorage) GetRecentSpans(n int) []*StoredSpan {
	return ts.spans.GetRecent(n)
}

// GetAllSpans returns all stored spans in chronological order (oldest to newest).
func (ts *TraceStorage) GetAllSpans() []*StoredSpan {
	return ts.spans.GetAll()
}

// GetSpansByTraceID returns all spans for a given trace ID.
// Returns nil if no spans are found for the trace ID.
func (ts *TraceStorage) GetSpansByTraceID(traceID string) []*StoredSpan {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	spans := ts.traceIndex[traceID]
	if len(spans) == 0 {
		return nil
	}

	result := make([]*StoredSpan, len(spans))
	copy(result, spans)
	return result
}

// TraceSummary is one line of the trace listing.
type TraceSummary struct {
	TraceID    string  `json:"trace_id"`
	RootSpan   string  `json:"root_span"`
	Service    string  `json:"service"`
	SpanCount  int     `json:"span_count"`
	ErrorCount int     `json:"error_count"`
	Start      float64 `json:"start"`
	DurationMs float64 `json:"duration_ms"`
}

// TraceSummaries lists stored traces, newest first. When service is not
// empty only traces with at least one span from that service are returned.
// limit <= 0 means no limit.
func (ts *TraceStorage) TraceSummaries(service string, limit int) []TraceSummary {
	ts.mu.RLock()
	summaries := make([]TraceSummary, 0, len(ts.traceIndex))
	for traceID, spans := range ts.traceIndex {
		if s, ok := summarize(traceID, spans, service); ok {
			summaries = append(summaries, s)
		}
	}
	ts.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Start != summaries[j].Start {
			return summaries[i].Start > summaries[j].Start
		}
		return summaries[i].TraceID < summaries[j].TraceID
	})

	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}

func summarize(traceID string, spans []*StoredSpan, service string) (TraceSummary, bool) {
	s := TraceSummary{TraceID: traceID, SpanCount: len(spans)}
	matched := service == ""
	start, end := spans[0].Start, spans[0].End

	for _, span := range spans {
		if span.ServiceName == service {
			matched = true
		}
		if span.IsError {
			s.ErrorCount++
		}
		start = min(start, span.Start)
		end = max(end, span.End)
		if span.ParentSpanID == "" && s.RootSpan == "" {
			s.RootSpan = span.SpanName
			s.Service = span.ServiceName
		}
	}
	if s.RootSpan == "" {
		s.RootSpan = spans[0].SpanName
		s.Service = spans[0].ServiceName
	}

	s.Start = start
	s.DurationMs = (end - start) * 1000
	return s, matched
}

// Stats returns current storage statistics.
func (ts *TraceStorage) Stats() StorageStats {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	return StorageStats{
		SpanCount:  ts.spans.Size(),
		Capacity:   ts.spans.Capacity(),
		TraceCount: len(ts.traceIndex),
	}
}

// Clear removes all stored spans and resets indexes.
func (ts *TraceStorage) Clear() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.spans.Clear()
	ts.traceIndex = make(map[string][]*StoredSpan)
}

// StorageStats contains statistics about trace storage.
type StorageStats struct {
	SpanCount  int `json:"span_count"`
	Capacity   int `json:"capacity"`
	TraceCount int `json:"trace_count"`
}

// extractServiceName extracts the service.name attribute from an OTLP resource.
// Returns "unknown" if the service name is not found.
func extractServiceName(resource *resourcepb.Resource) string {
	if resource == nil {
		return "unknown"
	}

	for _, attr := range resource.Attributes {
		if attr.Key == "service.name" {
			if sv := attr.Value.GetStringValue(); sv != "" {
				return sv
			}
		}
	}

	return "unknown"
}

func nanosToSeconds(ns uint64) float64 {
	return float64(ns) / 1e9
}
