package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

// Store provides unified access to stored spans and outcome points. It is
// the receiver handed to the OTLP server and file sources, and the data
// source behind MCP tools and the web API.
type Store struct {
	traces   *TraceStorage
	outcomes *OutcomeStorage

	// Monotonic counters (never reset)
	spansReceived  atomic.Uint64
	pointsReceived atomic.Uint64

	// Generation counter for change detection and cache keys.
	// Incremented on any receipt and on Clear.
	generation atomic.Uint64

	// Subscriber notification for real-time streaming (e.g. WebSocket)
	subscriberMu     sync.Mutex
	subscribers      map[uint64]chan struct{}
	nextSubscriberID uint64

	startTime time.Time
}

// NewStore creates a store with the specified capacities.
func NewStore(traceCapacity, outcomeCapacity int) *Store {
	return &Store{
		traces:      NewTraceStorage(traceCapacity),
		outcomes:    NewOutcomeStorage(outcomeCapacity),
		subscribers: make(map[uint64]chan struct{}),
		startTime:   time.Now(),
	}
}

// Traces returns the underlying trace storage.
func (s *Store) Traces() *TraceStorage {
	return s.traces
}

// Outcomes returns the underlying outcome storage.
func (s *Store) Outcomes() *OutcomeStorage {
	return s.outcomes
}

// ReceiveSpans implements the trace receiver interface.
func (s *Store) ReceiveSpans(ctx context.Context, resourceSpans []*tracepb.ResourceSpans) error {
	n, err := s.traces.ReceiveSpans(ctx, resourceSpans)
	if n > 0 {
		s.spansReceived.Add(uint64(n))
		s.bump()
	}
	return err
}

// ReceiveMetrics implements the metrics receiver interface. Only outcome
// metrics are retained.
func (s *Store) ReceiveMetrics(ctx context.Context, resourceMetrics []*metricspb.ResourceMetrics) error {
	n, err := s.outcomes.ReceiveMetrics(ctx, resourceMetrics)
	if n > 0 {
		s.pointsReceived.Add(uint64(n))
		s.bump()
	}
	return err
}

func (s *Store) bump() {
	s.generation.Add(1)
	s.notifySubscribers()
}

// Generation returns a counter that changes whenever stored data changes.
func (s *Store) Generation() uint64 {
	return s.generation.Load()
}

// Subscribe returns a notification channel and an unsubscribe function.
// The channel receives a signal (non-blocking) whenever stored data changes.
// The channel is buffered with capacity 1 to coalesce rapid updates.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()

	id := s.nextSubscriberID
	s.nextSubscriberID++

	ch := make(chan struct{}, 1)
	s.subscribers[id] = ch

	unsubscribe := func() {
		s.subscriberMu.Lock()
		defer s.subscriberMu.Unlock()
		delete(s.subscribers, id)
	}

	return ch, unsubscribe
}

// notifySubscribers sends a non-blocking signal to all subscriber channels.
func (s *Store) notifySubscribers() {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// Pending notification already queued.
		}
	}
}

// AllStats summarizes the whole store.
type AllStats struct {
	Traces         StorageStats `json:"traces"`
	Outcomes       OutcomeStats `json:"outcomes"`
	Generation     uint64       `json:"generation"`
	SpansReceived  uint64       `json:"spans_received"`
	PointsReceived uint64       `json:"points_received"`
	UptimeSeconds  float64      `json:"uptime_seconds"`
}

// Stats returns statistics for all storage.
func (s *Store) Stats() AllStats {
	return AllStats{
		Traces:         s.traces.Stats(),
		Outcomes:       s.outcomes.Stats(),
		Generation:     s.Generation(),
		SpansReceived:  s.spansReceived.Load(),
		PointsReceived: s.pointsReceived.Load(),
		UptimeSeconds:  time.Since(s.startTime).Seconds(),
	}
}

// Clear removes all spans and outcome points.
func (s *Store) Clear() {
	s.traces.Clear()
	s.outcomes.Clear()
	s.bump()
}
