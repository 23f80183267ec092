package storage

import (
	"context"
	"testing"
	"time"

	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

func TestStoreGenerationAndStats(t *testing.T) {
	s := NewStore(100, 100)
	ctx := context.Background()

	if s.Generation() != 0 {
		t.Fatalf("expected generation 0, got %d", s.Generation())
	}

	s.ReceiveSpans(ctx, []*tracepb.ResourceSpans{makeTestSpan(1, 1, 0, "svc", "a", 0, 1)})
	afterSpans := s.Generation()
	if afterSpans == 0 {
		t.Fatal("expected generation to advance on spans")
	}

	s.ReceiveMetrics(ctx, outcomeMetrics("svc", outcomeDP(fixedNow, "error", "accepted", "1", 2)))
	if s.Generation() <= afterSpans {
		t.Fatal("expected generation to advance on outcome points")
	}

	// Metrics without outcome points change nothing.
	before := s.Generation()
	s.ReceiveMetrics(ctx, outcomeMetrics("svc"))
	if s.Generation() != before {
		t.Error("expected generation to stay put for non-outcome metrics")
	}

	stats := s.Stats()
	if stats.SpansReceived != 1 || stats.PointsReceived != 1 {
		t.Errorf("unexpected counters: %+v", stats)
	}
	if stats.Traces.TraceCount != 1 || stats.Outcomes.PointCount != 1 {
		t.Errorf("unexpected storage stats: %+v", stats)
	}

	gen := s.Generation()
	s.Clear()
	if s.Generation() <= gen {
		t.Error("expected Clear to advance generation")
	}
	if stats := s.Stats(); stats.Traces.SpanCount != 0 || stats.Outcomes.PointCount != 0 {
		t.Errorf("expected empty store after clear, got %+v", stats)
	}
}

func TestStoreSubscribe(t *testing.T) {
	s := NewStore(10, 10)
	ch, unsubscribe := s.Subscribe()

	s.ReceiveSpans(context.Background(), []*tracepb.ResourceSpans{makeTestSpan(1, 1, 0, "svc", "a", 0, 1)})
	s.ReceiveSpans(context.Background(), []*tracepb.ResourceSpans{makeTestSpan(1, 2, 1, "svc", "b", 0, 1)})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a notification")
	}

	// Rapid updates coalesce into one pending signal.
	select {
	case <-ch:
		t.Fatal("expected notifications to coalesce")
	default:
	}

	unsubscribe()
	s.Clear()
	select {
	case <-ch:
		t.Fatal("expected no notification after unsubscribe")
	default:
	}
}
