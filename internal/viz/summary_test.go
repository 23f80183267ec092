package viz

import (
	"strings"
	"testing"
)

func TestStatsOverview(t *testing.T) {
	stats := BufferStats{
		SpanCount:     1204,
		SpanCapacity:  10000,
		PointCount:    4891,
		PointCapacity: 50000,
		TraceCount:    37,
		ProjectCount:  3,
	}
	result := StatsOverview(stats)

	for _, want := range []string{"Buffer Health", "Spans", "Outcomes", "1,204", "37 distinct", "Projects: 3"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected %q, got:\n%s", want, result)
		}
	}
}

func TestStatsOverview_Empty(t *testing.T) {
	result := StatsOverview(BufferStats{SpanCapacity: 10000, PointCapacity: 50000})
	if !strings.Contains(result, "Buffer Health") {
		t.Errorf("expected header even for empty buffers, got:\n%s", result)
	}
	if !strings.Contains(result, "[....................]") {
		t.Errorf("expected empty bar, got:\n%s", result)
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{10000, "10,000"},
		{1234567, "1,234,567"},
	}
	for _, tt := range tests {
		got := formatCount(tt.input)
		if got != tt.expected {
			t.Errorf("formatCount(%d) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
