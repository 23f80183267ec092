package viz

// BufferStats describes buffer fill levels for the stats overview.
type BufferStats struct {
	SpanCount     int
	SpanCapacity  int
	PointCount    int
	PointCapacity int
	TraceCount    int
	ProjectCount  int
}

// ActivityTrace describes one stored trace for the trace listing.
type ActivityTrace struct {
	TraceID    string
	Service    string
	RootSpan   string
	SpanCount  int
	ErrorCount int
	DurationMs float64
}
