package otlpreceiver_test

import (
	"context"
	"testing"
	"time"

	collectormetrics "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tobert/tracestat/internal/otlpreceiver"
	"github.com/tobert/tracestat/internal/sample"
	"github.com/tobert/tracestat/internal/storage"
	"github.com/tobert/tracestat/internal/tracetree"
	"github.com/tobert/tracestat/internal/usage"
	"github.com/tobert/tracestat/internal/waterfall"
)

// TestEndToEnd sends a trace and outcome metrics over OTLP gRPC, then reads
// them back as a waterfall and a usage table.
func TestEndToEnd(t *testing.T) {
	store := storage.NewStore(1000, 10000)

	server, err := otlpreceiver.NewServer(otlpreceiver.Config{Host: "127.0.0.1", Port: 0}, store)
	if err != nil {
		t.Fatalf("failed to create OTLP server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := server.Start(ctx); err != nil {
			t.Logf("OTLP server stopped: %v", err)
		}
	}()
	defer server.Stop()

	conn, err := grpc.NewClient(server.Endpoint(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to create grpc client: %v", err)
	}
	defer conn.Close()

	now := time.Now()
	_, err = collectortrace.NewTraceServiceClient(conn).Export(ctx, &collectortrace.ExportTraceServiceRequest{
		ResourceSpans: sample.Trace(now.Add(-time.Minute)),
	})
	if err != nil {
		t.Fatalf("failed to export spans: %v", err)
	}
	_, err = collectormetrics.NewMetricsServiceClient(conn).Export(ctx, &collectormetrics.ExportMetricsServiceRequest{
		ResourceMetrics: sample.Outcomes(now, 3),
	})
	if err != nil {
		t.Fatalf("failed to export metrics: %v", err)
	}

	// Trace -> tree -> rows
	spans := store.Traces().GetSpansByTraceID(sample.TraceIDHex)
	if len(spans) != 5 {
		t.Fatalf("expected 5 spans for demo trace, got %d", len(spans))
	}
	tree, err := tracetree.Build(sample.TraceIDHex, spans)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	rows := waterfall.Flatten(tree.Root, nil)
	if len(rows) != 6 {
		t.Fatalf("expected 6 waterfall rows (root + 5), got %d", len(rows))
	}
	if rows[1].Name != "GET /api/users" {
		t.Errorf("expected root transaction first, got %q", rows[1].Name)
	}
	if last := rows[len(rows)-1]; !last.IsOrphan {
		t.Errorf("expected orphan last, got %+v", last.ID)
	}

	// Outcomes -> table
	q, err := usage.QueryForPeriod("14d", true)
	if err != nil {
		t.Fatal(err)
	}
	series, err := store.Outcomes().Series(q, now)
	if err != nil {
		t.Fatalf("Series failed: %v", err)
	}
	res := usage.Aggregate(series, usage.CategoryError, store.Outcomes().Projects(), usage.DefaultSort)
	if res.Err != nil {
		t.Fatalf("Aggregate failed: %v", res.Err)
	}
	if len(res.Rows) != len(sample.Projects) {
		t.Fatalf("expected %d rows, got %d", len(sample.Projects), len(res.Rows))
	}
	if res.Rows[0].Project.Slug != "worker" {
		t.Errorf("expected busiest project first, got %s", res.Rows[0].Project.Slug)
	}
	for _, row := range res.Rows {
		if row.Total != row.Accepted+row.Filtered+row.Dropped {
			t.Errorf("row %s: total %d does not equal its buckets", row.Project.Slug, row.Total)
		}
	}

	if stats := store.Stats(); stats.SpansReceived != 5 || stats.Generation < 2 {
		t.Errorf("unexpected store stats: %+v", stats)
	}
}
