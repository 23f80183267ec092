package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	collectormetrics "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tobert/tracestat/internal/sample"
)

// Sends the sample trace and sample outcome points to a running receiver.
// Usage: tracestat-sendtest <endpoint> [days]
// Example: tracestat-sendtest 127.0.0.1:38279 14
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <endpoint> [days]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s 127.0.0.1:38279 14\n", os.Args[0])
		os.Exit(1)
	}

	days := 14
	if len(os.Args) > 2 {
		n, err := strconv.Atoi(os.Args[2])
		if err != nil || n <= 0 {
			fmt.Fprintf(os.Stderr, "❌ days must be a positive integer, got %q\n", os.Args[2])
			os.Exit(1)
		}
		days = n
	}

	endpoint := os.Args[1]
	fmt.Printf("📡 Connecting to OTLP endpoint: %s\n", endpoint)

	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create grpc client: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now()

	fmt.Println("🚀 Sending sample trace...")
	_, err = collectortrace.NewTraceServiceClient(conn).Export(ctx, &collectortrace.ExportTraceServiceRequest{
		ResourceSpans: sample.Trace(now.Add(-time.Second)),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to export spans: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("🚀 Sending %d days of sample outcomes...\n", days)
	_, err = collectormetrics.NewMetricsServiceClient(conn).Export(ctx, &collectormetrics.ExportMetricsServiceRequest{
		ResourceMetrics: sample.Outcomes(now, days),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to export outcomes: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ Sample data exported successfully!")
	fmt.Printf("📊 Trace ID: %s\n", sample.TraceIDHex)
	for _, p := range sample.Projects {
		fmt.Printf("   - project %s (%s)\n", p.Slug, p.ID)
	}
}
