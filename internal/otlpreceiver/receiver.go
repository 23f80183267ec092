package otlpreceiver

import (
	"context"
	"fmt"
	"net"
	"sync"

	collectormetrics "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/grpc"
)

// Receiver accepts spans and outcome metrics. It is typically implemented by
// storage.Store. Implementations should be thread-safe as Export may be
// called concurrently.
type Receiver interface {
	ReceiveSpans(ctx context.Context, spans []*tracepb.ResourceSpans) error
	ReceiveMetrics(ctx context.Context, metrics []*metricspb.ResourceMetrics) error
}

// Config holds configuration for the OTLP receiver.
type Config struct {
	Host string // e.g., "127.0.0.1"
	Port int    // 0 for ephemeral port assignment
}

// Server is a single OTLP gRPC server serving the trace and metrics services.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	receiver   Receiver
	stopOnce   sync.Once
	stopChan   chan struct{}
	stopDone   chan struct{}
}

// NewServer creates a new OTLP gRPC server.
// The server will bind to the configured host and port (use port 0 for ephemeral).
func NewServer(cfg Config, receiver Receiver) (*Server, error) {
	if receiver == nil {
		return nil, fmt.Errorf("receiver cannot be nil")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer()

	server := &Server{
		listener:   listener,
		grpcServer: grpcServer,
		receiver:   receiver,
		stopChan:   make(chan struct{}),
		stopDone:   make(chan struct{}, 1),
	}

	collectortrace.RegisterTraceServiceServer(grpcServer, &traceService{receiver: receiver})
	collectormetrics.RegisterMetricsServiceServer(grpcServer, &metricsService{receiver: receiver})

	return server, nil
}

// Start begins serving OTLP requests. This method blocks until Stop is called
// or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopChan:
		}
	}()

	err := s.grpcServer.Serve(s.listener)
	s.stopDone <- struct{}{}
	return err
}

// Stop initiates graceful shutdown of the server.
// Safe to call multiple times.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.grpcServer.GracefulStop()
		close(s.stopChan)
	})
}

// StopWait stops the server and waits for shutdown to complete.
func (s *Server) StopWait() {
	s.Stop()
	<-s.stopDone
}

// Endpoint returns the actual listening address, e.g. "127.0.0.1:54321".
func (s *Server) Endpoint() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

type traceService struct {
	collectortrace.UnimplementedTraceServiceServer
	receiver Receiver
}

func (t *traceService) Export(
	ctx context.Context,
	req *collectortrace.ExportTraceServiceRequest,
) (*collectortrace.ExportTraceServiceResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}

	if err := t.receiver.ReceiveSpans(ctx, req.ResourceSpans); err != nil {
		return nil, fmt.Errorf("failed to receive spans: %w", err)
	}

	return &collectortrace.ExportTraceServiceResponse{}, nil
}

type metricsService struct {
	collectormetrics.UnimplementedMetricsServiceServer
	receiver Receiver
}

func (m *metricsService) Export(
	ctx context.Context,
	req *collectormetrics.ExportMetricsServiceRequest,
) (*collectormetrics.ExportMetricsServiceResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}

	if err := m.receiver.ReceiveMetrics(ctx, req.ResourceMetrics); err != nil {
		return nil, fmt.Errorf("failed to receive metrics: %w", err)
	}

	return &collectormetrics.ExportMetricsServiceResponse{}, nil
}
