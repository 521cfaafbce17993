// Package otlpreceiver accepts OTLP trace exports over gRPC and converts
// them into gateway traces. Upstream services instrumented with standard
// OpenTelemetry SDKs can feed the console without speaking its native
// JSON format.
package otlpreceiver

import (
	"context"
	"fmt"
	"net"
	"sync"

	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"

	"github.com/mcpany/tracelens/internal/trace"
)

// TraceSink receives assembled gateway traces. Implementations must be
// thread-safe as Export may be called concurrently.
type TraceSink interface {
	Add(tr *trace.Trace)
}

// Config holds configuration for the OTLP receiver.
type Config struct {
	Host string // e.g., "127.0.0.1"
	Port int    // 0 for ephemeral port assignment
}

// Server is the OTLP gRPC server that receives trace data.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	stopOnce   sync.Once
	stopChan   chan struct{}
	stopDone   chan struct{}
}

// NewServer creates a new OTLP gRPC server bound to the configured host
// and port (use port 0 for ephemeral). Exported spans are assembled into
// trace trees and passed to the sink.
func NewServer(cfg Config, sink TraceSink) (*Server, error) {
	if sink == nil {
		return nil, fmt.Errorf("trace sink cannot be nil")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer()
	collectortrace.RegisterTraceServiceServer(grpcServer, &traceServiceImpl{sink: sink})

	return &Server{
		listener:   listener,
		grpcServer: grpcServer,
		stopChan:   make(chan struct{}),
		stopDone:   make(chan struct{}, 1),
	}, nil
}

// Start begins serving OTLP requests. This method blocks until Stop is
// called or the context is cancelled; run it in a goroutine.
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

// Stop initiates graceful shutdown. Safe to call multiple times.
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

// Endpoint returns the actual listening address ("host:port"), which
// matters when an ephemeral port was requested.
func (s *Server) Endpoint() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// traceServiceImpl implements the OTLP TraceService gRPC interface.
type traceServiceImpl struct {
	collectortrace.UnimplementedTraceServiceServer
	sink TraceSink
}

// Export handles incoming trace export requests from OTLP clients. Each
// batch is assembled into complete trace trees before hitting storage.
func (t *traceServiceImpl) Export(
	ctx context.Context,
	req *collectortrace.ExportTraceServiceRequest,
) (*collectortrace.ExportTraceServiceResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}

	for _, tr := range Assemble(req.ResourceSpans) {
		t.sink.Add(tr)
	}

	return &collectortrace.ExportTraceServiceResponse{}, nil
}
