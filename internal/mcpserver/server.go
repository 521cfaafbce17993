// Package mcpserver exposes the trace buffer and sequence-diagram engine
// over the Model Context Protocol so agents can inspect gateway traffic.
package mcpserver

import (
	"context"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpany/tracelens/internal/filereader"
	"github.com/mcpany/tracelens/internal/otlpreceiver"
	"github.com/mcpany/tracelens/internal/storage"
)

// Server wraps the MCP server with trace storage and the OTLP receiver.
// Tools operate on the shared in-memory trace buffer; diagrams are
// computed on demand from stored traces.
type Server struct {
	mcpServer    *mcp.Server
	storage      *storage.TraceStorage
	otlpReceiver *otlpreceiver.Server // nil when running without a receiver

	// File sources, keyed by watched directory.
	fileSourcesMu sync.RWMutex
	fileSources   map[string]*filereader.FileSource
	verbose       bool
}

// ServerOptions configures the MCP server.
type ServerOptions struct {
	Verbose bool // Enable verbose logging
}

// NewServer creates an MCP server exposing trace inspection tools.
// The otlpReceiver may be nil when traces come only from file sources.
func NewServer(store *storage.TraceStorage, otlpReceiver *otlpreceiver.Server, opts ...ServerOptions) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("trace storage cannot be nil")
	}

	var verbose bool
	if len(opts) > 0 {
		verbose = opts[0].Verbose
	}

	s := &Server{
		storage:      store,
		otlpReceiver: otlpReceiver,
		fileSources:  make(map[string]*filereader.FileSource),
		verbose:      verbose,
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "tracelens",
		Title:   "Gateway Trace Sequence Diagrams",
		Version: "0.2.0",
	}, &mcp.ServerOptions{
		Instructions: `Gateway trace inspector. Captures request traces in memory and renders
them as sequence diagrams and waterfalls.

Workflow: list_traces -> pick an ID -> get_sequence_diagram or get_waterfall.

Tools: list_traces (recent summaries), get_trace (full span tree),
get_sequence_diagram (layout JSON or ASCII), get_waterfall (timing view),
get_stats (buffer health), clear_traces, add_trace_directory (watch files).
Resources: tracelens://stats, tracelens://traces, tracelens://traces/{id}.`,
		SubscribeHandler:   func(_ context.Context, _ *mcp.SubscribeRequest) error { return nil },
		UnsubscribeHandler: func(_ context.Context, _ *mcp.UnsubscribeRequest) error { return nil },
	})

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	s.registerResources()

	return s, nil
}

// Run starts the MCP server on stdio transport. It blocks until the
// context is cancelled or EOF is received on stdin.
func (s *Server) Run(ctx context.Context) error {
	transport := &mcp.StdioTransport{}
	err := s.mcpServer.Run(ctx, transport)

	s.stopAllFileSources()

	return err
}

// MCPServer returns the underlying mcp.Server for alternative transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// Shutdown performs cleanup when using non-stdio transports. For stdio
// transport, Run handles this automatically.
func (s *Server) Shutdown() {
	s.stopAllFileSources()
}

// AddFileSource starts watching a directory for trace files. Returns an
// error if the directory is already being watched.
func (s *Server) AddFileSource(ctx context.Context, directory string) error {
	s.fileSourcesMu.Lock()
	defer s.fileSourcesMu.Unlock()

	if _, exists := s.fileSources[directory]; exists {
		return fmt.Errorf("directory %s is already being watched", directory)
	}

	fs, err := filereader.New(filereader.Config{
		Directory: directory,
		Verbose:   s.verbose,
	}, s.storage)
	if err != nil {
		return fmt.Errorf("failed to create file source: %w", err)
	}

	if err := fs.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file source: %w", err)
	}

	s.fileSources[directory] = fs
	return nil
}

// RemoveFileSource stops and removes a file source. The source is removed
// from the map under the lock, then stopped outside the lock so fs.Stop
// cannot block other operations.
func (s *Server) RemoveFileSource(directory string) error {
	s.fileSourcesMu.Lock()
	fs, exists := s.fileSources[directory]
	if !exists {
		s.fileSourcesMu.Unlock()
		return fmt.Errorf("directory %s is not being watched", directory)
	}
	delete(s.fileSources, directory)
	s.fileSourcesMu.Unlock()

	fs.Stop()
	return nil
}

// ListFileSources returns all watched directories.
func (s *Server) ListFileSources() []string {
	s.fileSourcesMu.RLock()
	defer s.fileSourcesMu.RUnlock()

	dirs := make([]string, 0, len(s.fileSources))
	for dir := range s.fileSources {
		dirs = append(dirs, dir)
	}
	return dirs
}

// stopAllFileSources stops every file source. Sources are collected and
// the map cleared under the lock, then stopped outside it so a slow
// fs.Stop cannot block other file-source operations.
func (s *Server) stopAllFileSources() {
	s.fileSourcesMu.Lock()
	sources := make([]*filereader.FileSource, 0, len(s.fileSources))
	for _, fs := range s.fileSources {
		sources = append(sources, fs)
	}
	clear(s.fileSources)
	s.fileSourcesMu.Unlock()

	for _, fs := range sources {
		fs.Stop()
	}
}
