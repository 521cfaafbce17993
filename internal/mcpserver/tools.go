package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpany/tracelens/internal/seqdiag"
	"github.com/mcpany/tracelens/internal/storage"
	"github.com/mcpany/tracelens/internal/trace"
	"github.com/mcpany/tracelens/internal/viz"
)

// defaultDiagramWidth is the terminal width ASCII renderings target when
// the caller does not specify one.
const defaultDiagramWidth = 120

// Tool 1: get_otlp_endpoint

type GetOTLPEndpointInput struct{}

type GetOTLPEndpointOutput struct {
	Endpoint        string            `json:"endpoint" jsonschema:"OTLP gRPC endpoint address for trace export"`
	Protocol        string            `json:"protocol" jsonschema:"Protocol type (grpc)"`
	EnvironmentVars map[string]string `json:"environment_vars" jsonschema:"Suggested environment variables for configuring gateways"`
}

func (s *Server) handleGetOTLPEndpoint(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetOTLPEndpointInput,
) (*mcp.CallToolResult, GetOTLPEndpointOutput, error) {
	if s.otlpReceiver == nil {
		return nil, GetOTLPEndpointOutput{}, fmt.Errorf("no OTLP receiver is running; traces come from file sources only")
	}
	endpoint := s.otlpReceiver.Endpoint()
	return &mcp.CallToolResult{}, GetOTLPEndpointOutput{
		Endpoint: endpoint,
		Protocol: "grpc",
		EnvironmentVars: map[string]string{
			"OTEL_EXPORTER_OTLP_ENDPOINT": endpoint,
			"OTEL_EXPORTER_OTLP_PROTOCOL": "grpc",
		},
	}, nil
}

// Tool 2: list_traces

type ListTracesInput struct {
	Limit      int  `json:"limit,omitempty" jsonschema:"Maximum number of traces to return (default 20, newest first)"`
	ErrorsOnly bool `json:"errors_only,omitempty" jsonschema:"Only return traces whose status is error"`
}

type TraceSummary struct {
	ID            string `json:"id" jsonschema:"Trace ID, usable with get_trace and get_sequence_diagram"`
	Timestamp     string `json:"timestamp" jsonschema:"Trace start time (RFC 3339)"`
	RootName      string `json:"root_name" jsonschema:"Name of the root span (the gateway entry point)"`
	TotalDuration int64  `json:"total_duration_ms" jsonschema:"Total trace duration in milliseconds"`
	Status        string `json:"status" jsonschema:"Overall status: success or error"`
	Trigger       string `json:"trigger" jsonschema:"What initiated the request: user, webhook, or system"`
	SpanCount     int    `json:"span_count" jsonschema:"Number of spans in the trace"`
}

type ListTracesOutput struct {
	Traces []TraceSummary `json:"traces" jsonschema:"Trace summaries, newest first"`
	Total  int            `json:"total" jsonschema:"Number of traces currently buffered"`
}

func summarizeTrace(tr *trace.Trace) TraceSummary {
	sum := TraceSummary{
		ID:            tr.ID,
		Timestamp:     tr.Timestamp,
		TotalDuration: tr.TotalDuration,
		Status:        tr.Status,
		Trigger:       tr.Trigger,
		SpanCount:     tr.SpanCount(),
	}
	if tr.RootSpan != nil {
		sum.RootName = tr.RootSpan.Name
	}
	return sum
}

func (s *Server) handleListTraces(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListTracesInput,
) (*mcp.CallToolResult, ListTracesOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	stats := s.storage.Stats()
	out := ListTracesOutput{
		Traces: []TraceSummary{},
		Total:  stats.TraceCount,
	}

	// Over-fetch when filtering so errors_only still fills the limit.
	fetch := limit
	if input.ErrorsOnly {
		fetch = stats.TraceCount
	}
	for _, tr := range s.storage.GetRecent(fetch) {
		if input.ErrorsOnly && tr.Status != trace.StatusError {
			continue
		}
		out.Traces = append(out.Traces, summarizeTrace(tr))
		if len(out.Traces) >= limit {
			break
		}
	}
	return &mcp.CallToolResult{}, out, nil
}

// Tool 3: get_trace

type GetTraceInput struct {
	TraceID string `json:"trace_id" jsonschema:"Trace ID from list_traces"`
}

type GetTraceOutput struct {
	Trace *trace.Trace `json:"trace" jsonschema:"Full trace with the nested span tree"`
}

func (s *Server) handleGetTrace(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetTraceInput,
) (*mcp.CallToolResult, GetTraceOutput, error) {
	tr := s.storage.GetByID(input.TraceID)
	if tr == nil {
		return nil, GetTraceOutput{}, fmt.Errorf("trace %q not found", input.TraceID)
	}
	return &mcp.CallToolResult{}, GetTraceOutput{Trace: tr}, nil
}

// Tool 4: get_sequence_diagram

type GetSequenceDiagramInput struct {
	TraceID string `json:"trace_id" jsonschema:"Trace ID from list_traces"`
	Format  string `json:"format,omitempty" jsonschema:"Output format: 'ascii' (default, rendered text diagram) or 'layout' (structured JSON with participants, events, and activations)"`
	Width   int    `json:"width,omitempty" jsonschema:"Target width in characters for ASCII output (default 120)"`
}

type GetSequenceDiagramOutput struct {
	Diagram string          `json:"diagram,omitempty" jsonschema:"ASCII sequence diagram (when format is ascii)"`
	Layout  *seqdiag.Layout `json:"layout,omitempty" jsonschema:"Structured layout model (when format is layout)"`
}

func (s *Server) handleGetSequenceDiagram(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetSequenceDiagramInput,
) (*mcp.CallToolResult, GetSequenceDiagramOutput, error) {
	tr := s.storage.GetByID(input.TraceID)
	if tr == nil {
		return nil, GetSequenceDiagramOutput{}, fmt.Errorf("trace %q not found", input.TraceID)
	}

	layout, err := seqdiag.Compute(tr)
	if err != nil {
		return nil, GetSequenceDiagramOutput{}, fmt.Errorf("compute layout: %w", err)
	}

	switch input.Format {
	case "layout":
		return &mcp.CallToolResult{}, GetSequenceDiagramOutput{Layout: layout}, nil
	case "", "ascii":
		width := input.Width
		if width <= 0 {
			width = defaultDiagramWidth
		}
		return &mcp.CallToolResult{}, GetSequenceDiagramOutput{
			Diagram: viz.Sequence(layout, width),
		}, nil
	default:
		return nil, GetSequenceDiagramOutput{}, fmt.Errorf("unknown format %q: use 'ascii' or 'layout'", input.Format)
	}
}

// Tool 5: get_waterfall

type GetWaterfallInput struct {
	TraceID string `json:"trace_id" jsonschema:"Trace ID from list_traces"`
	Width   int    `json:"width,omitempty" jsonschema:"Target width in characters (default 120)"`
}

type GetWaterfallOutput struct {
	Waterfall string `json:"waterfall" jsonschema:"ASCII waterfall showing span timing and nesting"`
}

func (s *Server) handleGetWaterfall(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetWaterfallInput,
) (*mcp.CallToolResult, GetWaterfallOutput, error) {
	tr := s.storage.GetByID(input.TraceID)
	if tr == nil {
		return nil, GetWaterfallOutput{}, fmt.Errorf("trace %q not found", input.TraceID)
	}

	width := input.Width
	if width <= 0 {
		width = defaultDiagramWidth
	}
	return &mcp.CallToolResult{}, GetWaterfallOutput{
		Waterfall: viz.Waterfall(tr, width),
	}, nil
}

// Tool 6: get_stats

type GetStatsInput struct{}

type GetStatsOutput struct {
	Stats storage.StorageStats `json:"stats" jsonschema:"Buffer counts, capacity, and uptime"`
}

func (s *Server) handleGetStats(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetStatsInput,
) (*mcp.CallToolResult, GetStatsOutput, error) {
	return &mcp.CallToolResult{}, GetStatsOutput{Stats: s.storage.Stats()}, nil
}

// Tool 7: clear_traces

type ClearTracesInput struct{}

type ClearTracesOutput struct {
	Message string `json:"message" jsonschema:"Confirmation message"`
}

func (s *Server) handleClearTraces(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ClearTracesInput,
) (*mcp.CallToolResult, ClearTracesOutput, error) {
	s.storage.Clear()
	return &mcp.CallToolResult{}, ClearTracesOutput{
		Message: "Cleared all buffered traces",
	}, nil
}

// Tool 8: add_trace_directory

type AddTraceDirectoryInput struct {
	Directory string `json:"directory" jsonschema:"Absolute path to a directory containing trace .json or .jsonl files"`
}

type AddTraceDirectoryOutput struct {
	Directories []string `json:"directories" jsonschema:"All directories currently being watched"`
	Success     bool     `json:"success" jsonschema:"Whether the directory was added"`
	Message     string   `json:"message,omitempty" jsonschema:"Additional information or error message"`
}

func (s *Server) handleAddTraceDirectory(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddTraceDirectoryInput,
) (*mcp.CallToolResult, AddTraceDirectoryOutput, error) {
	if input.Directory == "" {
		return &mcp.CallToolResult{}, AddTraceDirectoryOutput{
			Directories: s.ListFileSources(),
			Success:     false,
			Message:     "directory is required",
		}, nil
	}

	if err := s.AddFileSource(ctx, input.Directory); err != nil {
		return &mcp.CallToolResult{}, AddTraceDirectoryOutput{
			Directories: s.ListFileSources(),
			Success:     false,
			Message:     err.Error(),
		}, nil
	}

	dirs := s.ListFileSources()
	return &mcp.CallToolResult{}, AddTraceDirectoryOutput{
		Directories: dirs,
		Success:     true,
		Message:     fmt.Sprintf("watching %s - now tracking %d directories", input.Directory, len(dirs)),
	}, nil
}

// Tool 9: remove_trace_directory

type RemoveTraceDirectoryInput struct {
	Directory string `json:"directory" jsonschema:"Directory path previously added with add_trace_directory"`
}

type RemoveTraceDirectoryOutput struct {
	Directories []string `json:"directories" jsonschema:"Remaining watched directories"`
	Success     bool     `json:"success" jsonschema:"Whether the directory was removed"`
	Message     string   `json:"message,omitempty" jsonschema:"Additional information or error message"`
}

func (s *Server) handleRemoveTraceDirectory(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RemoveTraceDirectoryInput,
) (*mcp.CallToolResult, RemoveTraceDirectoryOutput, error) {
	if err := s.RemoveFileSource(input.Directory); err != nil {
		return &mcp.CallToolResult{}, RemoveTraceDirectoryOutput{
			Directories: s.ListFileSources(),
			Success:     false,
			Message:     err.Error(),
		}, nil
	}

	return &mcp.CallToolResult{}, RemoveTraceDirectoryOutput{
		Directories: s.ListFileSources(),
		Success:     true,
		Message:     fmt.Sprintf("stopped watching %s", input.Directory),
	}, nil
}

// Register all tools

func (s *Server) registerTools() error {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_otlp_endpoint",
		Description: "🚀 START HERE when exporting from a live gateway: get the OTLP gRPC endpoint address, then set OTEL_EXPORTER_OTLP_ENDPOINT=<endpoint> on the gateway process. Every trace it exports appears in list_traces within milliseconds.",
	}, s.handleGetOTLPEndpoint)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_traces",
		Description: "List recently captured gateway traces, newest first. Each entry shows the root operation, duration, span count, status, and what triggered it. Use errors_only=true to hunt failures. The returned IDs feed get_trace, get_sequence_diagram, and get_waterfall.",
	}, s.handleListTraces)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_trace",
		Description: "Get one trace's complete span tree: every core, service, tool, and resource span with timing, status, inputs, and outputs. Use when you need raw detail the diagram views summarize away.",
	}, s.handleGetTrace)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_sequence_diagram",
		Description: "Render a trace as a sequence diagram showing who called whom. ASCII format (default) draws lifelines and arrows for terminal reading; layout format returns the structured model (participants with columns, call/return events with rows, activation bars) for custom rendering. Perfect for answering 'what did the gateway actually do for this request?'.",
	}, s.handleGetSequenceDiagram)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_waterfall",
		Description: "Render a trace as a timing waterfall: one bar per span, indented by nesting, scaled to the trace window. Use to find where time went; use get_sequence_diagram to see the call structure instead.",
	}, s.handleGetWaterfall)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_stats",
		Description: "Buffer health dashboard: how many traces are held, total received, parse errors, capacity, and uptime. Check before long observations to make sure the ring buffer will not wrap past data you still need.",
	}, s.handleGetStats)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "clear_traces",
		Description: "Wipe all buffered traces. Use for a clean slate before reproducing an issue; there is no undo.",
	}, s.handleClearTraces)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "add_trace_directory",
		Description: "Watch a directory for gateway trace files (.json or .jsonl, native trace JSON or OTLP export lines). Existing files are loaded immediately and new writes are tailed live. Useful for replaying saved traces or following a gateway's file exporter.",
	}, s.handleAddTraceDirectory)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "remove_trace_directory",
		Description: "Stop watching a directory added with add_trace_directory. Already-loaded traces stay in the buffer.",
	}, s.handleRemoveTraceDirectory)

	return nil
}
