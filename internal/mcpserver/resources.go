package mcpserver

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpany/tracelens/internal/seqdiag"
	"github.com/mcpany/tracelens/internal/viz"
)

// registerResources registers all MCP resources and resource templates.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "tracelens://stats",
		Name:        "stats",
		Description: "Trace buffer counts, capacity, and uptime.",
		MIMEType:    "text/plain",
	}, s.handleStatsResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "tracelens://traces",
		Name:        "traces",
		Description: "Recently captured traces, newest first.",
		MIMEType:    "text/plain",
	}, s.handleTracesResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "tracelens://file-sources",
		Name:        "file-sources",
		Description: "Directories being watched for trace files.",
		MIMEType:    "text/plain",
	}, s.handleFileSourcesResource)

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "tracelens://traces/{id}",
		Name:        "trace-detail",
		Description: "Sequence diagram and timing waterfall for one trace.",
		MIMEType:    "text/plain",
	}, s.handleTraceDetailResource)
}

// ─── Static resource handlers ───────────────────────────────────────────

func (s *Server) handleStatsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	stats := s.storage.Stats()

	var b strings.Builder
	b.WriteString("Trace Buffer\n")
	b.WriteString("════════════\n")
	fmt.Fprintf(&b, "  Buffered:   %s / %s (%s)\n",
		fmtNum(stats.TraceCount), fmtNum(stats.Capacity),
		fmtPct(stats.TraceCount, stats.Capacity))
	fmt.Fprintf(&b, "  Received:   %s\n", fmtNum(int(stats.TracesReceived)))
	fmt.Fprintf(&b, "  Errors:     %s\n", fmtNum(int(stats.ErrorsReceived)))
	fmt.Fprintf(&b, "  Uptime:     %.0fs\n", stats.UptimeSeconds)

	return textResult(req.Params.URI, b.String()), nil
}

func (s *Server) handleTracesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	recent := s.storage.GetRecent(50)

	var b strings.Builder
	fmt.Fprintf(&b, "Recent Traces (%d)\n", len(recent))
	b.WriteString("══════════════════\n")
	if len(recent) == 0 {
		b.WriteString("  (none)\n")
	} else {
		b.WriteString("  ID                    Spans  Duration   Status   Root\n")
		b.WriteString("  ───────────────────   ─────  ────────   ──────   ────\n")
		for _, tr := range recent {
			rootName := ""
			if tr.RootSpan != nil {
				rootName = tr.RootSpan.Name
			}
			fmt.Fprintf(&b, "  %-20s  %5d  %8dms  %-7s  %s\n",
				tr.ID, tr.SpanCount(), tr.TotalDuration, tr.Status, rootName)
		}
	}

	return textResult(req.Params.URI, b.String()), nil
}

func (s *Server) handleFileSourcesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	dirs := s.ListFileSources()

	var b strings.Builder
	fmt.Fprintf(&b, "File Sources (%d)\n", len(dirs))
	b.WriteString("═════════════════\n")
	if len(dirs) == 0 {
		b.WriteString("  (none)\n")
	} else {
		for _, dir := range dirs {
			fmt.Fprintf(&b, "  • %s\n", dir)
		}
	}

	return textResult(req.Params.URI, b.String()), nil
}

// ─── Resource template handlers ─────────────────────────────────────────

func (s *Server) handleTraceDetailResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	id, err := extractURIParam(req.Params.URI, "tracelens://traces/")
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	tr := s.storage.GetByID(id)
	if tr == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Trace: %s\n", tr.ID)
	b.WriteString(strings.Repeat("═", len(tr.ID)+7) + "\n")
	fmt.Fprintf(&b, "  Started:   %s\n", tr.Timestamp)
	fmt.Fprintf(&b, "  Duration:  %dms\n", tr.TotalDuration)
	fmt.Fprintf(&b, "  Status:    %s\n", tr.Status)
	fmt.Fprintf(&b, "  Trigger:   %s\n", tr.Trigger)
	fmt.Fprintf(&b, "  Spans:     %d\n\n", tr.SpanCount())

	if layout, err := seqdiag.Compute(tr); err == nil {
		b.WriteString("Sequence\n")
		b.WriteString("────────\n")
		b.WriteString(viz.Sequence(layout, defaultDiagramWidth))
		b.WriteString("\n")
	}

	b.WriteString("Waterfall\n")
	b.WriteString("─────────\n")
	b.WriteString(viz.Waterfall(tr, defaultDiagramWidth))

	return textResult(req.Params.URI, b.String()), nil
}

// ─── Helpers ────────────────────────────────────────────────────────────

// extractURIParam extracts the parameter value from a URI by stripping the
// prefix and URL-decoding the remainder.
func extractURIParam(uri, prefix string) (string, error) {
	if !strings.HasPrefix(uri, prefix) {
		return "", fmt.Errorf("invalid URI: %s", uri)
	}
	param := strings.TrimPrefix(uri, prefix)
	if param == "" {
		return "", fmt.Errorf("empty parameter in URI: %s", uri)
	}
	decoded, err := url.PathUnescape(param)
	if err != nil {
		return "", fmt.Errorf("invalid encoding in URI: %w", err)
	}
	return decoded, nil
}

// textResult wraps a string in a ReadResourceResult.
func textResult(uri, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:  uri,
			Text: text,
		}},
	}
}

// fmtNum formats an integer with comma separators (e.g. 10,000).
func fmtNum(n int) string {
	if n < 0 {
		return "-" + fmtNum(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	s := fmt.Sprintf("%d", n)
	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// fmtPct formats a percentage like "62%" or "100%".
func fmtPct(count, capacity int) string {
	if capacity == 0 {
		return "─"
	}
	pct := float64(count) / float64(capacity) * 100
	return fmt.Sprintf("%.0f%%", pct)
}
