package viz

import (
	"strings"
	"testing"

	"github.com/mcpany/tracelens/internal/trace"
)

func TestWaterfall_Empty(t *testing.T) {
	if got := Waterfall(nil, 80); got != "" {
		t.Errorf("expected empty string for nil trace, got %q", got)
	}
	if got := Waterfall(&trace.Trace{ID: "x"}, 80); got != "" {
		t.Errorf("expected empty string for rootless trace, got %q", got)
	}
}

func TestWaterfall_SingleSpan(t *testing.T) {
	tr := &trace.Trace{
		ID: "abc12345xyz",
		RootSpan: &trace.Span{
			ID: "s1", Name: "GET /", Type: trace.TypeService, ServiceName: "my-svc",
			StartTime: 1000, EndTime: 2000, Status: trace.StatusSuccess,
		},
	}
	result := Waterfall(tr, 80)
	if !strings.Contains(result, "Trace abc12345") {
		t.Errorf("expected truncated trace header, got:\n%s", result)
	}
	if !strings.Contains(result, "1 spans") {
		t.Errorf("expected '1 spans' in header, got:\n%s", result)
	}
	if !strings.Contains(result, "service.my-svc") {
		t.Errorf("expected span label, got:\n%s", result)
	}
	if !strings.Contains(result, "1.0s") {
		t.Errorf("expected duration, got:\n%s", result)
	}
}

func TestWaterfall_NestedChildren(t *testing.T) {
	tr := &trace.Trace{
		ID: "aabbcc",
		RootSpan: &trace.Span{
			ID: "root", Name: "op", Type: trace.TypeCore, StartTime: 0, EndTime: 500,
			Children: []*trace.Span{
				{ID: "c1", Name: "query", Type: trace.TypeTool, StartTime: 10, EndTime: 100},
				{ID: "c2", Name: "get", Type: trace.TypeTool, StartTime: 110, EndTime: 130},
			},
		},
	}
	result := Waterfall(tr, 80)
	if !strings.Contains(result, "3 spans") {
		t.Errorf("expected '3 spans', got:\n%s", result)
	}
	if !strings.Contains(result, "├─") || !strings.Contains(result, "└─") {
		t.Errorf("expected tree connectors, got:\n%s", result)
	}
}

func TestWaterfall_ErrorSpan(t *testing.T) {
	tr := &trace.Trace{
		ID: "err1",
		RootSpan: &trace.Span{
			ID: "s1", Name: "op", Type: trace.TypeTool,
			StartTime: 0, EndTime: 10, Status: trace.StatusError,
		},
	}
	result := Waterfall(tr, 80)
	if !strings.Contains(result, "!! ERR") {
		t.Errorf("expected error indicator, got:\n%s", result)
	}
}

func TestWaterfall_ZeroDuration(t *testing.T) {
	tr := &trace.Trace{
		ID: "zero1",
		RootSpan: &trace.Span{
			ID: "s1", Name: "instant", Type: trace.TypeTool, StartTime: 1000, EndTime: 1000,
		},
	}
	result := Waterfall(tr, 80)
	if !strings.Contains(result, "0ms") {
		t.Errorf("expected 0ms duration, got:\n%s", result)
	}
	if !strings.Contains(result, "##") {
		t.Errorf("expected filled bar for zero-duration trace, got:\n%s", result)
	}
}

func TestWaterfall_ChildOutsideParentWindow(t *testing.T) {
	// Broken instrumentation: child ends after the root. The window must
	// widen instead of producing an out-of-range bar.
	tr := &trace.Trace{
		ID: "leak",
		RootSpan: &trace.Span{
			ID: "root", Name: "op", Type: trace.TypeCore, StartTime: 100, EndTime: 200,
			Children: []*trace.Span{
				{ID: "c", Name: "slow", Type: trace.TypeTool, StartTime: 150, EndTime: 400},
			},
		},
	}
	result := Waterfall(tr, 80)
	if !strings.Contains(result, "300ms") {
		t.Errorf("expected widened 300ms window, got:\n%s", result)
	}
}

func TestFormatDurationMs(t *testing.T) {
	cases := []struct {
		millis int64
		want   string
	}{
		{0, "0ms"},
		{-5, "0ms"},
		{999, "999ms"},
		{1500, "1.5s"},
		{90_000, "1.5m"},
	}
	for _, tc := range cases {
		if got := formatDurationMs(tc.millis); got != tc.want {
			t.Errorf("formatDurationMs(%d) = %q, want %q", tc.millis, got, tc.want)
		}
	}
}
