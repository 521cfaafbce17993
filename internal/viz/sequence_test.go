package viz

import (
	"strings"
	"testing"

	"github.com/mcpany/tracelens/internal/seqdiag"
	"github.com/mcpany/tracelens/internal/trace"
)

func computeLayout(t *testing.T, root *trace.Span) *seqdiag.Layout {
	t.Helper()
	layout, err := seqdiag.Compute(&trace.Trace{ID: "t1", RootSpan: root})
	if err != nil {
		t.Fatalf("compute layout: %v", err)
	}
	return layout
}

func TestSequence_Empty(t *testing.T) {
	if got := Sequence(nil, 80); got != "" {
		t.Errorf("expected empty string for nil layout, got %q", got)
	}
}

func TestSequence_SingleSpan(t *testing.T) {
	layout := computeLayout(t, &trace.Span{
		ID: "s1", Name: "get_weather", Type: trace.TypeTool, Status: trace.StatusSuccess,
	})
	result := Sequence(layout, 80)

	lines := strings.Split(strings.TrimRight(result, "\n"), "\n")
	if len(lines) != 3 { // header + call + return
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), result)
	}
	if !strings.Contains(lines[0], "Client") || !strings.Contains(lines[0], "get_weather") {
		t.Errorf("header missing participant names:\n%s", result)
	}
	if !strings.Contains(lines[1], "get_weather") || !strings.Contains(lines[1], ">") {
		t.Errorf("call row missing label or arrowhead:\n%s", result)
	}
	if !strings.Contains(lines[2], "Result") || !strings.Contains(lines[2], "<") {
		t.Errorf("return row missing label or arrowhead:\n%s", result)
	}
}

func TestSequence_RowPerEvent(t *testing.T) {
	layout := computeLayout(t, &trace.Span{
		ID: "r", Name: "op", Type: trace.TypeCore,
		Children: []*trace.Span{
			{ID: "a", Name: "first", Type: trace.TypeTool},
			{ID: "b", Name: "second", Type: trace.TypeTool},
		},
	})
	result := Sequence(layout, 120)

	lines := strings.Split(strings.TrimRight(result, "\n"), "\n")
	if len(lines) != 1+len(layout.Events) {
		t.Errorf("expected %d lines, got %d:\n%s", 1+len(layout.Events), len(lines), result)
	}

	// Emission order is visual order: "first" appears above "second".
	if strings.Index(result, "first") > strings.Index(result, "second") {
		t.Errorf("sibling order not preserved:\n%s", result)
	}
}

func TestSequence_Loopback(t *testing.T) {
	layout := computeLayout(t, &trace.Span{
		ID: "r", Name: "op", Type: trace.TypeCore,
		Children: []*trace.Span{{ID: "inner", Name: "plan", Type: trace.TypeCore}},
	})
	result := Sequence(layout, 80)
	if !strings.Contains(result, "⟲ plan") {
		t.Errorf("expected loopback marker for core self-call:\n%s", result)
	}
}

func TestSequence_ErrorLabel(t *testing.T) {
	layout := computeLayout(t, &trace.Span{
		ID: "r", Name: "fetch", Type: trace.TypeTool,
		Status: trace.StatusError, ErrorMessage: "timeout",
	})
	result := Sequence(layout, 100)
	if !strings.Contains(result, "Error: timeout") {
		t.Errorf("expected error label in return row:\n%s", result)
	}
}

func TestSequence_NarrowWidthStillRenders(t *testing.T) {
	layout := computeLayout(t, &trace.Span{
		ID: "r", Name: "a-rather-long-operation-name", Type: trace.TypeCore,
		Children: []*trace.Span{
			{ID: "a", Name: "tool-one", Type: trace.TypeTool},
			{ID: "b", Name: "svc", Type: trace.TypeService, ServiceName: "remote-service"},
		},
	})
	// Width far below what four participants need: spacing clamps to the
	// minimum instead of colliding.
	result := Sequence(layout, 10)
	if result == "" {
		t.Fatal("expected output at narrow width")
	}
	for _, line := range strings.Split(strings.TrimRight(result, "\n"), "\n") {
		if len([]rune(line)) > minColSpacing*len(layout.Participants) {
			t.Errorf("line exceeds clamped width: %q", line)
		}
	}
}
