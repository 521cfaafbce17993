package webui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/mcpany/tracelens/internal/seqdiag"
	"github.com/mcpany/tracelens/internal/storage"
	"github.com/mcpany/tracelens/internal/trace"
)

func sampleTrace(id string, status string) *trace.Trace {
	return &trace.Trace{
		ID:            id,
		Timestamp:     "2025-06-01T12:00:00Z",
		TotalDuration: 42,
		Status:        status,
		Trigger:       trace.TriggerUser,
		RootSpan: &trace.Span{
			ID:     "root-" + id,
			Name:   "tools/call",
			Type:   trace.TypeCore,
			Status: status,
			Children: []*trace.Span{
				{ID: "child-" + id, Name: "get_weather", Type: trace.TypeTool, Status: status},
			},
		},
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *storage.TraceStorage) {
	t.Helper()
	store := storage.NewTraceStorage(100)
	mux := http.NewServeMux()
	New(store).RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, store
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHandleTraces(t *testing.T) {
	ts, store := newTestServer(t)
	for i := 0; i < 5; i++ {
		store.Add(sampleTrace(fmt.Sprintf("trace-%d", i), trace.StatusSuccess))
	}

	var summaries []traceSummary
	if code := getJSON(t, ts.URL+"/api/traces", &summaries); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(summaries) != 5 {
		t.Fatalf("expected 5 summaries, got %d", len(summaries))
	}
	// Newest first.
	if summaries[0].ID != "trace-4" {
		t.Errorf("expected trace-4 first, got %s", summaries[0].ID)
	}
	if summaries[0].SpanCount != 2 {
		t.Errorf("expected spanCount 2, got %d", summaries[0].SpanCount)
	}
	if summaries[0].RootName != "tools/call" {
		t.Errorf("expected rootName tools/call, got %s", summaries[0].RootName)
	}
}

func TestHandleTracesLimit(t *testing.T) {
	ts, store := newTestServer(t)
	for i := 0; i < 10; i++ {
		store.Add(sampleTrace(fmt.Sprintf("trace-%d", i), trace.StatusSuccess))
	}

	var summaries []traceSummary
	getJSON(t, ts.URL+"/api/traces?limit=3", &summaries)
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}
}

func TestHandleTrace(t *testing.T) {
	ts, store := newTestServer(t)
	store.Add(sampleTrace("trace-1", trace.StatusError))

	var tr trace.Trace
	if code := getJSON(t, ts.URL+"/api/traces/trace-1", &tr); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if tr.ID != "trace-1" || tr.RootSpan == nil || len(tr.RootSpan.Children) != 1 {
		t.Errorf("unexpected trace payload: %+v", tr)
	}

	if code := getJSON(t, ts.URL+"/api/traces/nope", nil); code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown trace, got %d", code)
	}
}

func TestHandleLayout(t *testing.T) {
	ts, store := newTestServer(t)
	store.Add(sampleTrace("trace-1", trace.StatusSuccess))

	var layout seqdiag.Layout
	if code := getJSON(t, ts.URL+"/api/traces/trace-1/layout", &layout); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	// 2 spans -> 4 events, participants client + core + tool.
	if len(layout.Events) != 4 {
		t.Errorf("expected 4 events, got %d", len(layout.Events))
	}
	if len(layout.Participants) != 3 {
		t.Errorf("expected 3 participants, got %d", len(layout.Participants))
	}
	if layout.Participants[0].ID != seqdiag.ClientID {
		t.Errorf("expected client first, got %s", layout.Participants[0].ID)
	}
	if layout.Geometry.ColumnWidth == 0 {
		t.Error("expected geometry to be populated")
	}

	if code := getJSON(t, ts.URL+"/api/traces/nope/layout", nil); code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown trace, got %d", code)
	}
}

func TestHandleStats(t *testing.T) {
	ts, store := newTestServer(t)
	store.Add(sampleTrace("trace-1", trace.StatusSuccess))

	var stats storage.StorageStats
	getJSON(t, ts.URL+"/api/stats", &stats)
	if stats.TraceCount != 1 || stats.Capacity != 100 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestHandleUI(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/ui/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected text/html, got %s", ct)
	}
}

func TestWebSocketStreamsNewTraces(t *testing.T) {
	ts, store := newTestServer(t)
	store.Add(sampleTrace("trace-old", trace.StatusSuccess))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.CloseNow()

	// Initial update includes the backfilled trace.
	var first wsUpdate
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read initial update: %v", err)
	}
	if err := json.Unmarshal(data, &first); err != nil {
		t.Fatal(err)
	}
	if first.Stats.TraceCount != 1 {
		t.Errorf("expected traceCount 1 in initial update, got %d", first.Stats.TraceCount)
	}
	if len(first.Traces) != 1 || first.Traces[0].ID != "trace-old" {
		t.Fatalf("expected backfill of trace-old, got %+v", first.Traces)
	}

	// A new trace should arrive as a delta.
	store.Add(sampleTrace("trace-new", trace.StatusError))

	deadline := time.Now().Add(3 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for trace-new")
		}
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read update: %v", err)
		}
		var update wsUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			t.Fatal(err)
		}
		for _, tr := range update.Traces {
			if tr.ID == "trace-new" {
				return
			}
		}
	}
}
