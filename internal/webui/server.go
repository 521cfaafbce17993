// Package webui serves the trace console: REST endpoints for the trace
// list and computed sequence layouts, a WebSocket for live updates, and
// the embedded single-page viewer.
package webui

import (
	"context"
	"embed"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/mcpany/tracelens/internal/seqdiag"
	"github.com/mcpany/tracelens/internal/storage"
	"github.com/mcpany/tracelens/internal/trace"
)

//go:embed static/index.html
var staticFiles embed.FS

// defaultListLimit caps /api/traces responses when no limit is given.
const defaultListLimit = 100

// Server serves the embedded web UI and WebSocket updates.
type Server struct {
	storage *storage.TraceStorage
}

// New creates a new web UI server backed by the given storage.
func New(s *storage.TraceStorage) *Server {
	return &Server{storage: s}
}

// RegisterRoutes attaches web UI routes to an existing ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ui/", s.handleUI)
	mux.HandleFunc("GET /ui", s.handleUIRedirect)
	mux.HandleFunc("GET /api/traces", s.handleTraces)
	mux.HandleFunc("GET /api/traces/{id}", s.handleTrace)
	mux.HandleFunc("GET /api/traces/{id}/layout", s.handleLayout)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// ListenAndServe starts a standalone HTTP server for the web UI.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleUIRedirect redirects /ui to /ui/ for consistent routing.
func (s *Server) handleUIRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/ui/", http.StatusMovedPermanently)
}

// handleUI serves the embedded index.html.
func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	data, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "UI not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// traceSummary is the JSON shape for trace list entries.
type traceSummary struct {
	ID            string `json:"id"`
	Timestamp     string `json:"timestamp"`
	RootName      string `json:"rootName"`
	TotalDuration int64  `json:"totalDuration"`
	Status        string `json:"status"`
	Trigger       string `json:"trigger"`
	SpanCount     int    `json:"spanCount"`
}

func summarize(tr *trace.Trace) traceSummary {
	sum := traceSummary{
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

// handleTraces returns recent trace summaries, newest first.
func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	recent := s.storage.GetRecent(limit)
	summaries := make([]traceSummary, 0, len(recent))
	for _, tr := range recent {
		summaries = append(summaries, summarize(tr))
	}
	writeJSON(w, summaries)
}

// handleTrace returns the full payload of one trace.
func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	tr := s.storage.GetByID(r.PathValue("id"))
	if tr == nil {
		http.Error(w, "trace not found", http.StatusNotFound)
		return
	}
	writeJSON(w, tr)
}

// handleLayout computes and returns the sequence-diagram layout for one
// trace. Traces are immutable once stored, so clients may cache the
// result by trace ID.
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	tr := s.storage.GetByID(r.PathValue("id"))
	if tr == nil {
		http.Error(w, "trace not found", http.StatusNotFound)
		return
	}

	layout, err := seqdiag.Compute(tr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, layout)
}

// handleStats returns buffer statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.storage.Stats())
}

// wsFilter is the client-sent filter message on the WebSocket.
type wsFilter struct {
	ErrorsOnly bool `json:"errorsOnly"`
	Paused     bool `json:"paused"`
}

// wsUpdate is the server-sent update message on the WebSocket.
type wsUpdate struct {
	Stats  storage.StorageStats `json:"stats"`
	Traces []traceSummary       `json:"traces,omitempty"`
}

// handleWebSocket upgrades to WebSocket and streams new traces as they
// arrive, including a short backfill on connect.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for localhost dev
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	notifyCh, unsubscribe := s.storage.Subscribe()
	defer unsubscribe()

	// Back up to include recent history on connect.
	const backfill = 50
	lastPos := max(0, s.storage.CurrentPosition()-backfill)

	var filter wsFilter

	// Read filter messages from the client in a goroutine.
	filterCh := make(chan wsFilter, 4)
	go func() {
		defer close(filterCh)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var f wsFilter
			if json.Unmarshal(data, &f) == nil {
				select {
				case filterCh <- f:
				default:
				}
			}
		}
	}()

	// Send initial state immediately.
	s.sendWSUpdate(ctx, conn, &lastPos, filter)

	// Keepalive so the client can tell a quiet server from a dead one.
	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return

		case f, ok := <-filterCh:
			if !ok {
				return
			}
			filter = f

		case <-notifyCh:
			if filter.Paused {
				continue
			}
			s.sendWSUpdate(ctx, conn, &lastPos, filter)

		case <-keepalive.C:
			if filter.Paused {
				continue
			}
			s.sendWSUpdate(ctx, conn, &lastPos, filter)
		}
	}
}

// sendWSUpdate reads the delta since lastPos and sends a JSON update.
func (s *Server) sendWSUpdate(ctx context.Context, conn *websocket.Conn, lastPos *int, filter wsFilter) {
	update := wsUpdate{Stats: s.storage.Stats()}

	curPos := s.storage.CurrentPosition()
	if curPos > *lastPos {
		for _, tr := range s.storage.GetRange(*lastPos, curPos-1) {
			if filter.ErrorsOnly && tr.Status != trace.StatusError {
				continue
			}
			update.Traces = append(update.Traces, summarize(tr))
		}
		*lastPos = curPos
	}

	data, err := json.Marshal(update)
	if err != nil {
		log.Printf("webui: failed to marshal update: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		// Connection closed; the main loop will handle cleanup.
		return
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("webui: failed to write JSON: %v", err)
	}
}
