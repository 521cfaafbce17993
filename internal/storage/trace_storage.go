// Package storage holds the bounded in-memory trace store shared by the
// OTLP receiver, file sources, MCP server, and web UI.
package storage

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcpany/tracelens/internal/trace"
)

// TraceStorage stores and indexes gateway traces. Writers (OTLP receiver,
// file sources) add whole traces; readers get snapshots or subscribe for
// change notification. All methods are safe for concurrent use.
type TraceStorage struct {
	traces *RingBuffer[*trace.Trace]

	mu      sync.RWMutex
	byID    map[string]*trace.Trace
	idOrder []string // trace IDs in arrival order, for index eviction

	// Monotonic counters for the stats surfaces.
	tracesReceived atomic.Uint64
	errorsReceived atomic.Uint64

	// Subscriber notification for real-time streaming (e.g. WebSocket).
	subMu     sync.Mutex
	subs      map[uint64]chan struct{}
	nextSubID uint64

	startTime time.Time
}

// StorageStats describes current buffer usage.
type StorageStats struct {
	TraceCount     int     `json:"traceCount"`
	Capacity       int     `json:"capacity"`
	TracesReceived uint64  `json:"tracesReceived"`
	ErrorsReceived uint64  `json:"errorsReceived"`
	UptimeSeconds  float64 `json:"uptimeSeconds"`
}

// NewTraceStorage creates trace storage retaining up to capacity traces.
func NewTraceStorage(capacity int) *TraceStorage {
	return &TraceStorage{
		traces:    NewRingBuffer[*trace.Trace](capacity),
		byID:      make(map[string]*trace.Trace),
		subs:      make(map[uint64]chan struct{}),
		startTime: time.Now(),
	}
}

// Add stores a trace, updates the ID index, and notifies subscribers.
// Traces without a root span are counted but not indexed or retained;
// they carry nothing renderable.
func (ts *TraceStorage) Add(tr *trace.Trace) {
	if tr == nil {
		return
	}
	ts.tracesReceived.Add(1)
	if tr.Status == trace.StatusError {
		ts.errorsReceived.Add(1)
	}
	if tr.RootSpan == nil {
		return
	}

	ts.traces.Add(tr)

	ts.mu.Lock()
	if _, exists := ts.byID[tr.ID]; !exists {
		ts.idOrder = append(ts.idOrder, tr.ID)
	}
	ts.byID[tr.ID] = tr
	// Keep the index aligned with ring eviction.
	for len(ts.idOrder) > ts.traces.Capacity() {
		evicted := ts.idOrder[0]
		ts.idOrder = ts.idOrder[1:]
		delete(ts.byID, evicted)
	}
	ts.mu.Unlock()

	ts.notify()
}

// GetByID returns the trace with the given ID, or nil.
func (ts *TraceStorage) GetByID(id string) *trace.Trace {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.byID[id]
}

// GetRecent returns the N most recent traces, newest first, the order
// the console's trace list displays them in.
func (ts *TraceStorage) GetRecent(n int) []*trace.Trace {
	recent := ts.traces.GetRecent(n)
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent
}

// GetAll returns all retained traces oldest-to-newest.
func (ts *TraceStorage) GetAll() []*trace.Trace {
	return ts.traces.GetAll()
}

// GetRange returns traces between absolute buffer positions, for delta
// reads by streaming consumers.
func (ts *TraceStorage) GetRange(start, end int) []*trace.Trace {
	return ts.traces.GetRange(start, end)
}

// CurrentPosition returns the absolute write position of the trace buffer.
func (ts *TraceStorage) CurrentPosition() int {
	return ts.traces.CurrentPosition()
}

// Subscribe registers for change notification. The returned channel gets a
// (possibly coalesced) signal after each Add. Callers must invoke the
// returned unsubscribe function when done.
func (ts *TraceStorage) Subscribe() (<-chan struct{}, func()) {
	ts.subMu.Lock()
	defer ts.subMu.Unlock()

	id := ts.nextSubID
	ts.nextSubID++
	ch := make(chan struct{}, 1)
	ts.subs[id] = ch

	return ch, func() {
		ts.subMu.Lock()
		defer ts.subMu.Unlock()
		delete(ts.subs, id)
	}
}

// notify signals all subscribers without blocking; a subscriber with a
// pending signal coalesces.
func (ts *TraceStorage) notify() {
	ts.subMu.Lock()
	defer ts.subMu.Unlock()
	for _, ch := range ts.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Stats returns current storage statistics.
func (ts *TraceStorage) Stats() StorageStats {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return StorageStats{
		TraceCount:     ts.traces.Size(),
		Capacity:       ts.traces.Capacity(),
		TracesReceived: ts.tracesReceived.Load(),
		ErrorsReceived: ts.errorsReceived.Load(),
		UptimeSeconds:  time.Since(ts.startTime).Seconds(),
	}
}

// Clear removes all traces and index entries. Counters keep their values;
// they are monotonic by contract.
func (ts *TraceStorage) Clear() {
	ts.mu.Lock()
	ts.traces.Clear()
	ts.byID = make(map[string]*trace.Trace)
	ts.idOrder = nil
	ts.mu.Unlock()
	ts.notify()
}
