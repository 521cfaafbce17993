// Package seqdiag derives sequence-diagram layouts from gateway traces.
//
// Compute is a pure function: given a trace's span tree it produces the
// participant lanes, the chronologically ordered call/return events, and
// the activation bars a renderer needs, with no shared state between
// invocations. Rows come from depth-first emission order, not wall-clock
// timestamps, so nesting is always rendered correctly even when upstream
// clocks are noisy.
package seqdiag

import (
	"errors"

	"github.com/mcpany/tracelens/internal/trace"
)

// ErrInvalidTrace is returned when the trace or its root span is missing.
// This is the engine's only hard failure; every other input imperfection
// degrades to a default instead.
var ErrInvalidTrace = errors.New("trace has no root span")

// maxDepth bounds the traversal. Traces come from instrumented upstream
// services that may be buggy or hostile; subtrees below this depth are
// dropped rather than overflowing the stack.
const maxDepth = 512

// returnLabel is the label on successful return events.
const returnLabel = "Result"

// Compute derives the sequence-diagram layout for a trace using the
// default geometry. See ComputeWithGeometry.
func Compute(tr *trace.Trace) (*Layout, error) {
	return ComputeWithGeometry(tr, DefaultGeometry())
}

// ComputeWithGeometry derives the sequence-diagram layout for a trace.
// It returns ErrInvalidTrace if tr or tr.RootSpan is nil. For any trace
// with N reachable spans the result contains exactly 2N events (one call
// and one return per span) and N activations.
func ComputeWithGeometry(tr *trace.Trace, geo Geometry) (*Layout, error) {
	if tr == nil || tr.RootSpan == nil {
		return nil, ErrInvalidTrace
	}

	w := &walker{registry: newRegistry()}
	w.visit(tr.RootSpan, ClientID, 0)

	layout := &Layout{
		Participants: w.registry.participants,
		Events:       w.events,
		Activations:  w.activations,
		Geometry:     geo,
	}
	layout.TotalWidth = geo.Margin*2 + geo.ColumnWidth*len(layout.Participants)
	layout.TotalHeight = geo.HeaderHeight + geo.RowHeight*len(layout.Events) + geo.Margin
	return layout, nil
}

// registry interns participants in first-discovery order. It lives for a
// single computation; there is no cross-call state.
type registry struct {
	index        map[string]int // participant ID -> column
	participants []Participant
}

func newRegistry() *registry {
	r := &registry{index: make(map[string]int)}
	r.intern(ClientID, "Client", TypeClient)
	return r
}

// resolve maps a span to its participant ID, registering the participant
// on first encounter. Core spans collapse to the core singleton; all other
// spans key on (type, effective name), so repeated calls to the same tool
// or service share one lane.
func (r *registry) resolve(s *trace.Span) string {
	if s.Type == trace.TypeCore {
		return r.intern(CoreID, "Core", trace.TypeCore)
	}
	name := s.EffectiveName()
	return r.intern(s.Type+":"+name, name, s.Type)
}

func (r *registry) intern(id, name, typ string) string {
	if _, seen := r.index[id]; !seen {
		r.index[id] = len(r.participants)
		r.participants = append(r.participants, Participant{
			ID:     id,
			Name:   name,
			Type:   typ,
			Column: len(r.participants),
		})
	}
	return id
}

// walker performs the pre-order traversal, appending events in emission
// order. The slice index of an event is its row.
type walker struct {
	registry    *registry
	events      []Event
	activations []Activation
}

func (w *walker) visit(s *trace.Span, callerID string, depth int) {
	if s == nil || depth >= maxDepth {
		return
	}

	pid := w.registry.resolve(s)
	loopback := pid == callerID

	callRow := len(w.events)
	w.events = append(w.events, Event{
		ID:       "call-" + s.ID,
		Type:     EventCall,
		SpanID:   s.ID,
		SourceID: callerID,
		TargetID: pid,
		Label:    s.Name,
		Payload:  s.Input,
		Row:      callRow,
		Loopback: loopback,
	})

	// Children in caller-supplied order; the input order is authoritative
	// and is never re-sorted by timestamp.
	for _, child := range s.Children {
		w.visit(child, pid, depth+1)
	}

	returnRow := len(w.events)
	w.events = append(w.events, Event{
		ID:       "return-" + s.ID,
		Type:     EventReturn,
		SpanID:   s.ID,
		SourceID: pid,
		TargetID: callerID,
		Label:    returnEventLabel(s),
		Status:   s.Status,
		Payload:  s.Output,
		Row:      returnRow,
		Loopback: loopback,
	})

	w.activations = append(w.activations, Activation{
		SpanID:        s.ID,
		ParticipantID: pid,
		StartRow:      callRow,
		EndRow:        returnRow,
		Status:        s.Status,
	})
}

func returnEventLabel(s *trace.Span) string {
	if !s.IsError() {
		return returnLabel
	}
	if s.ErrorMessage != "" {
		return "Error: " + s.ErrorMessage
	}
	return "Error"
}
