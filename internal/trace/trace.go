// Package trace defines the gateway trace wire model: a Trace is one
// top-level request recorded as a tree of nested Spans. The JSON shape
// matches what the gateway emits on its REST and WebSocket surfaces, so
// decoded payloads round-trip untouched.
package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Span types emitted by the gateway. The set is closed; anything else in
// incoming data is passed through but treated like a service span.
const (
	TypeCore     = "core"
	TypeTool     = "tool"
	TypeService  = "service"
	TypeResource = "resource"
)

// Span statuses. The gateway emits only these two today.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Trace triggers (provenance of the top-level request).
const (
	TriggerUser    = "user"
	TriggerWebhook = "webhook"
	TriggerSystem  = "system"
)

// Span is one recorded call within a trace. Children are the nested calls
// made while this span was active, in call order. All fields other than ID,
// Name, and Type are optional on the wire; absent fields decode to zero
// values and must be tolerated downstream.
type Span struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	ServiceName  string         `json:"serviceName,omitempty"`
	StartTime    int64          `json:"startTime"` // Unix millis
	EndTime      int64          `json:"endTime"`   // Unix millis
	Status       string         `json:"status"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	Input        map[string]any `json:"input,omitempty"`
	Output       map[string]any `json:"output,omitempty"`
	Children     []*Span        `json:"children,omitempty"`
}

// Trace is the full execution record for one top-level request.
type Trace struct {
	ID            string `json:"id"`
	RootSpan      *Span  `json:"rootSpan"`
	Timestamp     string `json:"timestamp"` // ISO 8601
	TotalDuration int64  `json:"totalDuration"`
	Status        string `json:"status"`
	Trigger       string `json:"trigger"`
}

// EffectiveName returns the most specific display name for the span:
// the crossed-service name when present, else the span's own name.
func (s *Span) EffectiveName() string {
	if s.ServiceName != "" {
		return s.ServiceName
	}
	return s.Name
}

// IsError reports whether the span terminated with error status.
func (s *Span) IsError() bool {
	return s.Status == StatusError
}

// Duration returns the span's wall-clock duration in milliseconds,
// clamped at zero for spans with bad end timestamps.
func (s *Span) Duration() int64 {
	if s.EndTime < s.StartTime {
		return 0
	}
	return s.EndTime - s.StartTime
}

// SpanCount returns the number of spans in the subtree rooted at s,
// including s itself.
func (s *Span) SpanCount() int {
	if s == nil {
		return 0
	}
	n := 1
	for _, c := range s.Children {
		n += c.SpanCount()
	}
	return n
}

// Depth returns the height of the subtree rooted at s (1 for a leaf).
func (s *Span) Depth() int {
	if s == nil {
		return 0
	}
	deepest := 0
	for _, c := range s.Children {
		if d := c.Depth(); d > deepest {
			deepest = d
		}
	}
	return deepest + 1
}

// SpanCount returns the total number of spans in the trace.
func (t *Trace) SpanCount() int {
	if t == nil || t.RootSpan == nil {
		return 0
	}
	return t.RootSpan.SpanCount()
}

// ParseTrace decodes a single trace from gateway JSON.
func ParseTrace(data []byte) (*Trace, error) {
	var t Trace
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse trace: %w", err)
	}
	return &t, nil
}

// ParseTraces decodes either a JSON array of traces or a single trace
// object. The gateway's list endpoint returns an array; file fixtures are
// often a single object.
func ParseTraces(data []byte) ([]*Trace, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var ts []*Trace
		if err := json.Unmarshal(trimmed, &ts); err != nil {
			return nil, fmt.Errorf("failed to parse trace list: %w", err)
		}
		return ts, nil
	}

	t, err := ParseTrace(trimmed)
	if err != nil {
		return nil, err
	}
	return []*Trace{t}, nil
}
