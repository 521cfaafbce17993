package seqdiag

// Reserved participant IDs. The client is the implicit caller of the root
// span and always occupies column 0. All core-type spans collapse onto the
// single core participant no matter how often the gateway re-enters itself.
const (
	ClientID = "client"
	CoreID   = "core"
)

// TypeClient is the pseudo span type assigned to the client participant.
// Real spans never carry it.
const TypeClient = "client"

// EventType distinguishes the two directions of a message pair.
type EventType string

const (
	EventCall   EventType = "call"
	EventReturn EventType = "return"
)

// Participant is one lifeline (column) in the sequence diagram.
type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Column int    `json:"column"`
}

// Event is one directed message between two participants. Every span in
// the trace produces exactly one call and one return event; Row is the
// event's vertical position, assigned by depth-first emission order so a
// call always sits above its own return regardless of timestamp noise.
type Event struct {
	ID       string         `json:"id"` // "call-<spanID>" or "return-<spanID>"
	Type     EventType      `json:"type"`
	SpanID   string         `json:"spanId"`
	SourceID string         `json:"sourceId"`
	TargetID string         `json:"targetId"`
	Label    string         `json:"label"`
	Status   string         `json:"status,omitempty"` // set on return events
	Payload  map[string]any `json:"payload,omitempty"`
	Row      int            `json:"row"`
	Loopback bool           `json:"loopback,omitempty"` // self-call, render as loop arrow
}

// Activation is the interval on a participant's lifeline during which it
// is handling one span: from the span's call row to its return row.
type Activation struct {
	SpanID        string `json:"spanId"`
	ParticipantID string `json:"participantId"`
	StartRow      int    `json:"startRow"`
	EndRow        int    `json:"endRow"`
	Status        string `json:"status"`
}

// Geometry holds the per-unit spacing constants used to derive canvas
// dimension hints. These are rendering hints only; the layout's structure
// does not depend on them.
type Geometry struct {
	ColumnWidth  int `json:"columnWidth"`
	RowHeight    int `json:"rowHeight"`
	HeaderHeight int `json:"headerHeight"`
	Margin       int `json:"margin"`
}

// DefaultGeometry returns the spacing the bundled web UI renders with.
func DefaultGeometry() Geometry {
	return Geometry{
		ColumnWidth:  180,
		RowHeight:    36,
		HeaderHeight: 60,
		Margin:       40,
	}
}

// Layout is the complete derived sequence diagram model for one trace.
// It is rebuilt from scratch on every computation and never mutated.
type Layout struct {
	Participants []Participant `json:"participants"`
	Events       []Event       `json:"events"`
	Activations  []Activation  `json:"activations"`
	Geometry     Geometry      `json:"geometry"`
	TotalWidth   int           `json:"totalWidth"`
	TotalHeight  int           `json:"totalHeight"`
}

// Participant returns the participant with the given ID, or nil.
func (l *Layout) Participant(id string) *Participant {
	for i := range l.Participants {
		if l.Participants[i].ID == id {
			return &l.Participants[i]
		}
	}
	return nil
}
