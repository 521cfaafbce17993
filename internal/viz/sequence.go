package viz

import (
	"strings"

	"github.com/mcpany/tracelens/internal/seqdiag"
)

const minColSpacing = 16

// Sequence renders a computed sequence-diagram layout as ASCII art: one
// header row of participant names, then one line per event with an arrow
// between the source and target lifelines. Width controls the total line
// width; 0 uses a sensible default (100).
func Sequence(layout *seqdiag.Layout, width int) string {
	if layout == nil || len(layout.Participants) == 0 {
		return ""
	}
	if width <= 0 {
		width = 100
	}

	spacing := width / len(layout.Participants)
	if spacing < minColSpacing {
		spacing = minColSpacing
	}
	lineWidth := spacing * len(layout.Participants)

	centers := make(map[string]int, len(layout.Participants))
	for _, p := range layout.Participants {
		centers[p.ID] = p.Column*spacing + spacing/2
	}

	var b strings.Builder

	// Header: participant names centered over their lifelines.
	header := blankLine(lineWidth, nil)
	for _, p := range layout.Participants {
		name := p.Name
		if len(name) > spacing-2 {
			name = name[:spacing-3] + "…"
		}
		overlay(header, centers[p.ID]-len(name)/2, name)
	}
	b.WriteString(strings.TrimRight(string(header), " "))
	b.WriteByte('\n')

	// One row per event, lifelines drawn through.
	for _, e := range layout.Events {
		line := blankLine(lineWidth, centers)
		if e.Loopback {
			drawLoopback(line, centers[e.SourceID], e)
		} else {
			drawArrow(line, centers[e.SourceID], centers[e.TargetID], e)
		}
		b.WriteString(strings.TrimRight(string(line), " "))
		b.WriteByte('\n')
	}

	return b.String()
}

// blankLine returns a rune row with a lifeline at every participant center.
func blankLine(width int, centers map[string]int) []rune {
	line := make([]rune, width)
	for i := range line {
		line[i] = ' '
	}
	for _, c := range centers {
		if c >= 0 && c < width {
			line[c] = '│'
		}
	}
	return line
}

func drawArrow(line []rune, src, dst int, e seqdiag.Event) {
	from, to := src, dst
	if from > to {
		from, to = to, from
	}
	if to-from < 2 {
		return
	}

	dash := '─'
	if e.Type == seqdiag.EventReturn {
		dash = '┄'
	}
	for i := from + 1; i < to; i++ {
		line[i] = dash
	}

	// Arrowhead points at the target lifeline.
	if dst > src {
		line[to-1] = '>'
	} else {
		line[from+1] = '<'
	}

	label := e.Label
	budget := to - from - 3
	if budget < 1 {
		return
	}
	if len(label) > budget {
		label = label[:budget]
	}
	overlay(line, (from+to)/2-len(label)/2, label)
}

func drawLoopback(line []rune, center int, e seqdiag.Event) {
	marker := "⟲ " + e.Label
	if e.Type == seqdiag.EventReturn {
		marker = "⟲ (" + e.Label + ")"
	}
	overlay(line, center+2, marker)
}

// overlay writes text into the line at pos, clipping at both edges.
func overlay(line []rune, pos int, text string) {
	for i, r := range []rune(text) {
		p := pos + i
		if p < 0 || p >= len(line) {
			continue
		}
		line[p] = r
	}
}
