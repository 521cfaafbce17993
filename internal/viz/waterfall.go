// Package viz renders gateway traces as plain text for terminals and MCP
// tool output. It consumes the trace model and seqdiag layouts directly
// and takes no other dependencies.
package viz

import (
	"fmt"
	"strings"

	"github.com/mcpany/tracelens/internal/trace"
)

const (
	maxSpansPerTrace = 100
	defaultBarWidth  = 20
)

// Waterfall renders an ASCII duration waterfall for one trace.
// Width controls the total line width; 0 uses a sensible default (80).
func Waterfall(tr *trace.Trace, width int) string {
	if tr == nil || tr.RootSpan == nil {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	// Flatten the tree. Children are kept in input order, matching the
	// sequence layout's traversal policy.
	var entries []waterfallEntry
	flatten(&entries, tr.RootSpan, 0, nil)

	overflow := 0
	if len(entries) > maxSpansPerTrace {
		overflow = len(entries) - maxSpansPerTrace
		entries = entries[:maxSpansPerTrace]
	}

	// Time window for the bars: the root span's own interval, widened if a
	// child leaks outside it (broken instrumentation happens).
	minStart := tr.RootSpan.StartTime
	maxEnd := max(tr.RootSpan.EndTime, minStart)
	for _, e := range entries {
		if e.span.StartTime < minStart {
			minStart = e.span.StartTime
		}
		if end := max(e.span.EndTime, e.span.StartTime); end > maxEnd {
			maxEnd = end
		}
	}
	totalDur := maxEnd - minStart

	var b strings.Builder
	shortID := tr.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	fmt.Fprintf(&b, "Trace %s (%d spans, %s)\n", shortID, tr.SpanCount(), formatDurationMs(totalDur))

	// Pass 1: duration + error suffix widths for right alignment.
	maxDurErrLen := 0
	for _, e := range entries {
		n := len(formatDurationMs(e.span.Duration()))
		if e.span.IsError() {
			n += 7 // " !! ERR"
		}
		if n > maxDurErrLen {
			maxDurErrLen = n
		}
	}

	// Pass 2: render.
	for _, e := range entries {
		renderSpanRow(&b, e, minStart, totalDur, width, maxDurErrLen)
	}

	if overflow > 0 {
		fmt.Fprintf(&b, "  ... +%d more spans\n", overflow)
	}

	return b.String()
}

type waterfallEntry struct {
	span   *trace.Span
	depth  int
	isLast []bool // at each depth level, whether the node is the last child
}

func flatten(out *[]waterfallEntry, s *trace.Span, depth int, isLast []bool) {
	if s == nil {
		return
	}
	*out = append(*out, waterfallEntry{span: s, depth: depth, isLast: isLast})
	for i, child := range s.Children {
		childIsLast := append(append([]bool{}, isLast...), i == len(s.Children)-1)
		flatten(out, child, depth+1, childIsLast)
	}
}

func renderSpanRow(b *strings.Builder, e waterfallEntry, minStart, totalDur int64, width, maxDurErrLen int) {
	barWidth := defaultBarWidth

	// Tree prefix; the drawing runes are multi-byte but one column each,
	// so display width is tracked separately.
	var prefix strings.Builder
	prefixCols := 1
	prefix.WriteString(" ")
	for d := 0; d < e.depth; d++ {
		if d < len(e.isLast)-1 {
			if e.isLast[d] {
				prefix.WriteString("  ")
			} else {
				prefix.WriteString("│ ")
			}
			prefixCols += 2
		}
	}
	if e.depth > 0 {
		if len(e.isLast) > 0 && e.isLast[len(e.isLast)-1] {
			prefix.WriteString("└─ ")
		} else {
			prefix.WriteString("├─ ")
		}
		prefixCols += 3
	}

	label := e.span.Type + "." + e.span.EffectiveName()

	errSuffix := ""
	if e.span.IsError() {
		errSuffix = " !! ERR"
	}

	spanStart := e.span.StartTime
	spanEnd := max(e.span.EndTime, spanStart)
	durStr := formatDurationMs(spanEnd - spanStart)

	// Layout: prefix + label + " [" + bar + "] " + durErr
	fixedCols := prefixCols + 2 + barWidth + 2 + maxDurErrLen
	labelBudget := max(width-fixedCols, 8)
	if len(label) > labelBudget {
		label = label[:labelBudget-1] + "…"
	}
	paddedLabel := label + strings.Repeat(" ", max(0, labelBudget-len(label)))

	bar := buildBar(spanStart, spanEnd, minStart, totalDur, barWidth)

	durErrStr := durStr + errSuffix
	paddedDurErr := durErrStr + strings.Repeat(" ", max(0, maxDurErrLen-len(durErrStr)))

	fmt.Fprintf(b, "%s%s [%s] %s\n", prefix.String(), paddedLabel, bar, paddedDurErr)
}

func buildBar(start, end, minStart, totalDur int64, barWidth int) string {
	if totalDur == 0 {
		return strings.Repeat("#", barWidth)
	}

	startPos := int((start - minStart) * int64(barWidth) / totalDur)
	endPos := int((end - minStart) * int64(barWidth) / totalDur)

	if startPos >= barWidth {
		startPos = barWidth - 1
	}
	if startPos < 0 {
		startPos = 0
	}
	endPos = max(endPos, startPos+1)
	endPos = min(endPos, barWidth)

	bar := make([]byte, barWidth)
	for i := range bar {
		if i >= startPos && i < endPos {
			bar[i] = '#'
		} else {
			bar[i] = '.'
		}
	}
	return string(bar)
}

func formatDurationMs(millis int64) string {
	if millis <= 0 {
		return "0ms"
	}
	if millis < 1000 {
		return fmt.Sprintf("%dms", millis)
	}
	s := float64(millis) / 1000
	if s < 60 {
		return fmt.Sprintf("%.1fs", s)
	}
	return fmt.Sprintf("%.1fm", s/60)
}
