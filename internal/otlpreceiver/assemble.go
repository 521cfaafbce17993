package otlpreceiver

import (
	"encoding/hex"
	"sort"
	"time"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/mcpany/tracelens/internal/trace"
)

// Attribute keys the gateway's instrumentation sets on its spans. Spans
// without any of them are classified by span kind.
const (
	attrToolName    = "mcp.tool.name"
	attrResourceURI = "mcp.resource.uri"
	attrTrigger     = "mcp.trigger"
	attrRPCService  = "rpc.service"
	attrPeerService = "peer.service"
)

// flatSpan pairs an OTLP span with its resource-level service name.
type flatSpan struct {
	span        *tracepb.Span
	serviceName string
}

// Assemble groups a batch of OTLP resource spans by trace ID, rebuilds the
// parent/child tree for each, and converts the result into gateway traces.
// Orphaned spans (parent not present in the batch) become their own trace
// rather than being dropped. Children are ordered by start time here, at
// the producer side, so the layout engine downstream can trust input order.
func Assemble(resourceSpans []*tracepb.ResourceSpans) []*trace.Trace {
	byTrace := make(map[string][]flatSpan)
	var traceOrder []string

	for _, rs := range resourceSpans {
		serviceName := extractServiceName(rs)
		for _, ss := range rs.ScopeSpans {
			for _, span := range ss.Spans {
				tid := hex.EncodeToString(span.TraceId)
				if _, seen := byTrace[tid]; !seen {
					traceOrder = append(traceOrder, tid)
				}
				byTrace[tid] = append(byTrace[tid], flatSpan{span: span, serviceName: serviceName})
			}
		}
	}

	var traces []*trace.Trace
	for _, tid := range traceOrder {
		traces = append(traces, assembleTrace(tid, byTrace[tid])...)
	}
	return traces
}

// assembleTrace builds one gateway trace per root found under a trace ID.
// A batch normally carries exactly one root; disjoint fragments each get
// their own trace so nothing silently disappears.
func assembleTrace(traceID string, spans []flatSpan) []*trace.Trace {
	byID := make(map[string]flatSpan, len(spans))
	children := make(map[string][]string)
	var rootIDs []string

	for _, fs := range spans {
		byID[hex.EncodeToString(fs.span.SpanId)] = fs
	}
	for _, fs := range spans {
		sid := hex.EncodeToString(fs.span.SpanId)
		pid := hex.EncodeToString(fs.span.ParentSpanId)
		if pid == "0000000000000000" {
			pid = ""
		}
		if _, parentPresent := byID[pid]; pid != "" && parentPresent {
			children[pid] = append(children[pid], sid)
		} else {
			rootIDs = append(rootIDs, sid)
		}
	}

	sort.Slice(rootIDs, func(i, j int) bool {
		return byID[rootIDs[i]].span.StartTimeUnixNano < byID[rootIDs[j]].span.StartTimeUnixNano
	})

	var traces []*trace.Trace
	for _, rootID := range rootIDs {
		root := buildSpan(rootID, byID, children)

		id := traceID
		if len(rootIDs) > 1 {
			id = traceID + "-" + rootID
		}

		rootFlat := byID[rootID]
		traces = append(traces, &trace.Trace{
			ID:            id,
			RootSpan:      root,
			Timestamp:     time.Unix(0, int64(rootFlat.span.StartTimeUnixNano)).UTC().Format(time.RFC3339),
			TotalDuration: root.Duration(),
			Status:        root.Status,
			Trigger:       triggerFor(rootFlat.span),
		})
	}
	return traces
}

func buildSpan(spanID string, byID map[string]flatSpan, children map[string][]string) *trace.Span {
	fs := byID[spanID]
	s := convertSpan(spanID, fs)

	kids := children[spanID]
	sort.Slice(kids, func(i, j int) bool {
		return byID[kids[i]].span.StartTimeUnixNano < byID[kids[j]].span.StartTimeUnixNano
	})
	for _, kid := range kids {
		s.Children = append(s.Children, buildSpan(kid, byID, children))
	}
	return s
}

// convertSpan maps one OTLP span onto the gateway span model.
func convertSpan(spanID string, fs flatSpan) *trace.Span {
	span := fs.span
	attrs := attrMap(span.Attributes)

	s := &trace.Span{
		ID:        spanID,
		Name:      span.Name,
		StartTime: int64(span.StartTimeUnixNano / 1e6),
		EndTime:   int64(span.EndTimeUnixNano / 1e6),
		Status:    trace.StatusSuccess,
	}

	if span.Status != nil && span.Status.Code == tracepb.Status_STATUS_CODE_ERROR {
		s.Status = trace.StatusError
		s.ErrorMessage = span.Status.Message
	}

	switch {
	case attrs[attrToolName] != "":
		s.Type = trace.TypeTool
		s.Name = attrs[attrToolName]
	case attrs[attrResourceURI] != "":
		s.Type = trace.TypeResource
		s.Name = attrs[attrResourceURI]
	case attrs[attrRPCService] != "":
		s.Type = trace.TypeService
		s.ServiceName = attrs[attrRPCService]
	case attrs[attrPeerService] != "":
		s.Type = trace.TypeService
		s.ServiceName = attrs[attrPeerService]
	case span.Kind == tracepb.Span_SPAN_KIND_CLIENT:
		s.Type = trace.TypeService
		s.ServiceName = fs.serviceName
	default:
		s.Type = trace.TypeCore
	}

	// Span attributes ride along as the call payload; the engine treats
	// payloads as opaque.
	if len(attrs) > 0 {
		input := make(map[string]any, len(attrs))
		for k, v := range attrs {
			input[k] = v
		}
		s.Input = input
	}

	return s
}

func triggerFor(span *tracepb.Span) string {
	switch attrMap(span.Attributes)[attrTrigger] {
	case trace.TriggerUser:
		return trace.TriggerUser
	case trace.TriggerWebhook:
		return trace.TriggerWebhook
	default:
		return trace.TriggerSystem
	}
}

func attrMap(kvs []*commonpb.KeyValue) map[string]string {
	if len(kvs) == 0 {
		return nil
	}
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		if kv == nil || kv.Value == nil {
			continue
		}
		if sv := kv.Value.GetStringValue(); sv != "" {
			m[kv.Key] = sv
		}
	}
	return m
}

// extractServiceName pulls service.name from the OTLP resource.
func extractServiceName(rs *tracepb.ResourceSpans) string {
	if rs == nil || rs.Resource == nil {
		return ""
	}
	for _, kv := range rs.Resource.Attributes {
		if kv.Key == "service.name" && kv.Value != nil {
			return kv.Value.GetStringValue()
		}
	}
	return ""
}
