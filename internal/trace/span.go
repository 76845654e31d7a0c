package trace

import (
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// B3 propagation headers
const (
	HeaderTraceID      = "x-b3-traceid"
	HeaderSpanID       = "x-b3-spanid"
	HeaderParentSpanID = "x-b3-parentspanid"
	BaggagePrefix      = "baggage-"

	// BaggageOp is the baggage key carrying the trace operation tag
	BaggageOp = "op"
)

// Span describes one unit of traced work. A Span is never modified after
// creation; callers that need a variation derive a new one.
//
// Spans are compared by pointer: two spans with equal fields created at
// different call sites are different spans.
type Span struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Baggage      map[string]string
	TraceOp      string
}

// NewTrace originates a root span for the given operation
func NewTrace(op string) *Span {
	return &Span{
		TraceID: newTraceID(),
		SpanID:  newSpanID(),
		Baggage: map[string]string{BaggageOp: op},
		TraceOp: op,
	}
}

// NewSpan derives a child of parent: fresh span id, same trace id and baggage,
// parent span id pointing at parent.
func NewSpan(parent *Span) *Span {
	if parent == nil {
		return NewTrace("")
	}
	return &Span{
		TraceID:      parent.TraceID,
		SpanID:       newSpanID(),
		ParentSpanID: parent.SpanID,
		Baggage:      copyBaggage(parent.Baggage),
		TraceOp:      parent.TraceOp,
	}
}

// Get returns a baggage value
func (s *Span) Get(key string) string {
	if s == nil {
		return ""
	}
	return s.Baggage[key]
}

// Inject writes the span into request headers. The operation tag is always
// sent as baggage-op; baggage entries are sent one header each.
func (s *Span) Inject(h http.Header) {
	h.Set(HeaderTraceID, s.TraceID)
	h.Set(HeaderParentSpanID, s.ParentSpanID)
	h.Set(HeaderSpanID, s.SpanID)
	for k, v := range s.Baggage {
		h.Set(BaggagePrefix+k, v)
	}
	h.Set(BaggagePrefix+BaggageOp, s.TraceOp)
}

// FromHeaders reconstitutes a span sent by a remote caller.
// Returns nil when no trace id header is present.
func FromHeaders(h http.Header) *Span {
	traceID := h.Get(HeaderTraceID)
	if traceID == "" {
		return nil
	}

	baggage := make(map[string]string)
	for name, values := range h {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, BaggagePrefix) || len(values) == 0 {
			continue
		}
		baggage[lower[len(BaggagePrefix):]] = values[0]
	}

	return &Span{
		TraceID:      traceID,
		SpanID:       h.Get(HeaderSpanID),
		ParentSpanID: h.Get(HeaderParentSpanID),
		Baggage:      baggage,
		TraceOp:      baggage[BaggageOp],
	}
}

func copyBaggage(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// newTraceID returns 128 random bits as 32 hex chars
func newTraceID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// newSpanID returns 64 random bits as 16 hex chars
func newSpanID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}
