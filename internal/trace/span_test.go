package trace

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrace(t *testing.T) {
	s := NewTrace("test")

	assert.Len(t, s.TraceID, 32)
	assert.Len(t, s.SpanID, 16)
	assert.Empty(t, s.ParentSpanID)
	assert.Equal(t, "test", s.TraceOp)
	assert.Equal(t, "test", s.Get(BaggageOp))
}

func TestNewSpan_DerivesChild(t *testing.T) {
	parent := NewTrace("checkout")
	parent.Baggage["tenant"] = "acme"

	child := NewSpan(parent)

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentSpanID)
	assert.NotEqual(t, parent.SpanID, child.SpanID)
	assert.Equal(t, "acme", child.Get("tenant"))
	assert.Equal(t, "checkout", child.TraceOp)

	child.Baggage["tenant"] = "other"
	assert.Equal(t, "acme", parent.Get("tenant"), "baggage must be copied")
}

func TestNewSpan_NilParent(t *testing.T) {
	s := NewSpan(nil)
	require.NotNil(t, s)
	assert.NotEmpty(t, s.TraceID)
}

func TestInjectFromHeaders_RoundTrip(t *testing.T) {
	parent := NewTrace("list orders")
	parent.Baggage["tenant"] = "acme"
	span := NewSpan(parent)

	h := make(http.Header)
	span.Inject(h)

	assert.Equal(t, span.TraceID, h.Get("x-b3-traceid"))
	assert.Equal(t, span.SpanID, h.Get("x-b3-spanid"))
	assert.Equal(t, span.ParentSpanID, h.Get("x-b3-parentspanid"))
	assert.Equal(t, "list orders", h.Get("baggage-op"))
	assert.Equal(t, "acme", h.Get("baggage-tenant"))

	got := FromHeaders(h)
	require.NotNil(t, got)
	assert.Equal(t, span.TraceID, got.TraceID)
	assert.Equal(t, span.SpanID, got.SpanID)
	assert.Equal(t, span.ParentSpanID, got.ParentSpanID)
	assert.Equal(t, "list orders", got.TraceOp)
	assert.Equal(t, map[string]string{"op": "list orders", "tenant": "acme"}, got.Baggage)
}

func TestFromHeaders_NoTraceID(t *testing.T) {
	h := make(http.Header)
	h.Set("baggage-op", "x")
	assert.Nil(t, FromHeaders(h))
}
