package scope

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"httprpc/internal/trace"
)

func TestScope_HooksReceiveTables(t *testing.T) {
	read := NewRecorder()
	changed := NewRecorder()
	sc := New(trace.NewTrace("test"), Conf{Service: "svc"}, Hooks{
		OnRead:    read.Record,
		OnChanged: changed.Record,
	})

	sc.OnRead(Named("orders"))
	sc.OnRead(Named("users"))
	sc.OnRead(Named("orders"))
	sc.OnChanged(Named("orders"))
	sc.OnChanged(Named(""))

	assert.Equal(t, []string{"orders", "users"}, read.Names())
	assert.Equal(t, []string{"orders"}, changed.Names())
	assert.Equal(t, "svc", sc.Conf().Service)
	assert.Equal(t, "test", sc.Span().TraceOp)
}

func TestScope_NilHooksAndSpan(t *testing.T) {
	sc := New(nil, Conf{}, Hooks{})
	assert.NotNil(t, sc.Span())

	// must not panic
	sc.OnRead(Named("orders"))
	sc.OnChanged(nil)
}

func TestRecorder_Concurrent(t *testing.T) {
	r := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record(Named("a"))
			r.Record(Named("b"))
		}()
	}
	wg.Wait()

	assert.ElementsMatch(t, []string{"a", "b"}, r.Names())
}
