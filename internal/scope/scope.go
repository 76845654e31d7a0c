// Package scope provides the execution scope a call runs in: the trace span it
// belongs to, ambient configuration, and the hooks that observe which tables
// the call read or changed.
package scope

import (
	"sync"

	"httprpc/internal/trace"
)

// Table is a handle to a named table. Only the name is ever interpreted.
type Table interface {
	TableName() string
}

// Named is a plain table handle, for code that has only a name
type Named string

// TableName implements Table
func (n Named) TableName() string {
	return string(n)
}

// Conf carries ambient configuration into handlers
type Conf struct {
	Service string
	Values  map[string]any
}

// Hooks observe table access during a scope's lifetime. Nil hooks are skipped.
type Hooks struct {
	OnRead    func(Table)
	OnChanged func(Table)
}

// Scope is the context one call, or one server-side batch, executes in.
type Scope struct {
	span  *trace.Span
	conf  Conf
	hooks Hooks
}

// New creates a scope. A nil span originates a new trace.
func New(span *trace.Span, conf Conf, hooks Hooks) *Scope {
	if span == nil {
		span = trace.NewTrace("")
	}
	return &Scope{span: span, conf: conf, hooks: hooks}
}

// Span returns the span the scope runs under
func (s *Scope) Span() *trace.Span {
	return s.span
}

// Conf returns the ambient configuration
func (s *Scope) Conf() Conf {
	return s.conf
}

// OnRead records that table was read
func (s *Scope) OnRead(t Table) {
	if s.hooks.OnRead != nil && t != nil {
		s.hooks.OnRead(t)
	}
}

// OnChanged records that table was written
func (s *Scope) OnChanged(t Table) {
	if s.hooks.OnChanged != nil && t != nil {
		s.hooks.OnChanged(t)
	}
}

// Recorder accumulates distinct table names in first-seen order.
// Tables with an empty name are ignored.
type Recorder struct {
	mu    sync.Mutex
	names []string
	seen  map[string]struct{}
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{seen: make(map[string]struct{})}
}

// Record adds the table's name if not already present
func (r *Recorder) Record(t Table) {
	name := t.TableName()
	if name == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[name]; ok {
		return
	}
	r.seen[name] = struct{}{}
	r.names = append(r.names, name)
}

// Names returns a copy of the recorded names
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}
