package client

import "sync"

// RemoteTable is a handle to a table owned by a remote service. Handles are
// interned, so the same name always yields the same pointer.
type RemoteTable struct {
	name string
}

// TableName implements scope.Table
func (t *RemoteTable) TableName() string {
	return t.name
}

func (t *RemoteTable) String() string {
	return "{RemoteTable " + t.name + "}"
}

// TableRegistry interns RemoteTable handles by name
type TableRegistry struct {
	tables map[string]*RemoteTable
	mu     sync.Mutex
}

// NewTableRegistry creates an empty registry
func NewTableRegistry() *TableRegistry {
	return &TableRegistry{tables: make(map[string]*RemoteTable)}
}

// Get returns the handle for name, creating it on first use
func (r *TableRegistry) Get(name string) *RemoteTable {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tables[name]
	if !ok {
		t = &RemoteTable{name: name}
		r.tables[name] = t
	}
	return t
}

// Len returns the number of interned handles
func (r *TableRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tables)
}
