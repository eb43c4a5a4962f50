package cache

import (
	"fmt"
	"sync"
)

// Registry maps an 8-bit request-type tag to the Table instance serving it
// (C4), so the transaction driver can route each item to the table sized
// for its record type. Register is idempotent-reject: a second table for
// the same tag is an error.
type Registry struct {
	mu     sync.RWMutex
	tables map[uint8]*Table
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[uint8]*Table)}
}

// Register binds reqType to table. It fails if reqType is already bound.
func (r *Registry) Register(reqType uint8, table *Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tables[reqType]; exists {
		return fmt.Errorf("cache: request type %d already registered", reqType)
	}
	r.tables[reqType] = table
	return nil
}

// Lookup returns the table bound to reqType, or nil if none.
func (r *Registry) Lookup(reqType uint8) *Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tables[reqType]
}
