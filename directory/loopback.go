package directory

import (
	"context"
	"sync"
)

// Loopback is an in-process RemoteMemory: a fixed-size entry table guarded
// by one mutex per entry, the direct translation of "a TCP/RPC-based
// implementation must provide equivalent linearizability per entry (e.g.,
// server-side mutex per entry slot)" (Design Notes §9). It is the default
// transport for unit tests and the driver's own tests.
type Loopback struct {
	locks   []sync.Mutex
	entries []Entry
}

// NewLoopback builds a loopback directory of numEntries slots, all
// initialized to EmptyEntry.
func NewLoopback(numEntries uint64) *Loopback {
	return &Loopback{
		locks:   make([]sync.Mutex, numEntries),
		entries: make([]Entry, numEntries),
	}
}

func (l *Loopback) Read(_ context.Context, offset uint64) (Entry, error) {
	l.locks[offset].Lock()
	defer l.locks[offset].Unlock()
	return l.entries[offset], nil
}

func (l *Loopback) CAS(_ context.Context, offset uint64, expected, newEntry Entry) (bool, error) {
	l.locks[offset].Lock()
	defer l.locks[offset].Unlock()
	if l.entries[offset] != expected {
		return false, nil
	}
	l.entries[offset] = newEntry
	return true, nil
}

func (l *Loopback) Write(_ context.Context, offset uint64, newEntry Entry) error {
	l.locks[offset].Lock()
	defer l.locks[offset].Unlock()
	l.entries[offset] = newEntry
	return nil
}
