// Package cache implements the bucketed, log-allocated, lossy concurrent
// cache table: per-bucket locking (this file), a log-structured pool
// (pool.go), the associative table itself (table.go), and the
// request-type registry that routes records to the right table
// (registry.go).
package cache

import "sync/atomic"

// InvalidLockerID is the sentinel stored in a bucket's locker cell when the
// bucket is unlocked.
const InvalidLockerID uint32 = 0xffffffff

// slotCount is the fixed per-bucket associativity (B in the data model).
const slotCount = 15

// slot is one item-vector entry: a tag (derived from keyhash) plus a pool
// offset. A zero offset means empty.
type slot struct {
	tag    uint16
	offset uint64
}

// bucket is the unit of locking, versioning and eviction. Its version word
// encodes the seqlock (I1): even means unlocked, the low bit is the lock
// flag. lockerID is a companion cell (not folded into the version word,
// since Go has no portable 96-bit CAS) recording the reentrant holder.
type bucket struct {
	version      atomic.Uint64
	lockerID     atomic.Uint32
	incarnation  atomic.Uint64
	slots        [slotCount]slot
	insertOrder  [slotCount]uint64 // monotonic stamp per slot, for oldest-slot eviction
	insertTicker uint64
}

func newBucket() *bucket {
	b := &bucket{}
	b.lockerID.Store(InvalidLockerID)
	return b
}

// tryLock implements C1 try_lock: reentrant fast path for the current
// holder, otherwise a single CAS attempt.
func (b *bucket) tryLock(callerID uint32) bool {
	v := b.version.Load()
	if v&1 == 1 && b.lockerID.Load() == callerID {
		return true
	}
	if v&1 == 1 {
		return false
	}
	if !b.version.CompareAndSwap(v, v|1) {
		return false
	}
	b.lockerID.Store(callerID)
	return true
}

// lock spins until tryLock succeeds, matching the source's lock_bucket.
func (b *bucket) lock(callerID uint32) {
	for !b.tryLock(callerID) {
	}
}

// unlock asserts ownership, clears the locker cell, then advances the
// version by one to restore even parity (I1) and bump the generation (I7).
// Only the lock holder performs the increment.
func (b *bucket) unlock(callerID uint32) {
	if b.lockerID.Load() != callerID {
		panic("cache: unlock by non-owner")
	}
	b.lockerID.Store(InvalidLockerID)
	b.version.Add(1)
}

// isLocked reports whether the bucket is currently locked, and by whom.
func (b *bucket) isLocked() (locked bool, lockerID uint32) {
	v := b.version.Load()
	return v&1 == 1, b.lockerID.Load()
}

// readVersionBegin waits for an even version and returns it (seqlock begin).
func (b *bucket) readVersionBegin() uint64 {
	for {
		v := b.version.Load()
		if v&1 == 0 {
			return v
		}
	}
}

// readVersionEnd re-reads the version for the reader to compare against the
// value captured by readVersionBegin.
func (b *bucket) readVersionEnd() uint64 {
	return b.version.Load()
}

// getVersion masks off the lock bit.
func (b *bucket) getVersion() uint64 {
	return b.version.Load() &^ 1
}

// getNextVersion returns the version that will be published when the
// current locked section unlocks: (v+1) &^ 1.
func (b *bucket) getNextVersion() uint64 {
	return (b.version.Load() + 1) &^ 1
}

func (b *bucket) nextInsertStamp() uint64 {
	b.insertTicker++
	return b.insertTicker
}
