package cache

import (
	"bytes"

	"github.com/jacnel/fasst/result"
)

// EvictionCallback fires exactly once for every modified item displaced from
// the cache, whether by placeholder overwriting an occupied slot or by
// invalidate. It must not re-enter the cache (Design Notes, §9).
type EvictionCallback func(key, value []byte)

// Table is the fixed-capacity associative cache (C3): an array of buckets
// over a shared Pool, with lossy eviction within each bucket.
type Table struct {
	buckets []*bucket
	mask    uint64
	pool    *Pool
	onEvict EvictionCallback
}

// NewTable builds a table with numBuckets buckets (rounded down to a power
// of two) over pool, firing onEvict for every displaced modified item.
func NewTable(numBuckets uint64, pool *Pool, onEvict EvictionCallback) *Table {
	if numBuckets == 0 {
		numBuckets = 1
	}
	n := uint64(1)
	for n*2 <= numBuckets {
		n *= 2
	}
	buckets := make([]*bucket, n)
	for i := range buckets {
		buckets[i] = newBucket()
	}
	return &Table{buckets: buckets, mask: n - 1, pool: pool, onEvict: onEvict}
}

func (t *Table) bucketFor(keyhash uint64) *bucket {
	return t.buckets[keyhash&t.mask]
}

func tagFor(keyhash uint64) uint16 {
	return uint16(keyhash >> 48)
}

// findSlot scans b's slots for an item matching tag and key, loading
// candidates from pool to confirm the full key (tags may collide).
func (t *Table) findSlot(b *bucket, tag uint16, key []byte) (idx int, it *item) {
	for i, s := range b.slots {
		if s.offset == 0 || s.tag != tag {
			continue
		}
		cand := t.pool.GetItem(s.offset)
		if cand != nil && bytes.Equal(cand.key, key) {
			return i, cand
		}
	}
	return -1, nil
}

// chooseVictim implements the placeholder selection policy (§4.3): reuse a
// same-tag slot first, else the first empty slot, else the oldest by
// insertion order.
func (t *Table) chooseVictim(b *bucket, tag uint16) int {
	for i, s := range b.slots {
		if s.offset != 0 && s.tag == tag {
			return i
		}
	}
	for i, s := range b.slots {
		if s.offset == 0 {
			return i
		}
	}
	oldest := 0
	for i := 1; i < slotCount; i++ {
		if b.insertOrder[i] < b.insertOrder[oldest] {
			oldest = i
		}
	}
	return oldest
}

func (t *Table) evictSlot(b *bucket, idx int) {
	s := b.slots[idx]
	if s.offset == 0 {
		return
	}
	victim := t.pool.GetItem(s.offset)
	if victim != nil && victim.modified && t.onEvict != nil {
		t.onEvict(victim.key, victim.value)
	}
	t.pool.Release(s.offset)
	b.slots[idx] = slot{}
}

// Placeholder reserves a slot for an anticipated value (§4.3). It locks and
// unlocks the bucket; on Success or Exists outVer is stamped with
// get_next_version so later prepare_read/write calls can detect intervening
// invalidation (I7).
func (t *Table) Placeholder(callerID uint32, keyhash uint64, key []byte, valueLen int) (outVer uint64, res result.Cache) {
	b := t.bucketFor(keyhash)
	tag := tagFor(keyhash)
	b.lock(callerID)
	defer b.unlock(callerID)

	if _, it := t.findSlot(b, tag, key); it != nil {
		return b.getNextVersion(), result.Exists
	}

	idx := t.chooseVictim(b, tag)

	pending := &item{key: append([]byte(nil), key...), pending: true}
	_ = valueLen // reserved for capacity planning by real allocators
	offset, ares := t.pool.Allocate(pending)
	if ares != result.Success {
		return 0, ares
	}

	t.evictSlot(b, idx)
	b.slots[idx] = slot{tag: tag, offset: offset}
	b.insertOrder[idx] = b.nextInsertStamp()
	return b.getNextVersion(), result.Success
}

// finalize is the shared body of prepare_read and prepare_write: locate the
// pending item, validate the bucket generation, and replace its contents.
func (t *Table) finalize(b *bucket, tag uint16, key, value []byte, expectedVer uint64, deleted, modified bool) result.Cache {
	if b.getVersion() != expectedVer {
		return result.Invalidated
	}
	idx, it := t.findSlot(b, tag, key)
	if it == nil {
		return result.NotFound
	}
	if !it.pending {
		return result.Exists
	}

	oldOffset := b.slots[idx].offset
	newItem := &item{
		key:      it.key,
		value:    append([]byte(nil), value...),
		pending:  false,
		modified: modified,
		deleted:  deleted,
	}

	if t.pool.IsValid(oldOffset) && newItem.size() <= it.size() {
		*it = *newItem
		return result.Success
	}

	newOffset, ares := t.pool.Allocate(newItem)
	if ares != result.Success {
		return ares
	}
	t.pool.Release(oldOffset)
	b.slots[idx].offset = newOffset
	return result.Success
}

// PrepareRead finalizes a placeholder with a value read from the remote
// datastore. On any non-Success result the bucket is left unlocked.
func (t *Table) PrepareRead(callerID uint32, keyhash uint64, key, value []byte, expectedVer uint64, deleted bool) result.Cache {
	b := t.bucketFor(keyhash)
	tag := tagFor(keyhash)
	b.lock(callerID)
	res := t.finalize(b, tag, key, value, expectedVer, deleted, false)
	b.unlock(callerID)
	return res
}

// PrepareWrite finalizes a placeholder with a locally-written value and, on
// success, leaves the bucket locked so that write-write conflicts are
// blocked until the driver commits or aborts (§4.3). Exists (the item was
// already cached, not a fresh placeholder) is treated the same as Success:
// the record is already there and the lock is still held for the caller.
func (t *Table) PrepareWrite(callerID uint32, keyhash uint64, key, value []byte, expectedVer uint64, deleted bool) result.Cache {
	b := t.bucketFor(keyhash)
	tag := tagFor(keyhash)
	b.lock(callerID)
	res := t.finalize(b, tag, key, value, expectedVer, deleted, true)
	if res != result.Success && res != result.Exists {
		b.unlock(callerID)
	}
	return res
}

// CommitDel logically deletes an item in a bucket already locked by caller,
// then unlocks it. Per Design Note 9(a), the lock precondition is checked as
// a direct caller_id comparison, not via the source's uninitialized
// out_locker_id.
func (t *Table) CommitDel(callerID uint32, keyhash uint64, key []byte) result.Cache {
	b := t.bucketFor(keyhash)
	locked, lockerID := b.isLocked()
	if !locked || lockerID != callerID {
		return result.Error
	}
	tag := tagFor(keyhash)
	idx, it := t.findSlot(b, tag, key)
	if it == nil {
		b.unlock(callerID)
		return result.NotFound
	}
	_ = idx
	it.deleted = true
	it.value = nil
	b.unlock(callerID)
	return result.Success
}

// AbortWrite releases a bucket locked by caller without mutation.
func (t *Table) AbortWrite(callerID uint32, keyhash uint64) result.Cache {
	b := t.bucketFor(keyhash)
	locked, lockerID := b.isLocked()
	if !locked || lockerID != callerID {
		return result.Error
	}
	b.unlock(callerID)
	return result.Success
}

// Invalidate tries to lock the bucket housing keyhash; on success it evicts
// every occupied slot (firing the callback for modified items), bumps the
// incarnation, and unlocks. The unlock advances the bucket version, which is
// what makes outstanding prepare calls see Invalidated.
func (t *Table) Invalidate(callerID uint32, keyhash uint64) result.Cache {
	b := t.bucketFor(keyhash)
	if !b.tryLock(callerID) {
		return result.Locked
	}
	for idx := range b.slots {
		t.evictSlot(b, idx)
	}
	b.incarnation.Add(1)
	b.unlock(callerID)
	return result.Success
}

// IsLocked reports whether the bucket housing keyhash is currently locked,
// and by whom. Exposed for callers that need to observe lock hand-off
// across the resource-release phase (§5).
func (t *Table) IsLocked(keyhash uint64) (locked bool, lockerID uint32) {
	return t.bucketFor(keyhash).isLocked()
}

// Get performs an optimistic, wait-free read: a seqlock-bracketed scan that
// retries on a concurrent writer and never returns pending or deleted items
// (I4, P5).
func (t *Table) Get(keyhash uint64, key []byte, buf []byte) (n int, ver uint64, res result.Cache) {
	b := t.bucketFor(keyhash)
	tag := tagFor(keyhash)
	for {
		v1 := b.readVersionBegin()
		_, it := t.findSlot(b, tag, key)
		v2 := b.readVersionEnd()
		if v1 != v2 {
			continue
		}
		if it == nil {
			return 0, v1, result.NotFound
		}
		if it.pending || it.deleted {
			return 0, v1, result.NotFound
		}
		if len(buf) < len(it.value) {
			n = copy(buf, it.value)
			return n, v1, result.PartialValue
		}
		n = copy(buf, it.value)
		return n, v1, result.Success
	}
}
