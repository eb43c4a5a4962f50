package cache

import (
	"testing"

	"github.com/jacnel/fasst/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const caller uint32 = 1

func newTestTable(onEvict EvictionCallback) *Table {
	pool := NewPool(CircularLog, 1<<20)
	return NewTable(8, pool, onEvict)
}

func TestPlaceholderThenPrepareReadRoundTrips(t *testing.T) {
	table := newTestTable(nil)
	kh := uint64(7)
	key := []byte("key-007")
	value := []byte("value-007")

	ver, res := table.Placeholder(caller, kh, key, len(value))
	require.Equal(t, result.Success, res)

	res = table.PrepareRead(caller, kh, key, value, ver, false)
	require.Equal(t, result.Success, res)

	buf := make([]byte, 64)
	n, _, res := table.Get(kh, key, buf)
	require.Equal(t, result.Success, res)
	assert.Equal(t, value, buf[:n], "L1: get must return the exact bytes written")
}

func TestPlaceholderTwiceReturnsExists(t *testing.T) {
	table := newTestTable(nil)
	kh := uint64(1)
	key := []byte("dup")

	_, res := table.Placeholder(caller, kh, key, 1)
	require.Equal(t, result.Success, res)

	_, res = table.Placeholder(caller, kh, key, 1)
	assert.Equal(t, result.Exists, res)
}

func TestPendingItemNeverReturnedByGet(t *testing.T) {
	table := newTestTable(nil)
	kh := uint64(2)
	key := []byte("pending")
	_, res := table.Placeholder(caller, kh, key, 4)
	require.Equal(t, result.Success, res)

	buf := make([]byte, 16)
	_, _, res = table.Get(kh, key, buf)
	assert.Equal(t, result.NotFound, res, "P5: get must not surface a pending item")
}

func TestPrepareReadDetectsInvalidation(t *testing.T) {
	table := newTestTable(nil)
	kh := uint64(3)
	key := []byte("k3")

	ver, res := table.Placeholder(caller, kh, key, 1)
	require.Equal(t, result.Success, res)

	res = table.Invalidate(caller, kh)
	require.Equal(t, result.Success, res)

	res = table.PrepareRead(caller, kh, key, []byte("x"), ver, false)
	assert.Equal(t, result.Invalidated, res, "P3: a stale expected_ver must fail with Invalidated")
}

func TestPrepareWriteLeavesBucketLockedUntilAbort(t *testing.T) {
	table := newTestTable(nil)
	kh := uint64(4)
	key := []byte("k4")

	ver, res := table.Placeholder(caller, kh, key, 1)
	require.Equal(t, result.Success, res)

	res = table.PrepareWrite(caller, kh, key, []byte("v4"), ver, false)
	require.Equal(t, result.Success, res)

	b := table.bucketFor(kh)
	locked, lockerID := b.isLocked()
	require.True(t, locked, "prepare_write must leave the bucket locked on success")
	assert.Equal(t, caller, lockerID)

	evenVersionBeforeAbort := b.getNextVersion()
	res = table.AbortWrite(caller, kh)
	require.Equal(t, result.Success, res)
	locked, _ = b.isLocked()
	assert.False(t, locked, "L3: abort_write must release the lock")
	assert.Zero(t, b.getVersion()%2, "L3: bucket version must be even after abort_write")
	assert.Equal(t, evenVersionBeforeAbort, b.getVersion(), "L3: abort_write must publish exactly the version get_next_version promised")
}

func TestCommitDelRequiresCallerHeldLock(t *testing.T) {
	table := newTestTable(nil)
	kh := uint64(5)
	key := []byte("k5")
	ver, res := table.Placeholder(caller, kh, key, 1)
	require.Equal(t, result.Success, res)
	require.Equal(t, result.Success, table.PrepareWrite(caller, kh, key, []byte("v"), ver, false))

	res = table.CommitDel(caller, kh, key)
	require.Equal(t, result.Success, res)

	buf := make([]byte, 16)
	_, _, res = table.Get(kh, key, buf)
	assert.Equal(t, result.NotFound, res, "a logically-deleted item must not be visible to get")
}

func TestCommitDelWithoutLockIsError(t *testing.T) {
	table := newTestTable(nil)
	res := table.CommitDel(caller, 6, []byte("k6"))
	assert.Equal(t, result.Error, res)
}

func TestEvictionCallbackFiresForModifiedVictim(t *testing.T) {
	var evicted [][]byte
	table := newTestTable(func(key, value []byte) {
		evicted = append(evicted, append([]byte(nil), value...))
	})

	// Force a same-bucket collision set with distinct tags so every slot
	// fills before eviction kicks in (keyhash & 7 == 0, tag = keyhash >> 48
	// distinct per item): slotCount is 15, so the 16th insert must evict.
	for i := uint64(0); i < 16; i++ {
		kh := (i + 1) << 48
		key := []byte{byte(i)}
		ver, res := table.Placeholder(caller, kh, key, 4)
		require.Equal(t, result.Success, res)
		require.Equal(t, result.Success, table.PrepareWrite(caller, kh, key, []byte("modified"), ver, false))
		require.Equal(t, result.Success, table.AbortWrite(caller, kh))
	}

	require.NotEmpty(t, evicted, "B1: a full bucket of modified items must fire the eviction callback on the 16th insert")
	for _, v := range evicted {
		assert.Equal(t, []byte("modified"), v)
	}
}

func TestInvalidateIsExclusive(t *testing.T) {
	table := newTestTable(nil)
	kh := uint64(9)
	table.bucketFor(kh).lock(99) // simulate a concurrent holder

	res := table.Invalidate(caller, kh)
	assert.Equal(t, result.Locked, res, "a contended invalidate must return Locked")
}

func TestPlaceholderLeavesVictimUntouchedWhenAllocationFails(t *testing.T) {
	var evicted int
	pool := NewPool(SegregatedFit, 0)
	table := NewTable(8, pool, func(key, value []byte) { evicted++ })
	kh := uint64(11)
	key := []byte("k11")

	ver, res := table.Placeholder(caller, kh, key, 4)
	assert.Equal(t, result.InsufficientSpace, res)
	assert.Zero(t, ver)
	assert.Zero(t, evicted, "a failed allocation must not evict the chosen victim slot")

	idx := table.chooseVictim(table.bucketFor(kh), tagFor(kh))
	assert.Equal(t, slot{}, table.bucketFor(kh).slots[idx], "the victim slot must be left empty, not partially cleared")
}
