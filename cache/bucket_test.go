package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketLockReentrant(t *testing.T) {
	b := newBucket()

	require.True(t, b.tryLock(1))
	assert.True(t, b.tryLock(1), "same caller should reacquire")
	assert.False(t, b.tryLock(2), "other caller must be rejected while locked")

	b.unlock(1)
	locked, _ := b.isLocked()
	assert.False(t, locked)
}

func TestBucketVersionParity(t *testing.T) {
	b := newBucket()
	v0 := b.getVersion()
	assert.Zero(t, v0%2, "unlocked bucket must have even version (I1)")

	b.lock(7)
	v1 := b.version.Load()
	assert.Equal(t, uint64(1), v1%2, "locked bucket must have odd version word (I1)")

	next := b.getNextVersion()
	b.unlock(7)
	assert.Equal(t, next, b.getVersion(), "unlock must publish exactly the version get_next_version promised (I7)")
}

func TestBucketUnlockByNonOwnerPanics(t *testing.T) {
	b := newBucket()
	b.lock(1)
	assert.Panics(t, func() { b.unlock(2) })
}

func TestReadVersionBeginEndDetectsWrite(t *testing.T) {
	b := newBucket()
	v1 := b.readVersionBegin()
	b.lock(1)
	b.unlock(1)
	v2 := b.readVersionEnd()
	assert.NotEqual(t, v1, v2, "an intervening write must be observable via begin != end (P1)")
}
