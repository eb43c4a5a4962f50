package txn

import (
	"context"
	"testing"

	"github.com/jacnel/fasst/cache"
	"github.com/jacnel/fasst/directory"
	"github.com/jacnel/fasst/mapping"
	"github.com/jacnel/fasst/result"
	"github.com/jacnel/fasst/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reqType uint8 = 1

// harness wires one cache table, a loopback directory and a loopback
// datastore behind a Driver, mirroring how cmd/fasstd assembles the real
// collaborators but in-process so the driver can be exercised directly.
func harness(t *testing.T, selfID uint32) (*Driver, *transport.Loopback) {
	t.Helper()
	registry := cache.NewRegistry()
	pool := cache.NewPool(cache.CircularLog, 1<<20)
	table := cache.NewTable(16, pool, nil)
	require.NoError(t, registry.Register(reqType, table))

	dirMem := directory.NewLoopback(16)
	dirClient := directory.NewClient(dirMem, 16, selfID)
	mapper := mapping.NewStatic([]uint32{selfID})
	store := transport.NewLoopback()

	return NewDriver(registry, dirClient, mapper, store), store
}

func TestDoReadCommitsExistingRecord(t *testing.T) {
	driver, store := harness(t, 1)
	store.Seed(10, []byte("hello"))

	tx := NewRecord(1)
	tx.ReadSet = []*Item{{Key: 10, Keyhash: 10, ReqType: reqType}}

	st := driver.DoRead(context.Background(), tx)
	assert.Equal(t, result.InProgress, st, "a clean read commits (no abort)")
	assert.True(t, tx.ReadSet[0].Exists)
	assert.Equal(t, []byte("hello"), tx.ReadSet[0].Value)

	table := driver.Registry.Lookup(reqType)
	buf := make([]byte, 32)
	n, _, res := table.Get(10, keyBytes(10), buf)
	require.Equal(t, result.Success, res)
	assert.Equal(t, "hello", string(buf[:n]), "a committed read populates the cache")
}

func TestDoReadReportsNotFoundWithoutAborting(t *testing.T) {
	driver, _ := harness(t, 1)

	tx := NewRecord(1)
	tx.ReadSet = []*Item{{Key: 404, Keyhash: 404, ReqType: reqType}}

	st := driver.DoRead(context.Background(), tx)
	assert.Equal(t, result.InProgress, st, "a missing record is not a transaction abort")
	assert.False(t, tx.ReadSet[0].Exists)
}

func TestDoReadUpdateLeavesBucketLockedForCommit(t *testing.T) {
	driver, store := harness(t, 1)
	store.Seed(20, []byte("old"))

	tx := NewRecord(1)
	tx.WriteSet = []*Item{{Key: 20, Keyhash: 20, ReqType: reqType, Mode: WriteUpdate, Value: []byte("new")}}

	st := driver.DoRead(context.Background(), tx)
	require.Equal(t, result.InProgress, st)
	assert.True(t, tx.WriteSet[0].ExecWSLocked)

	table := driver.Registry.Lookup(reqType)
	locked, lockerID := table.IsLocked(20)
	assert.True(t, locked, "prepare_write leaves the bucket locked for the resource-release phase")
	assert.EqualValues(t, 1, lockerID)

	require.Equal(t, result.Success, table.AbortWrite(1, 20))
}

func TestDoReadInsertSucceedsOnAbsentKey(t *testing.T) {
	driver, _ := harness(t, 1)

	tx := NewRecord(1)
	tx.WriteSet = []*Item{{Key: 30, Keyhash: 30, ReqType: reqType, Mode: WriteInsert}}

	st := driver.DoRead(context.Background(), tx)
	require.Equal(t, result.InProgress, st)
	assert.True(t, tx.WriteSet[0].ExecWSLocked)

	table := driver.Registry.Lookup(reqType)
	require.Equal(t, result.Success, table.AbortWrite(1, 30))
}

func TestDoReadInsertConflictAborts(t *testing.T) {
	driver, store := harness(t, 1)
	store.Seed(40, []byte("taken"))

	tx := NewRecord(1)
	tx.WriteSet = []*Item{{Key: 40, Keyhash: 40, ReqType: reqType, Mode: WriteInsert}}

	st := driver.DoRead(context.Background(), tx)
	assert.Equal(t, result.MustAbort, st, "inserting an existing key must abort")

	// The remote insert never happened, so the placeholder is left pending
	// and the bucket unlocked rather than finalized.
	table := driver.Registry.Lookup(reqType)
	locked, _ := table.IsLocked(40)
	assert.False(t, locked, "a conflicting insert must not finalize or lock the placeholder")
}

func TestDoReadWriteConflictOnLockedRemoteRecordAborts(t *testing.T) {
	driver, store := harness(t, 1)
	store.Seed(50, []byte("v1"))
	// Simulate a concurrent holder of the remote write lock.
	batch := store.NewBatch()
	batch.Add(transport.Request{Op: transport.OpGetForUpd, Key: 50})
	_, err := batch.Send(context.Background())
	require.NoError(t, err)

	tx := NewRecord(2)
	tx.WriteSet = []*Item{{Key: 50, Keyhash: 50, ReqType: reqType, Mode: WriteUpdate, Value: []byte("v2")}}

	st := driver.DoRead(context.Background(), tx)
	assert.Equal(t, result.MustAbort, st)
}

func TestDoReadReconcilesResponsesInRequestOrder(t *testing.T) {
	driver, store := harness(t, 1)
	store.Seed(60, []byte("a"))
	store.Seed(61, []byte("b"))

	tx := NewRecord(3)
	tx.ReadSet = []*Item{
		{Key: 60, Keyhash: 60, ReqType: reqType},
		{Key: 61, Keyhash: 61, ReqType: reqType},
	}

	st := driver.DoRead(context.Background(), tx)
	require.Equal(t, result.InProgress, st)
	assert.Equal(t, []byte("a"), tx.ReadSet[0].Value)
	assert.Equal(t, []byte("b"), tx.ReadSet[1].Value)
}
