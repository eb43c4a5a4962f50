// Package txn implements the transaction driver (C7): prepare_tx and
// do_read, the coroutine-modeled orchestration of cache placeholders,
// directory lookups/acquires, and batched remote reads/locks, grounded on
// original_source/tx/tx_execute.h.
package txn

import (
	"github.com/jacnel/fasst/directory"
	"github.com/jacnel/fasst/result"
)

// WriteMode distinguishes the three write-set intents the driver routes to
// distinct datastore operations (§4.7 step 3: update/delete → get_for_upd,
// insert → lock_for_ins).
type WriteMode int

const (
	WriteUpdate WriteMode = iota
	WriteDelete
	WriteInsert
)

// Item is one entry of a transaction's read-set or write-set (data model
// §3): key, keyhash, owning request-type tag, the application-visible
// value buffer, a cached flag, the incarnation captured at placeholder
// time, the directory entry snapshot, a recorded exec-time version, an
// exec_ws_locked flag for abort-time unlock, and — for write-set items — a
// write mode.
type Item struct {
	Key      uint64
	Keyhash  uint64
	ReqType  uint8
	Cached   bool
	Mode     WriteMode // write-set only
	Value    []byte    // read: filled in by reconciliation; write: the value to apply
	Exists   bool      // read-set only: whether the remote found the record

	Incarnation  uint64
	DirEntry     directory.Entry
	ExecVersion  uint64
	ExecWSLocked bool

	Primary uint32
	Backups [directory.MaxBackups]uint32
}

// Record holds a transaction attempt's read-set, write-set and status.
type Record struct {
	CallerID uint32
	ReadSet  []*Item
	WriteSet []*Item
	Status   result.TxStatus
}

// NewRecord builds an empty in-progress transaction record identified by
// callerID, the bucket-lock reentrancy token shared by every cache call the
// transaction makes.
func NewRecord(callerID uint32) *Record {
	return &Record{CallerID: callerID, Status: result.InProgress}
}
