package txn

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/jacnel/fasst/cache"
	"github.com/jacnel/fasst/directory"
	"github.com/jacnel/fasst/internal/logging"
	"github.com/jacnel/fasst/internal/telemetry"
	"github.com/jacnel/fasst/mapping"
	"github.com/jacnel/fasst/result"
	"github.com/jacnel/fasst/transport"
)

// LockServer is the optional fast path mentioned in §4.7 step 1
// (TX_ENABLE_LOCK_SERVER in the source): a pre-check issued before
// prepare_tx that can abort the transaction early. Out of scope per §1;
// Driver.LockServer is nil unless a caller supplies one.
type LockServer interface {
	TryLock(ctx context.Context, tx *Record) error
}

// BatchSource builds the Batch a transaction sends its uncached requests
// through (§6's start_new_req family).
type BatchSource interface {
	NewBatch() transport.Batch
}

// Driver orchestrates a transaction's read path: prepare_tx followed by
// do_read, grounded on tx_execute.h's Tx::prepare_tx/Tx::do_read.
type Driver struct {
	Registry   *cache.Registry
	Directory  *directory.Client
	Mapper     mapping.Mapper
	Batches    BatchSource
	LockServer LockServer // optional fast path, nil by default
}

// NewDriver builds a Driver over the given collaborators.
func NewDriver(registry *cache.Registry, dirClient *directory.Client, mapper mapping.Mapper, batches BatchSource) *Driver {
	return &Driver{Registry: registry, Directory: dirClient, Mapper: mapper, Batches: batches}
}

func keyBytes(key uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], key)
	return buf[:]
}

// prepareTx implements §4.7 prepare_tx: for every uncached item it reserves
// a cache placeholder and registers directory interest (lookup for reads,
// acquire for writes), recording the primary/backup nodes from the
// mapping. It never suspends.
func (d *Driver) prepareTx(ctx context.Context, tx *Record) result.TxStatus {
	log := logging.WithComponent("txn")

	for _, it := range tx.ReadSet {
		if it.Cached {
			continue
		}
		table := d.Registry.Lookup(it.ReqType)
		if table == nil {
			panic(fmt.Sprintf("txn: no cache table registered for request type %d", it.ReqType))
		}

		timer := telemetry.NewTimer()
		ver, res := table.Placeholder(tx.CallerID, it.Keyhash, keyBytes(it.Key), len(it.Value))
		timer.ObserveDuration(telemetry.PlaceholderDuration)
		if res != result.Success && res != result.Exists {
			// §8 P6: a placeholder failure other than Exists collapses the
			// transaction to must_abort rather than aborting the process —
			// InsufficientSpace is listed as recoverable-and-expected in §7.
			log.Debug().Str("result", res.String()).Msg("read placeholder failed")
			return result.MustAbort
		}
		it.Incarnation = ver

		entry, dres := d.Directory.Lookup(ctx, it.Keyhash)
		if dres != result.DirSuccess {
			return result.MustAbort
		}
		it.DirEntry = entry
		it.Primary = d.Mapper.PrimaryNode(it.Keyhash)
		it.Backups = d.Mapper.BackupNodes(it.Keyhash)
	}

	for _, it := range tx.WriteSet {
		if it.Cached {
			continue
		}
		table := d.Registry.Lookup(it.ReqType)
		if table == nil {
			panic(fmt.Sprintf("txn: no cache table registered for request type %d", it.ReqType))
		}

		timer := telemetry.NewTimer()
		ver, res := table.Placeholder(tx.CallerID, it.Keyhash, keyBytes(it.Key), len(it.Value))
		timer.ObserveDuration(telemetry.PlaceholderDuration)
		if res != result.Success && res != result.Exists {
			log.Debug().Str("result", res.String()).Msg("write placeholder failed")
			return result.MustAbort
		}
		it.Incarnation = ver

		entry, dres := d.Directory.Acquire(ctx, it.Keyhash)
		if dres != result.DirSuccess {
			return result.MustAbort
		}
		it.DirEntry = entry
		it.Primary = d.Mapper.PrimaryNode(it.Keyhash)
		it.Backups = d.Mapper.BackupNodes(it.Keyhash)
	}

	return result.InProgress
}

// DoRead implements §4.7 do_read: the optional lock-server fast path,
// prepare_tx, building and sending the batch of uncached remote requests,
// and — on resumption — reconciling each response back into the cache and
// transaction state, in request order.
func (d *Driver) DoRead(ctx context.Context, tx *Record) result.TxStatus {
	timer := telemetry.NewTimer()
	defer func() {
		timer.ObserveDuration(telemetry.TxDuration)
	}()

	if d.LockServer != nil {
		if err := d.LockServer.TryLock(ctx, tx); err != nil {
			tx.Status = result.MustAbort
			telemetry.TxAbortsTotal.WithLabelValues("lock_server").Inc()
			return tx.Status
		}
	}

	if st := d.prepareTx(ctx, tx); st != result.InProgress {
		tx.Status = st
		telemetry.TxAbortsTotal.WithLabelValues("prepare_tx").Inc()
		return tx.Status
	}

	batch := d.Batches.NewBatch()
	readIdx := make([]int, 0, len(tx.ReadSet))
	writeIdx := make([]int, 0, len(tx.WriteSet))

	for i, it := range tx.ReadSet {
		if it.Cached {
			continue
		}
		batch.Add(transport.Request{
			Op:         transport.OpGetRdonly,
			TargetNode: it.Primary,
			Key:        it.Key,
			Keyhash:    it.Keyhash,
		})
		readIdx = append(readIdx, i)
	}
	for i, it := range tx.WriteSet {
		if it.Cached {
			continue
		}
		op := transport.OpGetForUpd
		if it.Mode == WriteInsert {
			op = transport.OpLockForIns
		}
		batch.Add(transport.Request{
			Op:         op,
			TargetNode: it.Primary,
			Key:        it.Key,
			Keyhash:    it.Keyhash,
			Value:      it.Value,
		})
		writeIdx = append(writeIdx, i)
	}
	telemetry.TxBatchSize.Observe(float64(len(readIdx) + len(writeIdx)))

	responses, err := batch.Send(ctx)
	if err != nil {
		tx.Status = result.MustAbort
		telemetry.TxAbortsTotal.WithLabelValues("transport").Inc()
		return tx.Status
	}

	pos := 0
	for _, i := range readIdx {
		d.reconcileRead(tx, tx.ReadSet[i], responses[pos])
		pos++
	}
	for _, i := range writeIdx {
		d.reconcileWrite(tx, tx.WriteSet[i], responses[pos])
		pos++
	}

	if tx.Status == result.InProgress {
		telemetry.TxCommitsTotal.Inc()
	}
	return tx.Status
}

func (d *Driver) reconcileRead(tx *Record, it *Item, resp transport.Response) {
	table := d.Registry.Lookup(it.ReqType)
	switch resp.Type {
	case transport.RespGetRdonlySuccess:
		it.ExecVersion = resp.Version
		it.Exists = true
		it.Value = resp.Value
		timer := telemetry.NewTimer()
		res := table.PrepareRead(tx.CallerID, it.Keyhash, keyBytes(it.Key), resp.Value, it.Incarnation, false)
		timer.ObserveDuration(telemetry.PrepareReadDuration)
		if res != result.Success {
			tx.Status = result.MustAbort
			telemetry.TxAbortsTotal.WithLabelValues("prepare_read").Inc()
		}
	case transport.RespGetRdonlyNotFound:
		it.Exists = false
	case transport.RespGetRdonlyLocked:
		tx.Status = result.MustAbort
		telemetry.TxAbortsTotal.WithLabelValues("read_locked").Inc()
	}
}

func (d *Driver) reconcileWrite(tx *Record, it *Item, resp transport.Response) {
	table := d.Registry.Lookup(it.ReqType)
	switch resp.Type {
	case transport.RespGetForUpdSuccess:
		it.ExecVersion = resp.Version
		it.ExecWSLocked = true
		res := table.PrepareWrite(tx.CallerID, it.Keyhash, keyBytes(it.Key), it.Value, it.Incarnation, it.Mode == WriteDelete)
		if res != result.NotFound && res != result.InsufficientSpace {
			// Exists is treated the same as Success here: the remote side
			// already holds the record, which is all an update/delete needs.
			return
		}
		tx.Status = result.MustAbort
		telemetry.TxAbortsTotal.WithLabelValues("prepare_write").Inc()
	case transport.RespGetForUpdNotFound, transport.RespGetForUpdLocked:
		// Abort without unlocking: prepare_write was never called, so the
		// bucket was never left locked by this path.
		tx.Status = result.MustAbort
		telemetry.TxAbortsTotal.WithLabelValues("write_conflict").Inc()
	case transport.RespLockForInsSuccess:
		it.ExecWSLocked = true
		res := table.PrepareWrite(tx.CallerID, it.Keyhash, keyBytes(it.Key), nil, it.Incarnation, false)
		if res != result.Success {
			tx.Status = result.MustAbort
			telemetry.TxAbortsTotal.WithLabelValues("prepare_write").Inc()
		}
	case transport.RespLockForInsExists, transport.RespLockForInsLocked:
		// The remote insert never happened, so the local placeholder must
		// not be finalized: leave it pending and the bucket unlocked.
		it.ExecWSLocked = false
		tx.Status = result.MustAbort
		telemetry.TxAbortsTotal.WithLabelValues("insert_conflict").Inc()
	}
}
