package directory

import (
	"context"

	"github.com/jacnel/fasst/internal/telemetry"
	"github.com/jacnel/fasst/result"
)

// Client drives the one-sided lookup/acquire/release protocol (C6) against
// a RemoteMemory transport, grounded on directory_client.h's lookup/
// acquire/release methods.
type Client struct {
	mem        RemoteMemory
	numEntries uint64
	selfID     uint32
}

// NewClient builds a directory client bound to mem, an entry table of
// numEntries slots, identifying itself as machine selfID in ownership and
// accessor bitmasks.
func NewClient(mem RemoteMemory, numEntries uint64, selfID uint32) *Client {
	return &Client{mem: mem, numEntries: numEntries, selfID: selfID}
}

func (c *Client) offset(keyhash uint64) uint64 {
	return Offset(keyhash, c.numEntries)
}

// Lookup registers this machine as an accessor of keyhash so future
// invalidations target it (§4.6 lookup). It returns Owned if the entry is
// already exclusively owned by another machine.
func (c *Client) Lookup(ctx context.Context, keyhash uint64) (Entry, result.Directory) {
	timer := telemetry.NewTimer()
	defer timer.ObserveDurationVec(telemetry.DirectoryOpDuration, "lookup")

	off := c.offset(keyhash)
	entry, err := c.mem.Read(ctx, off)
	if err != nil {
		telemetry.DirectoryOpsTotal.WithLabelValues("lookup", "error").Inc()
		return Entry{}, result.DirError
	}
	if IsOwned(entry) && !IsOwner(entry, c.selfID) {
		telemetry.DirectoryOpsTotal.WithLabelValues("lookup", "owned").Inc()
		return entry, result.DirOwned
	}

	for {
		if IsOwned(entry) {
			if IsOwner(entry, c.selfID) {
				telemetry.DirectoryOpsTotal.WithLabelValues("lookup", "success").Inc()
				return entry, result.DirSuccess
			}
			telemetry.DirectoryOpsTotal.WithLabelValues("lookup", "owned").Inc()
			return entry, result.DirOwned
		}
		desired := Entry{
			OwnerAccessors: AddAccessor(entry, c.selfID),
			Primary:        entry.Primary,
			Backups:        entry.Backups,
		}
		swapped, err := c.mem.CAS(ctx, off, entry, desired)
		if err != nil {
			telemetry.DirectoryOpsTotal.WithLabelValues("lookup", "error").Inc()
			return Entry{}, result.DirError
		}
		if swapped {
			telemetry.DirectoryOpsTotal.WithLabelValues("lookup", "success").Inc()
			return desired, result.DirSuccess
		}
		telemetry.DirectoryCASRetriesTotal.Inc()
		entry, err = c.mem.Read(ctx, off)
		if err != nil {
			telemetry.DirectoryOpsTotal.WithLabelValues("lookup", "error").Inc()
			return Entry{}, result.DirError
		}
	}
}

// Acquire takes exclusive ownership of keyhash for a write (§4.6 acquire).
// Re-acquiring an entry this machine already owns succeeds immediately.
func (c *Client) Acquire(ctx context.Context, keyhash uint64) (Entry, result.Directory) {
	timer := telemetry.NewTimer()
	defer timer.ObserveDurationVec(telemetry.DirectoryOpDuration, "acquire")

	off := c.offset(keyhash)
	entry, err := c.mem.Read(ctx, off)
	if err != nil {
		telemetry.DirectoryOpsTotal.WithLabelValues("acquire", "error").Inc()
		return Entry{}, result.DirError
	}
	if IsOwned(entry) {
		if IsOwner(entry, c.selfID) {
			telemetry.DirectoryOpsTotal.WithLabelValues("acquire", "success").Inc()
			return entry, result.DirSuccess
		}
		telemetry.DirectoryOpsTotal.WithLabelValues("acquire", "owned").Inc()
		return entry, result.DirOwned
	}

	for {
		desired := Entry{
			OwnerAccessors: SetOwned(c.selfID),
			Primary:        entry.Primary,
			Backups:        entry.Backups,
		}
		swapped, err := c.mem.CAS(ctx, off, entry, desired)
		if err != nil {
			telemetry.DirectoryOpsTotal.WithLabelValues("acquire", "error").Inc()
			return Entry{}, result.DirError
		}
		if swapped {
			telemetry.DirectoryOpsTotal.WithLabelValues("acquire", "success").Inc()
			return desired, result.DirSuccess
		}
		telemetry.DirectoryCASRetriesTotal.Inc()
		entry, err = c.mem.Read(ctx, off)
		if err != nil {
			telemetry.DirectoryOpsTotal.WithLabelValues("acquire", "error").Inc()
			return Entry{}, result.DirError
		}
		if IsOwned(entry) {
			if IsOwner(entry, c.selfID) {
				telemetry.DirectoryOpsTotal.WithLabelValues("acquire", "success").Inc()
				return entry, result.DirSuccess
			}
			telemetry.DirectoryOpsTotal.WithLabelValues("acquire", "owned").Inc()
			return entry, result.DirOwned
		}
	}
}

// Release unconditionally overwrites keyhash's entry with newEntry, a
// non-owned state. Callers must only invoke this after a successful
// Acquire (§4.6 release).
func (c *Client) Release(ctx context.Context, keyhash uint64, newEntry Entry) result.Directory {
	timer := telemetry.NewTimer()
	defer timer.ObserveDurationVec(telemetry.DirectoryOpDuration, "release")

	off := c.offset(keyhash)
	if err := c.mem.Write(ctx, off, newEntry); err != nil {
		telemetry.DirectoryOpsTotal.WithLabelValues("release", "error").Inc()
		return result.DirError
	}
	telemetry.DirectoryOpsTotal.WithLabelValues("release", "success").Inc()
	return result.DirSuccess
}
