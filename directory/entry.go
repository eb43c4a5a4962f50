// Package directory implements the distributed directory: the per-key
// ownership/accessor bitmask (C5), the one-sided client protocol that
// maintains it (C6), and a pluggable RemoteMemory transport with an
// in-process Loopback and a gRPC-backed implementation (rpcmem/).
package directory

// MaxBackups bounds the backup node list carried on the wire with each
// entry, matching the original HOTS_MAX_BACKUPS constant.
const MaxBackups = 2

// ownerBit is the MSB of OwnerAccessors.
const ownerBit = uint64(1) << 63

// Entry is a directory entry (data model §3): a 64-bit owner/accessor
// bitmask plus the primary and backup node ids for the key it guards.
type Entry struct {
	OwnerAccessors uint64
	Primary        uint32
	Backups        [MaxBackups]uint32
}

// EmptyEntry is the zero-value sentinel: unowned, empty accessor set.
var EmptyEntry = Entry{}

// IsOwned reports whether the owner bit is set (C5 is_owned).
func IsOwned(e Entry) bool {
	return e.OwnerAccessors&ownerBit != 0
}

// IsOwner reports whether mid is the entry's exclusive owner (C5 is_owner).
func IsOwner(e Entry, mid uint32) bool {
	return IsOwned(e) && e.OwnerAccessors&(uint64(1)<<mid) != 0
}

// SetOwned returns the OwnerAccessors value that marks mid as exclusive
// owner, clearing every other bit. Per Design Note 9(c), this ORs the owner
// bit and the machine bit rather than ANDing them — the `&` in the source
// can never produce a nonzero owner_accessors and is a bug.
func SetOwned(mid uint32) uint64 {
	return ownerBit | (uint64(1) << mid)
}

// IsAccessor reports whether mid holds a cached copy while the entry is
// unowned (C5 is_accessor).
func IsAccessor(e Entry, mid uint32) bool {
	return !IsOwned(e) && e.OwnerAccessors&(uint64(1)<<mid) != 0
}

// AddAccessor returns OwnerAccessors with mid's bit set. Requires the owner
// bit be clear; callers must check IsOwned first (C5 add_accessor).
func AddAccessor(e Entry, mid uint32) uint64 {
	return e.OwnerAccessors | (uint64(1) << mid)
}

// Accessors lists the machine ids with their bit set, when the entry is not
// owned (C5 accessors).
func Accessors(e Entry) []uint32 {
	if IsOwned(e) {
		return nil
	}
	var ids []uint32
	for mid := uint32(0); mid < 63; mid++ {
		if e.OwnerAccessors&(uint64(1)<<mid) != 0 {
			ids = append(ids, mid)
		}
	}
	return ids
}
