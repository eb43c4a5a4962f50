// Package mapping provides the key→node mapping table the driver and
// directory client consult to locate the directory machine, primary and
// backup nodes for a key (§1 lists this as an external collaborator;
// original_source's tx_execute.h and directory_client.h both call into an
// uncaptured mappings.h for the same purpose).
package mapping

import "github.com/jacnel/fasst/directory"

// Mapper resolves a keyhash to the nodes responsible for it.
type Mapper interface {
	// DirectoryNode returns the machine id hosting the directory entry for
	// keyhash.
	DirectoryNode(keyhash uint64) uint32
	// PrimaryNode returns the machine id holding the authoritative record
	// for keyhash.
	PrimaryNode(keyhash uint64) uint32
	// BackupNodes returns the machine ids holding replicas of the record
	// for keyhash, in priority order.
	BackupNodes(keyhash uint64) [directory.MaxBackups]uint32
}

// Static is a fixed-membership reference Mapper: directory, primary and
// backup assignment are all derived by keyhash modulo the node count,
// matching pkg/scheduler/scheduler.go's own hand-rolled, no-dependency
// node-selection style (selectNode) rather than a consistent-hashing ring,
// since no entry in the example pack ships a consistent-hashing library.
type Static struct {
	nodes []uint32
}

// NewStatic builds a Static mapper over the given node ids. At least one
// node is required.
func NewStatic(nodes []uint32) *Static {
	cp := append([]uint32(nil), nodes...)
	return &Static{nodes: cp}
}

func (s *Static) node(keyhash uint64, offset int) uint32 {
	n := len(s.nodes)
	if n == 0 {
		return 0
	}
	idx := (int(keyhash) + offset) % n
	if idx < 0 {
		idx += n
	}
	return s.nodes[idx]
}

func (s *Static) DirectoryNode(keyhash uint64) uint32 {
	return s.node(keyhash, 0)
}

func (s *Static) PrimaryNode(keyhash uint64) uint32 {
	return s.node(keyhash, 0)
}

func (s *Static) BackupNodes(keyhash uint64) [directory.MaxBackups]uint32 {
	var backups [directory.MaxBackups]uint32
	for i := range backups {
		backups[i] = s.node(keyhash, i+1)
	}
	return backups
}
