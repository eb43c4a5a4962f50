package mapping

import (
	"testing"

	"github.com/jacnel/fasst/directory"
	"github.com/stretchr/testify/assert"
)

func TestStaticIsDeterministic(t *testing.T) {
	m := NewStatic([]uint32{10, 20, 30})
	for kh := uint64(0); kh < 16; kh++ {
		assert.Equal(t, m.PrimaryNode(kh), m.PrimaryNode(kh))
		assert.Equal(t, m.DirectoryNode(kh), m.DirectoryNode(kh))
		assert.Equal(t, m.BackupNodes(kh), m.BackupNodes(kh))
	}
}

func TestStaticBackupsDistinctFromPrimaryWhenPossible(t *testing.T) {
	m := NewStatic([]uint32{1, 2, 3})
	primary := m.PrimaryNode(5)
	backups := m.BackupNodes(5)
	for _, b := range backups {
		assert.NotEqual(t, primary, b, "with 3 nodes, backups must not duplicate the primary")
	}
}

func TestStaticSingleNodeDegradesGracefully(t *testing.T) {
	m := NewStatic([]uint32{7})
	assert.Equal(t, uint32(7), m.PrimaryNode(123))
	assert.Equal(t, uint32(7), m.DirectoryNode(123))
	var want [directory.MaxBackups]uint32
	for i := range want {
		want[i] = 7
	}
	assert.Equal(t, want, m.BackupNodes(123))
}
