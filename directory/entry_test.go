package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetOwnedProducesOwnerAndMachineBit(t *testing.T) {
	e := Entry{OwnerAccessors: SetOwned(5)}
	assert.True(t, IsOwned(e))
	assert.True(t, IsOwner(e, 5))
	assert.False(t, IsOwner(e, 6), "P2: at most one machine id may own an entry")
}

func TestAccessorSetRoundTrip(t *testing.T) {
	e := Entry{}
	e.OwnerAccessors = AddAccessor(e, 2)
	e.OwnerAccessors = AddAccessor(e, 9)

	assert.False(t, IsOwned(e))
	assert.True(t, IsAccessor(e, 2))
	assert.True(t, IsAccessor(e, 9))
	assert.False(t, IsAccessor(e, 3))
	assert.ElementsMatch(t, []uint32{2, 9}, Accessors(e))
}

func TestOwnedEntryHasNoAccessors(t *testing.T) {
	e := Entry{OwnerAccessors: SetOwned(1)}
	assert.Nil(t, Accessors(e), "an owned entry exposes no accessor set")
	assert.False(t, IsAccessor(e, 1), "the owner bit suppresses accessor semantics")
}
