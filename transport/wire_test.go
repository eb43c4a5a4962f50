package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheInvalidationRequestRoundTrip(t *testing.T) {
	in := CacheInvalidationRequest{
		CallerID: 42,
		ReqType:  Invalidate,
		Keyhash:  0x0123456789abcd, // within 62 bits
		Key:      0xdeadbeefcafef00d,
	}
	data, err := in.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, 24)

	var out CacheInvalidationRequest
	require.NoError(t, out.UnmarshalBinary(data))
	assert.Equal(t, in, out)
}

func TestDirectoryWireRequestRoundTrip(t *testing.T) {
	in := DirectoryWireRequest{
		ReqType:     DirReqAcquire,
		Keyhash:     0xfeedface,
		RequesterID: 7,
		Key:         99,
	}
	data, err := in.MarshalBinary()
	require.NoError(t, err)

	var out DirectoryWireRequest
	require.NoError(t, out.UnmarshalBinary(data))
	assert.Equal(t, in, out)
}

func TestUnmarshalRejectsShortBuffers(t *testing.T) {
	var req CacheInvalidationRequest
	assert.Error(t, req.UnmarshalBinary([]byte{1, 2, 3}))

	var dreq DirectoryWireRequest
	assert.Error(t, dreq.UnmarshalBinary(nil))
}
