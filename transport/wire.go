// Package transport models the RPC collaborator the driver consumes (§6):
// request/response batching, the wire formats for cache invalidation and
// directory requests, and a Loopback reference implementation that stands
// in for the out-of-scope transport, coroutine-yield mechanism and
// server-side datastore so the transaction driver can be exercised
// end-to-end.
package transport

import (
	"encoding/binary"
	"fmt"
)

// CacheReqType is the 2-bit request-type tag packed into a cache
// invalidation request's keyhash word.
type CacheReqType uint8

const (
	Invalidate CacheReqType = iota
	ReadAndInval
)

// CacheInvalidationRequest is the 24-byte, 8-byte-aligned wire format from
// §6: `uint32 unused; uint32 caller_id; uint64 packed; uint64 key`, where
// packed holds a 2-bit request type and a 62-bit keyhash.
type CacheInvalidationRequest struct {
	CallerID uint32
	ReqType  CacheReqType
	Keyhash  uint64 // 62 significant bits
	Key      uint64
}

// MarshalBinary encodes the request into its 24-byte wire form.
func (r CacheInvalidationRequest) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint32(buf[0:4], 0) // unused
	binary.LittleEndian.PutUint32(buf[4:8], r.CallerID)
	packed := (uint64(r.ReqType) & 0x3) | (r.Keyhash&0x3fffffffffffffff)<<2
	binary.LittleEndian.PutUint64(buf[8:16], packed)
	binary.LittleEndian.PutUint64(buf[16:24], r.Key)
	return buf, nil
}

// UnmarshalBinary decodes a 24-byte wire form into r.
func (r *CacheInvalidationRequest) UnmarshalBinary(data []byte) error {
	if len(data) < 24 {
		return errShort("CacheInvalidationRequest", 24, len(data))
	}
	r.CallerID = binary.LittleEndian.Uint32(data[4:8])
	packed := binary.LittleEndian.Uint64(data[8:16])
	r.ReqType = CacheReqType(packed & 0x3)
	r.Keyhash = packed >> 2
	r.Key = binary.LittleEndian.Uint64(data[16:24])
	return nil
}

// DirRespType is the directory RPC's response-type code (§6).
type DirRespType uint16

const (
	DirRespSuccess DirRespType = 3
	DirRespFail    DirRespType = 4
)

// DirReqType is the directory RPC's request-type code (§6).
type DirReqType uint16

const (
	DirReqInvalidate DirReqType = 7
	DirReqAcquire    DirReqType = 8
)

// DirectoryWireRequest is the directory request struct from §6: explicit
// 2-byte req_type, 8-byte keyhash, 4-byte requester id, 8-byte key.
type DirectoryWireRequest struct {
	ReqType     DirReqType
	Keyhash     uint64
	RequesterID uint32
	Key         uint64
}

// MarshalBinary encodes the request into its wire form.
func (r DirectoryWireRequest) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 22)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(r.ReqType))
	binary.LittleEndian.PutUint64(buf[2:10], r.Keyhash)
	binary.LittleEndian.PutUint32(buf[10:14], r.RequesterID)
	binary.LittleEndian.PutUint64(buf[14:22], r.Key)
	return buf, nil
}

// UnmarshalBinary decodes a wire form into r.
func (r *DirectoryWireRequest) UnmarshalBinary(data []byte) error {
	if len(data) < 22 {
		return errShort("DirectoryWireRequest", 22, len(data))
	}
	r.ReqType = DirReqType(binary.LittleEndian.Uint16(data[0:2]))
	r.Keyhash = binary.LittleEndian.Uint64(data[2:10])
	r.RequesterID = binary.LittleEndian.Uint32(data[10:14])
	r.Key = binary.LittleEndian.Uint64(data[14:22])
	return nil
}

func errShort(what string, want, got int) error {
	return fmt.Errorf("transport: %s: need %d bytes, got %d", what, want, got)
}
