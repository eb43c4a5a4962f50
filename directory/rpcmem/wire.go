// Package rpcmem implements directory.RemoteMemory over a plain gRPC
// service, exercising google.golang.org/grpc without a generated protobuf
// package: the three RPCs are wired by hand as a grpc.ServiceDesc and a
// fixed-width binary grpc/encoding.Codec selected via grpc.ForceCodec,
// grounded on pkg/client/client.go's use of a grpc.ClientConn.
package rpcmem

import (
	"encoding/binary"
	"fmt"

	"github.com/jacnel/fasst/directory"
)

// wireMessage is implemented by every request/response type so the codec
// can marshal/unmarshal without reflection.
type wireMessage interface {
	encode() []byte
	decode([]byte) error
}

func encodeEntry(buf []byte, e directory.Entry) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], e.OwnerAccessors)
	buf = append(buf, tmp[:]...)
	var tmp4 [4]byte
	binary.BigEndian.PutUint32(tmp4[:], e.Primary)
	buf = append(buf, tmp4[:]...)
	for _, b := range e.Backups {
		binary.BigEndian.PutUint32(tmp4[:], b)
		buf = append(buf, tmp4[:]...)
	}
	return buf
}

func decodeEntry(data []byte) (directory.Entry, []byte, error) {
	const fixed = 8 + 4 + 4*directory.MaxBackups
	if len(data) < fixed {
		return directory.Entry{}, nil, fmt.Errorf("rpcmem: short entry: %d bytes", len(data))
	}
	var e directory.Entry
	e.OwnerAccessors = binary.BigEndian.Uint64(data[0:8])
	e.Primary = binary.BigEndian.Uint32(data[8:12])
	off := 12
	for i := range e.Backups {
		e.Backups[i] = binary.BigEndian.Uint32(data[off : off+4])
		off += 4
	}
	return e, data[fixed:], nil
}

// readRequest carries a Read(offset) call.
type readRequest struct {
	Offset uint64
}

func (r *readRequest) encode() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, r.Offset)
	return buf
}

func (r *readRequest) decode(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("rpcmem: short readRequest")
	}
	r.Offset = binary.BigEndian.Uint64(data)
	return nil
}

// entryResponse carries an Entry plus an error string ("" on success).
type entryResponse struct {
	Entry directory.Entry
	Err   string
}

func (r *entryResponse) encode() []byte {
	buf := encodeEntry(nil, r.Entry)
	buf = append(buf, []byte(r.Err)...)
	return buf
}

func (r *entryResponse) decode(data []byte) error {
	e, rest, err := decodeEntry(data)
	if err != nil {
		return err
	}
	r.Entry = e
	r.Err = string(rest)
	return nil
}

// casRequest carries a CAS(offset, expected, new) call.
type casRequest struct {
	Offset   uint64
	Expected directory.Entry
	New      directory.Entry
}

func (r *casRequest) encode() []byte {
	buf := make([]byte, 0, 8+2*(8+4+4*directory.MaxBackups))
	off := make([]byte, 8)
	binary.BigEndian.PutUint64(off, r.Offset)
	buf = append(buf, off...)
	buf = encodeEntry(buf, r.Expected)
	buf = encodeEntry(buf, r.New)
	return buf
}

func (r *casRequest) decode(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("rpcmem: short casRequest")
	}
	r.Offset = binary.BigEndian.Uint64(data[:8])
	rest := data[8:]
	exp, rest, err := decodeEntry(rest)
	if err != nil {
		return err
	}
	r.Expected = exp
	newEntry, _, err := decodeEntry(rest)
	if err != nil {
		return err
	}
	r.New = newEntry
	return nil
}

// casResponse reports whether the swap happened.
type casResponse struct {
	Swapped bool
	Err     string
}

func (r *casResponse) encode() []byte {
	b := byte(0)
	if r.Swapped {
		b = 1
	}
	return append([]byte{b}, []byte(r.Err)...)
}

func (r *casResponse) decode(data []byte) error {
	if len(data) < 1 {
		return fmt.Errorf("rpcmem: short casResponse")
	}
	r.Swapped = data[0] == 1
	r.Err = string(data[1:])
	return nil
}

// writeRequest carries a Write(offset, new) call.
type writeRequest struct {
	Offset uint64
	New    directory.Entry
}

func (r *writeRequest) encode() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, r.Offset)
	return encodeEntry(buf, r.New)
}

func (r *writeRequest) decode(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("rpcmem: short writeRequest")
	}
	r.Offset = binary.BigEndian.Uint64(data[:8])
	e, _, err := decodeEntry(data[8:])
	if err != nil {
		return err
	}
	r.New = e
	return nil
}

// emptyResponse carries only an error string, for Write's reply.
type emptyResponse struct {
	Err string
}

func (r *emptyResponse) encode() []byte {
	return []byte(r.Err)
}

func (r *emptyResponse) decode(data []byte) error {
	r.Err = string(data)
	return nil
}
