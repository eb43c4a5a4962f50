package rpcmem

import "fmt"

// codecName is registered with grpc's encoding package and selected per-call
// via grpc.ForceCodec, so no protobuf-generated types are required.
const codecName = "fasst-directory-binary"

// binaryCodec implements google.golang.org/grpc/encoding.Codec directly
// against the wireMessage types in wire.go.
type binaryCodec struct{}

func (binaryCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("rpcmem: %T does not implement wireMessage", v)
	}
	return m.encode(), nil
}

func (binaryCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("rpcmem: %T does not implement wireMessage", v)
	}
	return m.decode(data)
}

func (binaryCodec) Name() string {
	return codecName
}
