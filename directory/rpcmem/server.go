package rpcmem

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/jacnel/fasst/directory"
	"github.com/jacnel/fasst/internal/logging"
)

func init() {
	encoding.RegisterCodec(binaryCodec{})
}

// serviceName is the gRPC service name registered on the server and dialed
// by the client.
const serviceName = "fasst.directory.RemoteMemory"

// Server answers Read/CAS/Write against a fixed-size entry table, one
// sync.Mutex per entry — the server-side mutex per entry slot called for
// by Design Notes §9 for a TCP/RPC directory transport.
type Server struct {
	locks   []sync.Mutex
	entries []directory.Entry
}

// NewServer builds a directory RPC server with numEntries slots.
func NewServer(numEntries uint64) *Server {
	return &Server{
		locks:   make([]sync.Mutex, numEntries),
		entries: make([]directory.Entry, numEntries),
	}
}

// Register attaches the hand-declared service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
	logging.WithComponent("rpcmem").Debug().Msg("registered directory remote-memory service")
}

func (s *Server) read(offset uint64) directory.Entry {
	s.locks[offset].Lock()
	defer s.locks[offset].Unlock()
	return s.entries[offset]
}

func (s *Server) cas(offset uint64, expected, newEntry directory.Entry) bool {
	s.locks[offset].Lock()
	defer s.locks[offset].Unlock()
	if s.entries[offset] != expected {
		return false
	}
	s.entries[offset] = newEntry
	return true
}

func (s *Server) write(offset uint64, newEntry directory.Entry) {
	s.locks[offset].Lock()
	defer s.locks[offset].Unlock()
	s.entries[offset] = newEntry
}

func readHandler(srv interface{}, _ context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	s := srv.(*Server)
	in := new(readRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	return &entryResponse{Entry: s.read(in.Offset)}, nil
}

func casHandler(srv interface{}, _ context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	s := srv.(*Server)
	in := new(casRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	swapped := s.cas(in.Offset, in.Expected, in.New)
	return &casResponse{Swapped: swapped}, nil
}

func writeHandler(srv interface{}, _ context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	s := srv.(*Server)
	in := new(writeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	s.write(in.Offset, in.New)
	return &emptyResponse{}, nil
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Read", Handler: readHandler},
		{MethodName: "CAS", Handler: casHandler},
		{MethodName: "Write", Handler: writeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "directory/rpcmem/wire.go",
}
