package rpcmem

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/jacnel/fasst/directory"
)

// Client implements directory.RemoteMemory by invoking the hand-declared
// Read/CAS/Write RPCs over conn, grounded on pkg/client/client.go's pattern
// of a thin wrapper around a single *grpc.ClientConn.
type Client struct {
	conn *grpc.ClientConn
}

// Dial opens a connection to a directory rpcmem server at addr.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("rpcmem: dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out wireMessage) error {
	fullMethod := fmt.Sprintf("/%s/%s", serviceName, method)
	return c.conn.Invoke(ctx, fullMethod, in, out, grpc.ForceCodec(binaryCodec{}))
}

// Read implements directory.RemoteMemory.
func (c *Client) Read(ctx context.Context, offset uint64) (directory.Entry, error) {
	out := new(entryResponse)
	if err := c.invoke(ctx, "Read", &readRequest{Offset: offset}, out); err != nil {
		return directory.Entry{}, err
	}
	if out.Err != "" {
		return directory.Entry{}, fmt.Errorf("rpcmem: %s", out.Err)
	}
	return out.Entry, nil
}

// CAS implements directory.RemoteMemory.
func (c *Client) CAS(ctx context.Context, offset uint64, expected, newEntry directory.Entry) (bool, error) {
	out := new(casResponse)
	req := &casRequest{Offset: offset, Expected: expected, New: newEntry}
	if err := c.invoke(ctx, "CAS", req, out); err != nil {
		return false, err
	}
	if out.Err != "" {
		return false, fmt.Errorf("rpcmem: %s", out.Err)
	}
	return out.Swapped, nil
}

// Write implements directory.RemoteMemory.
func (c *Client) Write(ctx context.Context, offset uint64, newEntry directory.Entry) error {
	out := new(emptyResponse)
	req := &writeRequest{Offset: offset, New: newEntry}
	if err := c.invoke(ctx, "Write", req, out); err != nil {
		return err
	}
	if out.Err != "" {
		return fmt.Errorf("rpcmem: %s", out.Err)
	}
	return nil
}
