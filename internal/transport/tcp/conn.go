package tcp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/classcord/classcord-server/internal/proto"
)

// Conn adapts a net.Conn to core.Peer with newline-delimited JSON framing.
// Sends are serialized under a mutex so interleaved broadcasts cannot corrupt
// frames and a single sender's messages reach a peer in order.
type Conn struct {
	id string
	nc net.Conn

	mu sync.Mutex
	w  *bufio.Writer

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an accepted connection.
func NewConn(nc net.Conn) *Conn {
	return &Conn{
		id: uuid.NewString(),
		nc: nc,
		w:  bufio.NewWriter(nc),
	}
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string {
	return c.id
}

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() string {
	return c.nc.RemoteAddr().String()
}

// Send writes one frame followed by a newline and flushes.
func (c *Conn) Send(frame *proto.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("flush frame: %w", err)
	}
	return nil
}

// Close closes the underlying connection. Safe to call multiple times.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}
