package core

import "github.com/classcord/classcord-server/internal/proto"

// Peer is the write side of a live client connection as seen by the core
// layer. Implementations must serialize concurrent Sends so that one sender's
// frames arrive at a fixed peer in order, and must make Close safe to call
// more than once.
type Peer interface {
	ID() string
	Send(frame *proto.Frame) error
	Close() error
}
