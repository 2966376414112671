package core

import (
	"github.com/rs/zerolog"

	"github.com/classcord/classcord-server/internal/proto"
)

// Broadcaster computes recipient sets from the registry and fans frames out.
// It snapshots the recipients under the registry lock and performs every send
// outside it, so one slow or dead peer never stalls registry access. A failed
// send is the only liveness signal available and is treated as authoritative:
// the peer is marked disconnected and its connection scheduled for close.
type Broadcaster struct {
	reg *Registry
	log *zerolog.Logger
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(reg *Registry, logger *zerolog.Logger) *Broadcaster {
	return &Broadcaster{reg: reg, log: logger}
}

// Broadcast delivers a frame to every connected, authenticated session in the
// origin's current channel, excluding the origin itself. If the origin is not
// registered anymore the frame is dropped.
func (b *Broadcaster) Broadcast(frame *proto.Frame, origin Peer) {
	sess, ok := b.reg.Get(origin)
	if !ok {
		return
	}
	b.deliver(frame, sess.Channel, origin)
}

// BroadcastTo delivers a frame to every connected, authenticated session in
// the named channel, excluding the given peer (which may be nil). An empty
// channel name addresses all channels.
func (b *Broadcaster) BroadcastTo(channel string, frame *proto.Frame, exclude Peer) {
	b.deliver(frame, channel, exclude)
}

func (b *Broadcaster) deliver(frame *proto.Frame, channel string, exclude Peer) {
	var failed []Peer
	for _, e := range b.reg.Snapshot() {
		if !e.Session.Connected || !e.Session.Authenticated() {
			continue
		}
		if e.Peer == exclude {
			continue
		}
		if channel != "" && e.Session.Channel != channel {
			continue
		}
		// Delivery is independent per recipient: a broken pipe here must not
		// abort the remaining sends.
		if err := e.Peer.Send(frame); err != nil {
			b.log.Warn().
				Err(err).
				Str("user", e.Session.Username).
				Str("channel", e.Session.Channel).
				Msg("broadcast send failed, evicting peer")
			failed = append(failed, e.Peer)
			continue
		}
		b.log.Debug().
			Str("type", frame.Type).
			Str("user", e.Session.Username).
			Str("channel", e.Session.Channel).
			Msg("frame delivered")
	}

	// Reconcile failures back into the registry after all sends are done.
	for _, p := range failed {
		b.reg.MarkDisconnected(p)
		_ = p.Close()
	}
}
