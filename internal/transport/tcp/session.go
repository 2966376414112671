package tcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"

	"github.com/classcord/classcord-server/internal/core"
	"github.com/classcord/classcord-server/internal/proto"
)

const (
	initialScanBuffer = 64 * 1024
	maxFrameSize      = 256 * 1024
)

// handle is the session handler: it owns the connection for its lifetime,
// decodes inbound frames, dispatches them synchronously to the presence
// engine, and runs the teardown sequence exactly once on the way out.
func (s *Server) handle(ctx context.Context, nc net.Conn) {
	conn := NewConn(nc)
	s.reg.Register(conn, core.NewSession(conn.RemoteAddr()))
	s.log.Info().Str("conn_id", conn.ID()).Str("remote", conn.RemoteAddr()).Msg("client connected")

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("conn_id", conn.ID()).Msg("session handler fault")
		}
		// Teardown must run even when the server context is already
		// cancelled, so it gets a fresh context.
		s.engine.Disconnect(context.Background(), conn)
		s.log.Info().Str("conn_id", conn.ID()).Msg("client disconnected")
	}()

	scanner := bufio.NewScanner(nc)
	scanner.Buffer(make([]byte, 0, initialScanBuffer), maxFrameSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var frame proto.Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			// Malformed frames are not fatal to the session.
			s.log.Warn().Err(err).Str("conn_id", conn.ID()).Msg("malformed frame")
			if sendErr := conn.Send(proto.Error("malformed JSON message")); sendErr != nil {
				return
			}
			continue
		}

		s.dispatch(ctx, conn, &frame)
	}

	if err := scanner.Err(); err != nil {
		s.log.Warn().Err(err).Str("conn_id", conn.ID()).Msg("connection read error")
	}
}

// dispatch routes one decoded frame to the presence engine. The engine
// enforces the pre-auth/authenticated state machine and replies with
// structured errors; unknown types get an error reply here.
func (s *Server) dispatch(ctx context.Context, conn *Conn, frame *proto.Frame) {
	switch frame.Type {
	case proto.TypeRegister:
		s.engine.Register(ctx, conn, frame.Username, frame.Password)
	case proto.TypeLogin:
		s.engine.Login(ctx, conn, frame.Username, frame.Password)
	case proto.TypeMessage:
		s.engine.Message(ctx, conn, frame.Content)
	case proto.TypeJoinChannel:
		s.engine.JoinChannel(ctx, conn, frame.Channel)
	case proto.TypeListUsers:
		s.engine.ListUsers(ctx, conn)
	case proto.TypeStatus:
		s.engine.SetStatus(ctx, conn, frame.State)
	default:
		if err := conn.Send(proto.Error("unknown message type: " + frame.Type)); err != nil {
			s.log.Warn().Err(err).Str("conn_id", conn.ID()).Msg("error reply failed")
		}
	}
}
