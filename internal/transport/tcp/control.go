package tcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/classcord/classcord-server/internal/auth"
	"github.com/classcord/classcord-server/internal/core"
	"github.com/classcord/classcord-server/internal/proto"
)

// ControlServer is the privileged command path on a separate port. Every
// accepted connection may list clients, kick users, send global alerts, or
// shut the server down. When an admin secret is configured the first frame
// must be a valid auth token.
type ControlServer struct {
	addr     string
	engine   *core.Engine
	reg      *core.Registry
	bcast    *core.Broadcaster
	tokens   *auth.AdminTokenConfig
	shutdown func()
	log      *zerolog.Logger
	ln       net.Listener
}

// NewControlServer builds the control listener. shutdown is invoked for the
// shutdown command and is expected not to return.
func NewControlServer(addr string, engine *core.Engine, reg *core.Registry, bcast *core.Broadcaster, tokens *auth.AdminTokenConfig, shutdown func(), logger *zerolog.Logger) *ControlServer {
	return &ControlServer{
		addr:     addr,
		engine:   engine,
		reg:      reg,
		bcast:    bcast,
		tokens:   tokens,
		shutdown: shutdown,
		log:      logger,
	}
}

// Listen binds the control listener. Must be called before Serve.
func (s *ControlServer) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen control %s: %w", s.addr, err)
	}
	s.ln = ln
	s.log.Info().Str("addr", ln.Addr().String()).Msg("control listener started")
	return nil
}

// Addr returns the bound control address.
func (s *ControlServer) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts control connections until the context is cancelled.
func (s *ControlServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error().Err(err).Msg("control accept error")
			continue
		}
		go s.handle(ctx, conn)
	}
}

func (s *ControlServer) handle(ctx context.Context, nc net.Conn) {
	conn := NewConn(nc)
	defer func() { _ = conn.Close() }()

	s.log.Info().Str("remote", conn.RemoteAddr()).Msg("admin connected")
	defer s.log.Info().Str("remote", conn.RemoteAddr()).Msg("admin disconnected")

	authed := !s.tokens.Enabled()

	scanner := bufio.NewScanner(nc)
	scanner.Buffer(make([]byte, 0, initialScanBuffer), maxFrameSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var frame proto.Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			if sendErr := conn.Send(proto.Error("malformed JSON message")); sendErr != nil {
				return
			}
			continue
		}

		if !authed {
			if frame.Type != proto.TypeAuth {
				if err := conn.Send(proto.Error("authentication required")); err != nil {
					return
				}
				continue
			}
			if _, err := auth.ValidateAdminToken(s.tokens, frame.Token); err != nil {
				s.log.Warn().Err(err).Str("remote", conn.RemoteAddr()).Msg("admin auth failed")
				if sendErr := conn.Send(proto.Result(proto.TypeAuth, false, "invalid token")); sendErr != nil {
					return
				}
				continue
			}
			authed = true
			if err := conn.Send(proto.Result(proto.TypeAuth, true, "")); err != nil {
				return
			}
			continue
		}

		if err := s.command(ctx, conn, &frame); err != nil {
			return
		}
	}
}

// command executes one admin command and writes its reply. A non-nil error
// means the connection is unusable and the loop should exit.
func (s *ControlServer) command(ctx context.Context, conn *Conn, frame *proto.Frame) error {
	switch frame.Type {
	case proto.TypeListClients, proto.TypeGetUsers, proto.TypeListUsers:
		return conn.Send(&proto.Frame{Type: proto.TypeListUsers, Users: s.connectedUsers()})

	case proto.TypeKick, proto.TypeKickUser:
		target := frame.Target
		if target == "" {
			target = frame.Username
		}
		if target == "" {
			return conn.Send(proto.Error("missing kick target"))
		}
		if !s.engine.Kick(ctx, target) {
			return conn.Send(proto.Error("user not connected"))
		}
		return conn.Send(proto.Result(proto.TypeKick, true, ""))

	case proto.TypeBroadcast, proto.TypeGlobalMessage:
		if frame.Content == "" {
			return conn.Send(proto.Error("missing broadcast content"))
		}
		s.log.Info().Str("remote", conn.RemoteAddr()).Msg("admin global broadcast")
		s.bcast.BroadcastTo("", &proto.Frame{
			Type:      proto.TypeSystem,
			Content:   frame.Content,
			Timestamp: time.Now().Format(time.RFC3339),
		}, nil)
		return conn.Send(proto.Result(proto.TypeBroadcast, true, ""))

	case proto.TypeShutdown:
		s.log.Warn().Str("remote", conn.RemoteAddr()).Msg("shutdown requested by administrator")
		// Best effort notice; no drain is attempted.
		s.bcast.BroadcastTo("", &proto.Frame{
			Type:    proto.TypeShutdown,
			Message: "server shutting down",
		}, nil)
		_ = conn.Send(proto.Result(proto.TypeShutdown, true, ""))
		s.shutdown()
		return nil

	default:
		return conn.Send(proto.Error("unknown command: " + frame.Type))
	}
}

// connectedUsers returns the usernames of live authenticated sessions.
func (s *ControlServer) connectedUsers() []string {
	var users []string
	for _, e := range s.reg.Snapshot() {
		if e.Session.Connected && e.Session.Authenticated() {
			users = append(users, e.Session.Username)
		}
	}
	sort.Strings(users)
	return users
}
