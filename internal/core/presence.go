package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/classcord/classcord-server/internal/auth"
	"github.com/classcord/classcord-server/internal/proto"
	"github.com/classcord/classcord-server/internal/store"
)

// Engine implements the per-connection presence state machine
// (pre-auth -> authenticated -> terminated) and the channel operations.
// It owns every transition's side effects: credential store updates, registry
// mutations, and the status/system broadcasts they trigger.
//
// Policy decisions the protocol leaves open: a sender never receives its own
// message back, and a username may hold only one connected session at a time
// (a second login is rejected).
type Engine struct {
	users    store.UserStore
	messages store.MessageStore
	auth     *auth.Service
	reg      *Registry
	bcast    *Broadcaster
	history  *History
	log      *zerolog.Logger
}

// NewEngine wires the presence engine with its collaborators.
func NewEngine(st store.Store, authSvc *auth.Service, reg *Registry, bcast *Broadcaster, history *History, logger *zerolog.Logger) *Engine {
	return &Engine{
		users:    st,
		messages: st,
		auth:     authSvc,
		reg:      reg,
		bcast:    bcast,
		history:  history,
		log:      logger,
	}
}

// Register handles an account creation request from a pre-auth connection.
func (e *Engine) Register(ctx context.Context, p Peer, username, password string) {
	_, err := e.auth.Register(ctx, username, password)
	switch {
	case err == nil:
		e.log.Info().Str("user", username).Msg("user registered")
		e.send(p, proto.Result(proto.TypeRegister, true, ""))
	case errors.Is(err, auth.ErrUserExists):
		e.send(p, proto.Result(proto.TypeRegister, false, "username already exists"))
	case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidPassword):
		e.send(p, proto.Result(proto.TypeRegister, false, err.Error()))
	default:
		e.log.Error().Err(err).Str("user", username).Msg("register failed")
		e.send(p, proto.Result(proto.TypeRegister, false, "internal error"))
	}
}

// Login authenticates the connection and, on success, transitions the session
// to the authenticated state in the default channel. The caller gets a direct
// reply plus the current online-user list; other members of the channel see a
// status broadcast and a join notice.
func (e *Engine) Login(ctx context.Context, p Peer, username, password string) {
	sess, ok := e.reg.Get(p)
	if !ok {
		e.send(p, proto.Result(proto.TypeLogin, false, "connection closed"))
		return
	}
	if sess.Authenticated() {
		e.send(p, proto.Result(proto.TypeLogin, false, "already logged in"))
		return
	}

	user, err := e.auth.Login(ctx, username, password)
	if err != nil {
		e.send(p, proto.Result(proto.TypeLogin, false, "login failed"))
		return
	}

	// One connected session per user: the second login loses.
	if _, _, taken := e.reg.FindByUsername(user.Username); taken {
		e.send(p, proto.Result(proto.TypeLogin, false, "user already connected"))
		return
	}

	if !e.reg.Update(p, func(s *Session) {
		s.Username = user.Username
		s.Channel = DefaultChannel
	}) {
		e.send(p, proto.Result(proto.TypeLogin, false, "connection closed"))
		return
	}

	if err := e.users.SetUserState(ctx, user.Username, store.UserStateOnline); err != nil {
		e.log.Error().Err(err).Str("user", user.Username).Msg("failed to set user online")
	}

	e.log.Info().Str("user", user.Username).Msg("user logged in")
	e.send(p, proto.Result(proto.TypeLogin, true, ""))

	e.bcast.Broadcast(&proto.Frame{
		Type:  proto.TypeStatus,
		User:  user.Username,
		State: string(store.UserStateOnline),
	}, p)

	e.sendOnlineUsers(ctx, p)

	e.bcast.Broadcast(&proto.Frame{
		Type:      proto.TypeSystem,
		Content:   fmt.Sprintf("%s joined #%s", user.Username, DefaultChannel),
		Timestamp: now(),
		Channel:   DefaultChannel,
	}, p)
}

// Message stamps, persists, and fans out a chat message from an
// authenticated connection. Empty content is dropped with a log entry only.
func (e *Engine) Message(ctx context.Context, p Peer, content string) {
	sess, ok := e.authenticated(p)
	if !ok {
		return
	}

	if content == "" {
		e.log.Debug().Str("user", sess.Username).Msg("dropping empty message")
		return
	}

	ts := time.Now()
	msg := &store.Message{
		Sender:    sess.Username,
		Content:   content,
		Channel:   sess.Channel,
		CreatedAt: ts,
	}
	if err := e.messages.SaveMessage(ctx, msg); err != nil {
		// The relay still delivers; persistence failure loses history only.
		e.log.Error().Err(err).Str("user", sess.Username).Msg("failed to persist message")
	}

	rec := proto.ChatRecord{
		From:      sess.Username,
		Content:   content,
		Timestamp: ts.Format(time.RFC3339),
		Channel:   sess.Channel,
	}
	e.history.Append(sess.Channel, rec)

	e.bcast.Broadcast(&proto.Frame{
		Type:      proto.TypeMessage,
		From:      rec.From,
		Content:   rec.Content,
		Timestamp: rec.Timestamp,
		Channel:   rec.Channel,
	}, p)
}

// JoinChannel moves the session into another channel. Members of the new
// channel see a join notice; the old channel gets none. The caller receives
// the channel's recent history.
func (e *Engine) JoinChannel(ctx context.Context, p Peer, channel string) {
	sess, ok := e.authenticated(p)
	if !ok {
		return
	}
	if channel == "" {
		channel = DefaultChannel
	}

	if !e.reg.Update(p, func(s *Session) {
		s.Channel = channel
	}) {
		return
	}

	e.log.Info().Str("user", sess.Username).Str("channel", channel).Msg("user joined channel")

	e.bcast.Broadcast(&proto.Frame{
		Type:      proto.TypeSystem,
		Content:   fmt.Sprintf("%s joined #%s", sess.Username, channel),
		Timestamp: now(),
		Channel:   channel,
	}, p)

	records, err := e.history.Recent(ctx, channel)
	if err != nil {
		e.log.Error().Err(err).Str("channel", channel).Msg("failed to load channel history")
		return
	}
	e.send(p, &proto.Frame{
		Type:     proto.TypeHistory,
		Channel:  channel,
		Messages: records,
	})
}

// ListUsers replies with the usernames currently online. Available before
// login so a client can show who is around on its connect screen.
func (e *Engine) ListUsers(ctx context.Context, p Peer) {
	e.sendOnlineUsers(ctx, p)
}

// SetStatus persists a user-driven state change and broadcasts it to the
// session's channel.
func (e *Engine) SetStatus(ctx context.Context, p Peer, state string) {
	sess, ok := e.authenticated(p)
	if !ok {
		return
	}
	if state == "" {
		e.send(p, proto.Error("missing state"))
		return
	}

	if err := e.users.SetUserState(ctx, sess.Username, store.UserState(state)); err != nil {
		e.log.Error().Err(err).Str("user", sess.Username).Msg("failed to update user state")
		e.send(p, proto.Error("failed to update state"))
		return
	}

	e.bcast.Broadcast(&proto.Frame{
		Type:  proto.TypeStatus,
		User:  sess.Username,
		State: state,
	}, p)
}

// Disconnect runs the termination sequence for a connection: persist offline
// state, notify the channel, drop the registry entry, and close the peer.
// It is idempotent; only the call that actually removes the session performs
// the side effects, however the connection ended (error, client close, kick).
func (e *Engine) Disconnect(ctx context.Context, p Peer) {
	sess, ok := e.reg.Remove(p)
	if !ok {
		return
	}
	defer func() { _ = p.Close() }()

	if !sess.Authenticated() {
		e.log.Debug().Str("remote", sess.RemoteAddr).Msg("pre-auth connection closed")
		return
	}

	if err := e.users.SetUserState(ctx, sess.Username, store.UserStateOffline); err != nil {
		e.log.Error().Err(err).Str("user", sess.Username).Msg("failed to set user offline")
	}

	e.bcast.BroadcastTo(sess.Channel, &proto.Frame{
		Type:  proto.TypeStatus,
		User:  sess.Username,
		State: string(store.UserStateOffline),
	}, p)

	e.bcast.BroadcastTo(sess.Channel, &proto.Frame{
		Type:      proto.TypeSystem,
		Content:   fmt.Sprintf("%s left the chat", sess.Username),
		Timestamp: now(),
		Channel:   sess.Channel,
	}, p)

	e.log.Info().Str("user", sess.Username).Msg("user disconnected")
}

// Kick forcefully terminates the first connected session found for the given
// username, across all channels. Returns false if the user is not connected.
func (e *Engine) Kick(ctx context.Context, username string) bool {
	p, _, ok := e.reg.FindByUsername(username)
	if !ok {
		return false
	}

	// Best effort: the target may already be gone.
	_ = p.Send(&proto.Frame{
		Type:    proto.TypeKick,
		Message: "disconnected by the administrator",
	})

	e.log.Warn().Str("user", username).Msg("user kicked by administrator")
	e.Disconnect(ctx, p)
	return true
}

// authenticated fetches the session and rejects unauthenticated callers with
// a structured error reply.
func (e *Engine) authenticated(p Peer) (Session, bool) {
	sess, ok := e.reg.Get(p)
	if !ok || !sess.Authenticated() {
		e.send(p, proto.Error("not authenticated"))
		return Session{}, false
	}
	return sess, true
}

func (e *Engine) sendOnlineUsers(ctx context.Context, p Peer) {
	users, err := e.users.ListUsersByState(ctx, store.UserStateOnline)
	if err != nil {
		e.log.Error().Err(err).Msg("failed to list online users")
		e.send(p, proto.Error("failed to list users"))
		return
	}
	e.send(p, &proto.Frame{Type: proto.TypeListUsers, Users: users})
}

func (e *Engine) send(p Peer, frame *proto.Frame) {
	if err := p.Send(frame); err != nil {
		e.log.Warn().Err(err).Str("type", frame.Type).Msg("reply send failed")
	}
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
