package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/classcord/classcord-server/internal/auth"
	"github.com/classcord/classcord-server/internal/proto"
	"github.com/classcord/classcord-server/internal/store"
)

// fakePeer records every frame sent to it. Setting failSend makes Send return
// an error, simulating a dead connection.
type fakePeer struct {
	id string

	mu       sync.Mutex
	frames   []*proto.Frame
	failSend bool
	closed   int
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(frame *proto.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failSend {
		return errors.New("broken pipe")
	}
	cp := *frame
	p.frames = append(p.frames, &cp)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePeer) sent() []*proto.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*proto.Frame(nil), p.frames...)
}

func (p *fakePeer) sentOfType(kind string) []*proto.Frame {
	var out []*proto.Frame
	for _, f := range p.sent() {
		if f.Type == kind {
			out = append(out, f)
		}
	}
	return out
}

func (p *fakePeer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func mustFrame(t *testing.T, p *fakePeer, kind string) *proto.Frame {
	t.Helper()
	frames := p.sentOfType(kind)
	if len(frames) == 0 {
		t.Fatalf("peer %s: expected a %q frame, got %+v", p.id, kind, p.sent())
	}
	return frames[len(frames)-1]
}

// fakeStore is an in-memory store.Store for engine tests.
type fakeStore struct {
	mu        sync.Mutex
	users     map[string]*store.User
	msgs      []*store.Message
	nextID    int64
	listCalls int
	saveErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]*store.User)}
}

func (s *fakeStore) CreateUser(_ context.Context, username, passwordHash string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return nil, store.ErrUserExists
	}
	s.nextID++
	u := &store.User{
		ID:           s.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		State:        store.UserStateOffline,
		CreatedAt:    time.Now(),
	}
	s.users[username] = u
	cp := *u
	return &cp, nil
}

func (s *fakeStore) GetUserByUsername(_ context.Context, username string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) SetUserState(_ context.Context, username string, state store.UserState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	u.State = state
	u.LastSeen = time.Now()
	return nil
}

func (s *fakeStore) ListUsersByState(_ context.Context, state store.UserState) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, u := range s.users {
		if u.State == state {
			names = append(names, u.Username)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *fakeStore) SaveMessage(_ context.Context, msg *store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.nextID++
	msg.ID = s.nextID
	cp := *msg
	s.msgs = append(s.msgs, &cp)
	return nil
}

func (s *fakeStore) ListMessages(_ context.Context, channel string, limit int) ([]*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	var out []*store.Message
	for _, m := range s.msgs {
		if m.Channel == channel {
			cp := *m
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) state(t *testing.T, username string) store.UserState {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		t.Fatalf("user %s not in store", username)
	}
	return u.State
}

var _ store.Store = (*fakeStore)(nil)

type testEnv struct {
	engine *Engine
	reg    *Registry
	store  *fakeStore
}

func newTestEnv() *testEnv {
	logger := zerolog.Nop()
	st := newFakeStore()
	reg := NewRegistry()
	bcast := NewBroadcaster(reg, &logger)
	history := NewHistory(st, 50)
	engine := NewEngine(st, auth.NewService(st), reg, bcast, history, &logger)
	return &testEnv{engine: engine, reg: reg, store: st}
}

// connect registers a pre-auth peer, as the session handler would on accept.
func (env *testEnv) connect(id string) *fakePeer {
	p := newFakePeer(id)
	env.reg.Register(p, NewSession(fmt.Sprintf("127.0.0.1:%d", len(id)+40000)))
	return p
}

// loginAs registers the account and logs the peer in, failing the test if
// either step is rejected.
func (env *testEnv) loginAs(t *testing.T, p *fakePeer, username string) {
	t.Helper()
	ctx := context.Background()
	env.engine.Register(ctx, p, username, "secret")
	if f := mustFrame(t, p, proto.TypeRegister); f.Status != proto.StatusOK {
		t.Fatalf("register %s failed: %s", username, f.Message)
	}
	env.engine.Login(ctx, p, username, "secret")
	if f := mustFrame(t, p, proto.TypeLogin); f.Status != proto.StatusOK {
		t.Fatalf("login %s failed: %s", username, f.Message)
	}
}
