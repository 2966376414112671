package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/classcord/classcord-server/internal/store"
)

// memStore is a minimal in-memory UserStore for service tests.
type memStore struct {
	mu    sync.Mutex
	users map[string]*store.User
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*store.User)}
}

func (s *memStore) CreateUser(_ context.Context, username, passwordHash string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return nil, store.ErrUserExists
	}
	u := &store.User{
		ID:           int64(len(s.users) + 1),
		Username:     username,
		PasswordHash: passwordHash,
		State:        store.UserStateOffline,
		CreatedAt:    time.Now(),
	}
	s.users[username] = u
	cp := *u
	return &cp, nil
}

func (s *memStore) GetUserByUsername(_ context.Context, username string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) SetUserState(_ context.Context, username string, state store.UserState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	u.State = state
	return nil
}

func (s *memStore) ListUsersByState(_ context.Context, state store.UserState) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, u := range s.users {
		if u.State == state {
			names = append(names, u.Username)
		}
	}
	return names, nil
}

func TestRegisterAndLogin(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("unexpected username: %q", user.Username)
	}
	if user.PasswordHash == "secret" {
		t.Fatal("password must be stored hashed")
	}

	logged, err := svc.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.Username != "alice" {
		t.Fatalf("unexpected login result: %+v", logged)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "secret"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "secret"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "other"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"empty username", "", "secret", ErrInvalidUsername},
		{"whitespace username", "   ", "secret", ErrInvalidUsername},
		{"too long username", strings.Repeat("a", 33), "secret", ErrInvalidUsername},
		{"empty password", "alice", "", ErrInvalidPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tt.username, tt.password); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRegisterTrimsUsername(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()

	user, err := svc.Register(ctx, "  alice  ", "secret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("username should be trimmed, got %q", user.Username)
	}
}
