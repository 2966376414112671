package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/classcord/classcord-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)
	require.Equal(t, "alice", created.Username)
	require.Equal(t, store.UserStateOffline, created.State)
	require.NotZero(t, created.ID)

	got, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, "hash", got.PasswordHash)

	_, err = s.GetUserByUsername(ctx, "nobody")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateUserDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, "alice", "other")
	require.ErrorIs(t, err, store.ErrUserExists)
}

func TestSetUserState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)

	require.NoError(t, s.SetUserState(ctx, "alice", store.UserStateOnline))

	got, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, store.UserStateOnline, got.State)

	require.ErrorIs(t, s.SetUserState(ctx, "nobody", store.UserStateOnline), store.ErrNotFound)
}

func TestListUsersByState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"carol", "alice", "bob"} {
		_, err := s.CreateUser(ctx, name, "hash")
		require.NoError(t, err)
	}
	require.NoError(t, s.SetUserState(ctx, "alice", store.UserStateOnline))
	require.NoError(t, s.SetUserState(ctx, "carol", store.UserStateOnline))

	online, err := s.ListUsersByState(ctx, store.UserStateOnline)
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "carol"}, online)

	offline, err := s.ListUsersByState(ctx, store.UserStateOffline)
	require.NoError(t, err)
	require.Equal(t, []string{"bob"}, offline)
}

func TestSaveAndListMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		msg := &store.Message{
			Sender:    "alice",
			Content:   fmt.Sprintf("general-%d", i),
			Channel:   "general",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, s.SaveMessage(ctx, msg))
		require.NotZero(t, msg.ID)
	}
	require.NoError(t, s.SaveMessage(ctx, &store.Message{
		Sender:    "bob",
		Content:   "dev-0",
		Channel:   "dev",
		CreatedAt: base,
	}))

	// Limit keeps the most recent entries, returned oldest first.
	msgs, err := s.ListMessages(ctx, "general", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "general-2", msgs[0].Content)
	require.Equal(t, "general-4", msgs[2].Content)

	dev, err := s.ListMessages(ctx, "dev", 10)
	require.NoError(t, err)
	require.Len(t, dev, 1)
	require.Equal(t, "bob", dev[0].Sender)

	empty, err := s.ListMessages(ctx, "ghost", 10)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestConcurrentCreateUserSingleWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const attempts = 8
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			_, err := s.CreateUser(ctx, "alice", "hash")
			errs <- err
		}()
	}

	var wins, dups int
	for i := 0; i < attempts; i++ {
		switch err := <-errs; {
		case err == nil:
			wins++
		default:
			require.ErrorIs(t, err, store.ErrUserExists)
			dups++
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, attempts-1, dups)
}
