package store

import (
	"context"
	"errors"
	"time"
)

// UserState is the persisted presence state of a user.
type UserState string

const (
	UserStateOnline  UserState = "online"
	UserStateOffline UserState = "offline"
)

var (
	// ErrUserExists is returned when creating a user whose name is taken.
	ErrUserExists = errors.New("user already exists")
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
)

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	State        UserState
	LastSeen     time.Time
	CreatedAt    time.Time
}

// Message represents a persisted chat message.
type Message struct {
	ID        int64
	Sender    string
	Content   string
	Channel   string
	CreatedAt time.Time
}

// UserStore handles account persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password, state offline.
	// Returns ErrUserExists if the username is taken; uniqueness is enforced
	// by the store, so concurrent creates resolve to exactly one winner.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByUsername retrieves a user by username. Returns ErrNotFound
	// if no such user exists.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SetUserState updates a user's presence state and bumps last_seen.
	SetUserState(ctx context.Context, username string, state UserState) error

	// ListUsersByState lists usernames currently in the given state.
	ListUsersByState(ctx context.Context, state UserState) ([]string, error)
}

// MessageStore handles the append-only message log.
type MessageStore interface {
	// SaveMessage appends a message to the log and fills in its ID.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages returns the most recent messages for a channel in
	// chronological order, at most limit entries.
	ListMessages(ctx context.Context, channel string, limit int) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
