package core

import "sync"

// Entry pairs a peer with a copy of its session state.
type Entry struct {
	Peer    Peer
	Session Session
}

// Registry owns the mapping from live connections to sessions. It is the only
// shared mutable state in the system; every operation is atomic with respect
// to the others, and readers always get copies, never live references.
type Registry struct {
	mu       sync.Mutex
	sessions map[Peer]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[Peer]*Session),
	}
}

// Register inserts a session for the given peer, replacing any prior entry.
func (r *Registry) Register(p Peer, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[p] = s
}

// Update applies fn to the peer's session under the lock.
// Returns false if the peer is not registered. fn must not block.
func (r *Registry) Update(p Peer, fn func(*Session)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[p]
	if !ok {
		return false
	}
	fn(s)
	return true
}

// Get returns a copy of the peer's session.
func (r *Registry) Get(p Peer) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[p]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Remove pops the peer's session. Removing an absent peer is a no-op; the
// returned flag lets callers run teardown side effects exactly once.
func (r *Registry) Remove(p Peer) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[p]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, p)
	return *s, true
}

// MarkDisconnected flags the peer's session as no longer deliverable, keeping
// the entry in place for the handler's teardown to remove.
func (r *Registry) MarkDisconnected(p Peer) bool {
	return r.Update(p, func(s *Session) {
		s.Connected = false
	})
}

// Snapshot returns copies of all current sessions. No ordering guarantee.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]Entry, 0, len(r.sessions))
	for p, s := range r.sessions {
		entries = append(entries, Entry{Peer: p, Session: *s})
	}
	return entries
}

// FindByUsername returns the first connected session logged in under the
// given username, searching across all channels.
func (r *Registry) FindByUsername(username string) (Peer, Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for p, s := range r.sessions {
		if s.Connected && s.Username == username {
			return p, *s, true
		}
	}
	return nil, Session{}, false
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
