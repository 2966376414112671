package core

// DefaultChannel is the channel every session starts in after login.
const DefaultChannel = "general"

// Session is the live association between a connection and its user state.
// Username is empty until login and is set at most once per connection.
type Session struct {
	Username   string
	Channel    string
	Connected  bool
	RemoteAddr string
}

// NewSession creates a pre-auth session in the default channel.
func NewSession(remoteAddr string) *Session {
	return &Session{
		Channel:    DefaultChannel,
		Connected:  true,
		RemoteAddr: remoteAddr,
	}
}

// Authenticated reports whether the session has completed login.
func (s *Session) Authenticated() bool {
	return s.Username != ""
}
