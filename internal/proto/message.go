package proto

// Frame is a single newline-delimited JSON record exchanged with a client.
// The protocol uses flat objects discriminated by Type; unused fields are
// omitted on the wire.
type Frame struct {
	Type      string `json:"type"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	Content   string `json:"content,omitempty"`
	Channel   string `json:"channel,omitempty"`
	State     string `json:"state,omitempty"`
	User      string `json:"user,omitempty"`
	From      string `json:"from,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`

	// Reply fields.
	Status  string   `json:"status,omitempty"`
	Message string   `json:"message,omitempty"`
	Users   []string `json:"users,omitempty"`

	// History reply on join_channel.
	Messages []ChatRecord `json:"messages,omitempty"`

	// Control-port fields.
	Target string `json:"target,omitempty"`
	Token  string `json:"token,omitempty"`
}

// ChatRecord is one persisted message as rendered in a history reply.
type ChatRecord struct {
	From      string `json:"from"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Channel   string `json:"channel"`
}

const (
	// Client commands.
	TypeRegister    = "register"
	TypeLogin       = "login"
	TypeMessage     = "message"
	TypeJoinChannel = "join_channel"
	TypeListUsers   = "list_users"
	TypeStatus      = "status"

	// Server notifications.
	TypeError    = "error"
	TypeSystem   = "system"
	TypeHistory  = "history"
	TypeKick     = "kick"
	TypeShutdown = "shutdown"

	// Control-port commands. list_users doubles as a control command; the
	// admin console issues it to refresh its view.
	TypeAuth          = "auth"
	TypeListClients   = "list_clients"
	TypeGetUsers      = "get_users"
	TypeKickUser      = "kick_user"
	TypeBroadcast     = "broadcast"
	TypeGlobalMessage = "global_message"

	StatusOK   = "ok"
	StatusFail = "fail"
)

// Error builds an error reply with the given message.
func Error(msg string) *Frame {
	return &Frame{Type: TypeError, Message: msg}
}

// Result builds an ok/fail reply for the given request type.
func Result(reqType string, ok bool, msg string) *Frame {
	status := StatusOK
	if !ok {
		status = StatusFail
	}
	return &Frame{Type: reqType, Status: status, Message: msg}
}
