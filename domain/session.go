package domain

import "github.com/google/uuid"

// ConnectionID is the opaque identifier of one transport connection.
type ConnectionID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

// Session is the live binding of a connection to an identity.
// InGlobal is set once the connection announced itself with user_join.
type Session struct {
	ConnectionID ConnectionID
	IdentityKey  string
	DisplayName  string
	InGlobal     bool
}

// OnlineUser is one entry of the presence snapshot.
type OnlineUser struct {
	ID       ConnectionID `json:"id"`
	Username string       `json:"username"`
}
