package domain

// Command is an inbound intent addressed to the coordinator.
// Every command names the connection it originates from; read-only queries
// coming from the HTTP surface use an empty ConnectionID.
type Command interface {
	Origin() ConnectionID
}

type RegisterCommand struct {
	Connection ConnectionID
	Phone      string
	Username   string
}

type LoginCommand struct {
	Connection ConnectionID
	Phone      string
}

type JoinCommand struct {
	Connection ConnectionID
	Username   string
}

type SendMessageCommand struct {
	Connection ConnectionID
	Body       string
}

// TypingCommand targets the global scope unless Room is set.
type TypingCommand struct {
	Connection ConnectionID
	IsTyping   bool
	Room       RoomID
}

type JoinPrivateChatCommand struct {
	Connection   ConnectionID
	PartnerPhone string
}

// SendPrivateMessageCommand is routed to the connection's room. When Room is
// set it must match that room.
type SendPrivateMessageCommand struct {
	Connection ConnectionID
	Body       string
	Room       RoomID
}

type LeavePrivateChatCommand struct {
	Connection ConnectionID
}

type DisconnectCommand struct {
	Connection ConnectionID
}

type SweepTypingCommand struct{}

type PageQuery struct {
	Page  int
	Limit int
}

type SearchQuery struct {
	Query string
}

type UsersQuery struct{}

func (c RegisterCommand) Origin() ConnectionID           { return c.Connection }
func (c LoginCommand) Origin() ConnectionID              { return c.Connection }
func (c JoinCommand) Origin() ConnectionID               { return c.Connection }
func (c SendMessageCommand) Origin() ConnectionID        { return c.Connection }
func (c TypingCommand) Origin() ConnectionID             { return c.Connection }
func (c JoinPrivateChatCommand) Origin() ConnectionID    { return c.Connection }
func (c SendPrivateMessageCommand) Origin() ConnectionID { return c.Connection }
func (c LeavePrivateChatCommand) Origin() ConnectionID   { return c.Connection }
func (c DisconnectCommand) Origin() ConnectionID         { return c.Connection }
func (SweepTypingCommand) Origin() ConnectionID          { return "" }
func (PageQuery) Origin() ConnectionID                   { return "" }
func (SearchQuery) Origin() ConnectionID                 { return "" }
func (UsersQuery) Origin() ConnectionID                  { return "" }
