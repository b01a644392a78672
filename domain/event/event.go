// Package event defines the notifications the coordinator emits.
// Each notification is addressed to one connection and is serialized on the
// wire as {"event": EventName(), "data": <payload>}.
package event

import (
	"chat-relay/domain"
	"encoding/json"
)

type DomainEvent interface {
	EventName() string
}

const (
	RegistrationSuccessName    = "registration_success"
	RegistrationErrorName      = "registration_error"
	LoginSuccessName           = "login_success"
	LoginErrorName             = "login_error"
	UserListName               = "user_list"
	UserJoinedName             = "user_joined"
	UserLeftName               = "user_left"
	ReceiveMessageName         = "receive_message"
	TypingUsersName            = "typing_users"
	PrivateChatJoinedName      = "private_chat_joined"
	PrivateChatErrorName       = "private_chat_error"
	PrivateMessageName         = "private_message"
	PrivateTypingUsersName     = "private_typing_users"
	PrivateChatLeftName        = "private_chat_left"
	PrivateChatPartnerLeftName = "private_chat_partner_left"
	ErrorName                  = "error"
)

type RegistrationSuccess struct {
	Phone    string `json:"phone"`
	Username string `json:"username"`
}

type LoginSuccess struct {
	Phone    string `json:"phone"`
	Username string `json:"username"`
}

// Failure carries the reason of a rejected request. Name selects which
// *_error event it is sent as.
type Failure struct {
	Name   string `json:"-"`
	Reason string `json:"reason"`
}

type UserList struct {
	Users []domain.OnlineUser
}

func (u UserList) MarshalJSON() ([]byte, error) {
	if u.Users == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(u.Users)
}

type UserJoined struct {
	Username string              `json:"username"`
	ID       domain.ConnectionID `json:"id"`
}

type UserLeft struct {
	Username string              `json:"username"`
	ID       domain.ConnectionID `json:"id"`
}

type ReceiveMessage struct {
	Message domain.Message
}

func (r ReceiveMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Message)
}

type TypingUsers struct {
	Usernames []string
}

func (t TypingUsers) MarshalJSON() ([]byte, error) {
	return marshalNames(t.Usernames)
}

type PrivateChatJoined struct {
	PartnerUsername string        `json:"partnerUsername"`
	RoomID          domain.RoomID `json:"roomId"`
}

type PrivateMessage struct {
	Message domain.Message
}

func (p PrivateMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Message)
}

type PrivateTypingUsers struct {
	RoomID    domain.RoomID
	Usernames []string
}

func (p PrivateTypingUsers) MarshalJSON() ([]byte, error) {
	return marshalNames(p.Usernames)
}

type PrivateChatLeft struct {
	RoomID domain.RoomID `json:"roomId"`
}

type PrivateChatPartnerLeft struct {
	RoomID   domain.RoomID `json:"roomId"`
	Username string        `json:"username"`
}

// MessagePosted is emitted to the permanent sinks (archive) for every
// stored global message. It never reaches a connection.
type MessagePosted struct {
	Message domain.Message
}

func (RegistrationSuccess) EventName() string    { return RegistrationSuccessName }
func (LoginSuccess) EventName() string           { return LoginSuccessName }
func (f Failure) EventName() string              { return f.Name }
func (UserList) EventName() string               { return UserListName }
func (UserJoined) EventName() string             { return UserJoinedName }
func (UserLeft) EventName() string               { return UserLeftName }
func (ReceiveMessage) EventName() string         { return ReceiveMessageName }
func (TypingUsers) EventName() string            { return TypingUsersName }
func (PrivateChatJoined) EventName() string      { return PrivateChatJoinedName }
func (PrivateMessage) EventName() string         { return PrivateMessageName }
func (PrivateTypingUsers) EventName() string     { return PrivateTypingUsersName }
func (PrivateChatLeft) EventName() string        { return PrivateChatLeftName }
func (PrivateChatPartnerLeft) EventName() string { return PrivateChatPartnerLeftName }
func (MessagePosted) EventName() string          { return "message_posted" }

func marshalNames(names []string) ([]byte, error) {
	if names == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(names)
}

// Envelope is the wire frame shared by inbound and outbound events.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode wraps a notification in its wire envelope.
func Encode(e DomainEvent) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: e.EventName(), Data: data})
}
