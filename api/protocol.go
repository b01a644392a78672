package api

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Inbound event names.
const (
	RegisterEvent           = "register"
	LoginEvent              = "login"
	UserJoinEvent           = "user_join"
	SendMessageEvent        = "send_message"
	TypingEvent             = "typing"
	JoinPrivateChatEvent    = "join_private_chat"
	SendPrivateMessageEvent = "send_private_message"
	LeavePrivateChatEvent   = "leave_private_chat"
)

type registerPayload struct {
	Phone    string `json:"phone" validate:"max=32"`
	Username string `json:"username" validate:"max=64"`
}

type loginPayload struct {
	Phone string `json:"phone" validate:"max=32"`
}

// userJoinPayload carries a display name that is ignored: the registered one is used.
type userJoinPayload struct {
	Username string `json:"username" validate:"max=64"`
}

type sendMessagePayload struct {
	Message string `json:"message" validate:"required"`
}

type typingPayload struct {
	IsTyping bool          `json:"isTyping"`
	RoomID   domain.RoomID `json:"roomId" validate:"max=64"`
}

type joinPrivateChatPayload struct {
	PartnerPhone string `json:"partnerPhone" validate:"required,max=32"`
	Username     string `json:"username" validate:"max=64"`
}

type sendPrivateMessagePayload struct {
	Message string        `json:"message" validate:"required"`
	RoomID  domain.RoomID `json:"roomId" validate:"max=64"`
}

// Decoder turns one inbound frame into a command for the coordinator.
type Decoder struct {
	validate         *validator.Validate
	maxContentLength int
}

func NewDecoder(maxContentLength int) Decoder {
	return Decoder{validate: validator.New(), maxContentLength: maxContentLength}
}

// FailureEvent names the event a rejected inbound event is answered with.
func FailureEvent(name string) string {
	switch name {
	case RegisterEvent:
		return event.RegistrationErrorName
	case LoginEvent:
		return event.LoginErrorName
	case JoinPrivateChatEvent, SendPrivateMessageEvent:
		return event.PrivateChatErrorName
	default:
		return event.ErrorName
	}
}

// Decode returns the inbound event name alongside the command so that a
// failure can be answered even when the payload is unusable.
func (d Decoder) Decode(conn domain.ConnectionID, frame []byte) (string, domain.Command, error) {
	var envelope event.Envelope
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return "", nil, fmt.Errorf("%w: %w", errors.ErrInvalidPayload, err)
	}

	switch envelope.Event {
	case RegisterEvent:
		var p registerPayload
		if err := d.payload(envelope.Data, &p); err != nil {
			return envelope.Event, nil, err
		}
		return envelope.Event, domain.RegisterCommand{Connection: conn, Phone: p.Phone, Username: p.Username}, nil
	case LoginEvent:
		var p loginPayload
		if err := d.payload(envelope.Data, &p); err != nil {
			return envelope.Event, nil, err
		}
		return envelope.Event, domain.LoginCommand{Connection: conn, Phone: p.Phone}, nil
	case UserJoinEvent:
		var p userJoinPayload
		if err := d.payload(envelope.Data, &p); err != nil {
			return envelope.Event, nil, err
		}
		return envelope.Event, domain.JoinCommand{Connection: conn, Username: p.Username}, nil
	case SendMessageEvent:
		var p sendMessagePayload
		if err := d.payload(envelope.Data, &p); err != nil {
			return envelope.Event, nil, err
		}
		if err := d.content(p.Message); err != nil {
			return envelope.Event, nil, err
		}
		return envelope.Event, domain.SendMessageCommand{Connection: conn, Body: p.Message}, nil
	case TypingEvent:
		var p typingPayload
		if err := d.payload(envelope.Data, &p); err != nil {
			return envelope.Event, nil, err
		}
		return envelope.Event, domain.TypingCommand{Connection: conn, IsTyping: p.IsTyping, Room: p.RoomID}, nil
	case JoinPrivateChatEvent:
		var p joinPrivateChatPayload
		if err := d.payload(envelope.Data, &p); err != nil {
			return envelope.Event, nil, err
		}
		return envelope.Event, domain.JoinPrivateChatCommand{Connection: conn, PartnerPhone: p.PartnerPhone}, nil
	case SendPrivateMessageEvent:
		var p sendPrivateMessagePayload
		if err := d.payload(envelope.Data, &p); err != nil {
			return envelope.Event, nil, err
		}
		if err := d.content(p.Message); err != nil {
			return envelope.Event, nil, err
		}
		return envelope.Event, domain.SendPrivateMessageCommand{Connection: conn, Body: p.Message, Room: p.RoomID}, nil
	case LeavePrivateChatEvent:
		return envelope.Event, domain.LeavePrivateChatCommand{Connection: conn}, nil
	default:
		return envelope.Event, nil, fmt.Errorf("%w: %q", errors.ErrUnknownEvent, envelope.Event)
	}
}

// payload decodes data into target and validates it. Missing data decodes
// into the zero payload.
func (d Decoder) payload(data json.RawMessage, target any) error {
	if len(data) > 0 {
		if err := json.Unmarshal(data, target); err != nil {
			return fmt.Errorf("%w: %w", errors.ErrInvalidPayload, err)
		}
	}
	if err := d.validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrInvalidPayload, err)
	}
	return nil
}

func (d Decoder) content(body string) error {
	if d.maxContentLength <= 0 {
		return nil
	}
	if err := d.validate.Var(body, fmt.Sprintf("max=%d", d.maxContentLength)); err != nil {
		return fmt.Errorf("%w: message is too long", errors.ErrInvalidPayload)
	}
	return nil
}
