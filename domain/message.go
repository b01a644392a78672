// Package domain contains core concepts of the chat system.
// This file defines Message events and the id sequence shared by all scopes.
package domain

import (
	"encoding/json"
	"time"
)

// Message is an immutable chat message, global or private.
type Message struct {
	ID                 int64
	Sender             string
	SenderConnectionID ConnectionID
	Body               string
	Timestamp          time.Time
	Scope              Scope
}

type wireMessage struct {
	ID        int64        `json:"id"`
	Sender    string       `json:"sender"`
	SenderID  ConnectionID `json:"senderId"`
	Message   string       `json:"message"`
	Timestamp string       `json:"timestamp"`
	RoomID    RoomID       `json:"roomId,omitempty"`
	IsPrivate bool         `json:"isPrivate,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{
		ID:        m.ID,
		Sender:    m.Sender,
		SenderID:  m.SenderConnectionID,
		Message:   m.Body,
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
		RoomID:    m.Scope.Room,
		IsPrivate: !m.Scope.IsGlobal(),
	})
}

// Sequence hands out strictly increasing message ids.
// It is owned by the coordinator loop and is not safe for concurrent use.
type Sequence struct {
	last int64
}

func (s *Sequence) Next() int64 {
	s.last++
	return s.last
}

// ResumeAfter makes the next id greater than last. It never moves backwards.
func (s *Sequence) ResumeAfter(last int64) {
	s.last = max(s.last, last)
}
