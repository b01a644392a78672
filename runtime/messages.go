package runtime

import (
	"chat-relay/domain"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

const DefaultHistoryLimit = 100

// MessageStore is a bounded FIFO history. On overflow the oldest message is evicted.
type MessageStore struct {
	capacity int
	seq      *domain.Sequence
	now      func() time.Time
	messages []domain.Message
}

// MessagePage is a newest-first window of the history.
type MessagePage struct {
	Items   []domain.Message
	Total   int
	HasMore bool
}

// NewMessageStore shares seq with every other store so ids stay unique
// across the global history and all rooms.
func NewMessageStore(capacity int, seq *domain.Sequence, now func() time.Time) *MessageStore {
	if capacity < 1 {
		capacity = DefaultHistoryLimit
	}
	return &MessageStore{capacity: capacity, seq: seq, now: now}
}

// Append assigns the id and the UTC timestamp and stores the message at the tail.
func (s *MessageStore) Append(msg domain.Message) domain.Message {
	msg.ID = s.seq.Next()
	msg.Timestamp = s.now().UTC()
	s.messages = append(s.messages, msg)
	if overflow := len(s.messages) - s.capacity; overflow > 0 {
		s.messages = slices.Delete(s.messages, 0, overflow)
	}
	return msg
}

// Page computes the window from the tail backward. Page 1 holds the most
// recent size messages. Arguments below 1 are raised to 1.
func (s *MessageStore) Page(page, size int) MessagePage {
	page, size = max(page, 1), max(size, 1)
	total := len(s.messages)

	// Checked before multiplying so a huge page cannot overflow
	if page-1 >= (total+size-1)/size {
		return MessagePage{Items: []domain.Message{}, Total: total}
	}
	end := total - (page-1)*size
	if end <= 0 {
		return MessagePage{Items: []domain.Message{}, Total: total}
	}
	start := max(0, end-size)

	items := slices.Clone(s.messages[start:end])
	slices.Reverse(items)
	return MessagePage{Items: items, Total: total, HasMore: start > 0}
}

// Search matches query against body and sender, case-insensitively.
// An empty query matches nothing.
func (s *MessageStore) Search(query string) []domain.Message {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []domain.Message{}
	}
	return lo.Filter(s.messages, func(m domain.Message, _ int) bool {
		return strings.Contains(strings.ToLower(m.Body), q) ||
			strings.Contains(strings.ToLower(m.Sender), q)
	})
}

// All returns a copy of the history, oldest first.
func (s *MessageStore) All() []domain.Message {
	return slices.Clone(s.messages)
}

func (s *MessageStore) Len() int {
	return len(s.messages)
}

func (s *MessageStore) Capacity() int {
	return s.capacity
}
