package sink

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
)

var _ contract.EventSink = (*ConnectionSink)(nil)

// ConnectionSink queues encoded notifications for one connection. The write
// pump of the transport drains Frames. Consume never blocks the orchestrator:
// a full buffer drops the frame and reports ErrSinkFull.
type ConnectionSink struct {
	mu     sync.Mutex
	frames chan []byte
	closed bool
	log    *slog.Logger
}

func NewConnectionSink(bufferSize int, log *slog.Logger) *ConnectionSink {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &ConnectionSink{frames: make(chan []byte, bufferSize), log: log}
}

func (s *ConnectionSink) Consume(_ context.Context, e event.DomainEvent) error {
	frame, err := event.Encode(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	select {
	case s.frames <- frame:
		return nil
	default:
		return fmt.Errorf("%w: %s", errors.ErrSinkFull, e.EventName())
	}
}

func (s *ConnectionSink) Frames() <-chan []byte {
	return s.frames
}

// Close ends Frames once the buffered frames are drained. Later Consume calls
// are ignored.
func (s *ConnectionSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.frames)
}
