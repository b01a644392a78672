package workers

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"sync"
	"time"
)

var _ contract.Worker = (*EventFanout)(nil)

// EventFanout hands every event of its channel to the permanent sinks.
//
// Delivery is best effort: each sink gets sinkTimeout per event and a failing
// sink is only logged. Events reach the sinks in channel order because the
// next event is read once every sink returned.
type EventFanout struct {
	log         *slog.Logger
	events      <-chan event.DomainEvent
	sinks       []contract.EventSink
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, events <-chan event.DomainEvent, sinkTimeout time.Duration, sinks ...contract.EventSink) *EventFanout {
	return &EventFanout{log: log, events: events, sinks: sinks, sinkTimeout: sinkTimeout}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				w.log.Debug("Event channel is closed")
				return nil
			}
			w.Fanout(ctx, evt)
		}
	}
}

// Fanout delivers evt to all sinks concurrently and waits for them.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	var wg sync.WaitGroup
	for _, sink := range w.sinks {
		wg.Add(1)
		go func(s contract.EventSink) {
			defer wg.Done()
			sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
			defer cancel()
			if err := s.Consume(sinkCtx, evt); err != nil {
				w.log.Warn("Sink failed", "event", evt.EventName(), "error", err)
			}
		}(sink)
	}
	wg.Wait()
}
