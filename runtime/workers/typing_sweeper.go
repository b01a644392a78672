package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"log/slog"
	"time"
)

const defaultSweepInterval = 500 * time.Millisecond

var _ contract.Worker = (*TypingSweeper)(nil)

type dispatcher interface {
	Dispatch(ctx context.Context, cmd domain.Command) (any, error)
}

// TypingSweeper periodically asks the orchestrator to drop lapsed typing
// entries, so lists are re-broadcast even when nobody reads them.
type TypingSweeper struct {
	log        *slog.Logger
	dispatcher dispatcher
	interval   time.Duration
}

func NewTypingSweeper(log *slog.Logger, dispatcher dispatcher, interval time.Duration) *TypingSweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &TypingSweeper{log: log, dispatcher: dispatcher, interval: interval}
}

func (w *TypingSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping typing sweeper")
			return nil
		case <-ticker.C:
			if _, err := w.dispatcher.Dispatch(ctx, domain.SweepTypingCommand{}); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}
