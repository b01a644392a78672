package sink

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"

	"github.com/abadojack/whatlanggo"
)

var _ contract.EventSink = ArchiveSink{}

type indexer interface {
	Index(message repositories.ArchivedMessage) error
}

// ArchiveSink persists posted global messages, tagged with their detected
// language, then indexes them for full-text search.
type ArchiveSink struct {
	repository repositories.IArchiveRepository
	index      indexer
	log        *slog.Logger
}

func NewArchiveSink(repository repositories.IArchiveRepository, index indexer, log *slog.Logger) ArchiveSink {
	return ArchiveSink{repository: repository, index: index, log: log}
}

func (a ArchiveSink) Consume(ctx context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessagePosted:
		if err := ctx.Err(); err != nil {
			return err
		}
		message := toArchivedMessage(evt)
		if err := a.repository.Store(message); err != nil {
			return fmt.Errorf("archive message %d: %w", message.ID, err)
		}
		if a.index == nil {
			return nil
		}
		if err := a.index.Index(message); err != nil {
			return fmt.Errorf("index message %d: %w", message.ID, err)
		}
		return nil
	default:
		a.log.Debug(fmt.Sprintf("Not implemented event : %v", evt.EventName()))
		return nil
	}
}

func toArchivedMessage(evt event.MessagePosted) repositories.ArchivedMessage {
	return repositories.ArchivedMessage{
		ID:       evt.Message.ID,
		Sender:   evt.Message.Sender,
		SenderID: string(evt.Message.SenderConnectionID),
		Body:     evt.Message.Body,
		At:       evt.Message.Timestamp,
		Language: detectLanguage(evt.Message.Body),
	}
}

// detectLanguage returns the ISO 639-3 code of text, empty when unknown.
func detectLanguage(text string) string {
	return whatlanggo.DetectLang(text).Iso6393()
}
