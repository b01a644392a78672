//go:generate go run go.uber.org/mock/mockgen -source=archive.go -destination=../mocks/mock_archive_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const archivePrefix = "msg:"

type IArchiveRepository interface {
	Store(message ArchivedMessage) error
	Get(ids []int64) ([]ArchivedMessage, error)
	Recent(limit int) ([]ArchivedMessage, error)
}

// ArchivedMessage is a global message as kept on disk, enriched with the
// language detected at archive time.
type ArchivedMessage struct {
	ID       int64     `json:"id"`
	Sender   string    `json:"sender"`
	SenderID string    `json:"senderId"`
	Body     string    `json:"message"`
	At       time.Time `json:"timestamp"`
	Language string    `json:"language,omitempty"`
}

type ArchiveRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewArchiveRepository(db *badger.DB, log *slog.Logger) ArchiveRepository {
	return ArchiveRepository{db: db, log: log}
}

// archiveKey pads the id to 19 digits so keys sort like ids.
func archiveKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%019d", archivePrefix, id))
}

// Store overwrites any message already archived under the same id.
func (r ArchiveRepository) Store(message ArchivedMessage) error {
	value, err := structpb.NewStruct(map[string]any{
		"id":       float64(message.ID),
		"sender":   message.Sender,
		"senderId": message.SenderID,
		"body":     message.Body,
		"at":       message.At.UTC().Format(time.RFC3339Nano),
		"language": message.Language,
	})
	if err != nil {
		return err
	}
	data, err := proto.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(archiveKey(message.ID), data)
	})
}

// Get returns the archived messages of ids, in the order of ids.
// Unknown ids are skipped.
func (r ArchiveRepository) Get(ids []int64) ([]ArchivedMessage, error) {
	var messages []ArchivedMessage
	err := r.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(archiveKey(id))
			if err == badger.ErrKeyNotFound {
				r.log.Debug("Archived message not found", "id", id)
				continue
			}
			if err != nil {
				return err
			}
			var message ArchivedMessage
			if err := item.Value(func(val []byte) error {
				message, err = decodeArchived(val)
				return err
			}); err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	return messages, err
}

// Recent returns up to limit messages, newest first.
func (r ArchiveRepository) Recent(limit int) ([]ArchivedMessage, error) {
	var messages []ArchivedMessage
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(archivePrefix)
		// Reverse iteration starts from the greatest key under the prefix
		seek := append([]byte(archivePrefix), []byte("9999999999999999999")...)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				message, err := decodeArchived(val)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return messages, err
}

// LastID is the greatest archived id, 0 when the archive is empty.
func (r ArchiveRepository) LastID() (int64, error) {
	recent, err := r.Recent(1)
	if err != nil || len(recent) == 0 {
		return 0, err
	}
	return recent[0].ID, nil
}

func decodeArchived(data []byte) (ArchivedMessage, error) {
	var value structpb.Struct
	if err := proto.Unmarshal(data, &value); err != nil {
		return ArchivedMessage{}, err
	}
	fields := value.GetFields()
	at, err := time.Parse(time.RFC3339Nano, fields["at"].GetStringValue())
	if err != nil {
		return ArchivedMessage{}, err
	}
	return ArchivedMessage{
		ID:       int64(fields["id"].GetNumberValue()),
		Sender:   fields["sender"].GetStringValue(),
		SenderID: fields["senderId"].GetStringValue(),
		Body:     fields["body"].GetStringValue(),
		At:       at,
		Language: fields["language"].GetStringValue(),
	}, nil
}
