package search

import (
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/blugelabs/bluge"
)

const (
	bodyField     = "body"
	senderField   = "sender"
	languageField = "language"
	idField       = "_id"
)

// Index is the full-text side of the message archive. Documents are keyed by
// message id, the archive repository holds the messages themselves.
type Index struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewIndex(writer *bluge.Writer, log *slog.Logger) *Index {
	return &Index{writer: writer, log: log}
}

func (i *Index) Index(message repositories.ArchivedMessage) error {
	doc := bluge.NewDocument(strconv.FormatInt(message.ID, 10)).
		AddField(bluge.NewTextField(bodyField, message.Body)).
		AddField(bluge.NewTextField(senderField, message.Sender)).
		AddField(bluge.NewKeywordField(languageField, message.Language))
	return i.writer.Update(doc.ID(), doc)
}

// Search matches query against bodies and senders and returns the ids of the
// best limit matches, best first.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]int64, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return []int64{}, nil
	}
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	q := bluge.NewBooleanQuery().
		AddShould(bluge.NewMatchQuery(query).SetField(bodyField)).
		AddShould(bluge.NewMatchQuery(query).SetField(senderField))
	matches, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	ids := []int64{}
	match, err := matches.Next()
	for err == nil && match != nil {
		var id int64
		var parseErr error
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field != idField {
				return true
			}
			id, parseErr = strconv.ParseInt(string(value), 10, 64)
			return false
		})
		if err != nil {
			return nil, err
		}
		if parseErr != nil {
			return nil, fmt.Errorf("unexpected document id: %w", parseErr)
		}
		ids = append(ids, id)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	i.log.Debug("Archive searched", "query", query, "hits", len(ids))
	return ids, nil
}
