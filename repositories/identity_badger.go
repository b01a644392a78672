package repositories

import (
	"chat-relay/contract"
	"context"
	"encoding/json"
	goerrors "errors"

	"github.com/dgraph-io/badger/v4"
)

const identitiesKey = "identities"

var _ contract.IdentityStore = (*BadgerIdentityStore)(nil)

// BadgerIdentityStore stores the whole identity document under a single key,
// so every save is one atomic transaction.
type BadgerIdentityStore struct {
	db *badger.DB
}

func NewBadgerIdentityStore(db *badger.DB) *BadgerIdentityStore {
	return &BadgerIdentityStore{db: db}
}

func (s *BadgerIdentityStore) Load(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	identities := map[string]string{}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(identitiesKey))
		if goerrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &identities)
		})
	})
	return identities, err
}

func (s *BadgerIdentityStore) Save(ctx context.Context, identities map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(identities)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(identitiesKey), data)
	})
}
