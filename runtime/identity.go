package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"
)

// IdentityRegistry maps a canonical phone key to its display name.
// Writes go through the store before memory is touched.
type IdentityRegistry struct {
	log        *slog.Logger
	store      contract.IdentityStore
	identities map[string]string
}

func NewIdentityRegistry(log *slog.Logger, store contract.IdentityStore) *IdentityRegistry {
	return &IdentityRegistry{log: log, store: store, identities: make(map[string]string)}
}

// Load replaces the in-memory registry with the stored document.
// Stored keys that are not canonical are normalized, invalid ones skipped.
func (r *IdentityRegistry) Load(ctx context.Context) error {
	stored, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrPersistence, err)
	}
	loaded := make(map[string]string, len(stored))
	for phone, name := range stored {
		key, err := domain.NormalizePhone(phone)
		if err != nil {
			r.log.Warn("Skipping stored identity", "phone", phone, "error", err)
			continue
		}
		loaded[key] = name
	}
	r.identities = loaded
	r.log.Info("Identities loaded", "count", len(loaded))
	return nil
}

func (r *IdentityRegistry) Register(ctx context.Context, phone, displayName string) (domain.Identity, error) {
	displayName = strings.TrimSpace(displayName)
	if strings.TrimSpace(phone) == "" || displayName == "" {
		return domain.Identity{}, errors.ErrMissingField
	}
	key, err := domain.NormalizePhone(phone)
	if err != nil {
		return domain.Identity{}, err
	}
	if _, ok := r.identities[key]; ok {
		return domain.Identity{}, errors.ErrDuplicatePhone
	}

	next := lo.Assign(r.identities, map[string]string{key: displayName})
	if err := r.store.Save(ctx, next); err != nil {
		r.log.Error("Identity store write failed", "identity", key, "error", err)
		return domain.Identity{}, fmt.Errorf("%w: %w", errors.ErrPersistence, err)
	}
	r.identities = next
	r.log.Info("Identity registered", "identity", key, "username", displayName)
	return domain.Identity{Key: key, DisplayName: displayName}, nil
}

// Lookup normalizes phone first. An invalid phone is simply not found.
func (r *IdentityRegistry) Lookup(phone string) (string, bool) {
	key, err := domain.NormalizePhone(phone)
	if err != nil {
		return "", false
	}
	name, ok := r.identities[key]
	return name, ok
}

func (r *IdentityRegistry) Len() int {
	return len(r.identities)
}
