//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// It is only used for logging by the supervisor.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives notifications addressed to one consumer,
// either a live connection or a permanent sink like the archive.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IdentityStore persists the whole phone -> display name document.
// Save must be atomic: either the full mapping is durable or nothing changed.
type IdentityStore interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, identities map[string]string) error
}

// Moderator rewrites a message body before it is stored.
type Moderator interface {
	Censor(text string) string
}
