package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"sync"
)

// Registry maps a live connection to the sink delivering its notifications.
// Only the orchestrator loop mutates it, reads may come from anywhere.
type Registry struct {
	mu    sync.RWMutex
	sinks map[domain.ConnectionID]contract.EventSink
}

func NewRegistry() *Registry {
	return &Registry{sinks: make(map[domain.ConnectionID]contract.EventSink)}
}

// Subscribe replaces any sink already registered for conn.
func (r *Registry) Subscribe(conn domain.ConnectionID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[conn] = sink
}

func (r *Registry) Unsubscribe(conn domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sinks, conn)
}

func (r *Registry) Sink(conn domain.ConnectionID) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sinks[conn]
	return sink, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}
