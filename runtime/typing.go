package runtime

import (
	"chat-relay/domain"
	"cmp"
	"slices"
	"time"

	"github.com/samber/lo"
)

const DefaultTypingQuietPeriod = 2 * time.Second

type typingEntry struct {
	state domain.TypingState
	seq   uint64
}

// TypingAggregator tracks who is composing, per scope.
// Scopes never leak into each other. An entry that is not refreshed within
// the quiet period lapses on its own.
type TypingAggregator struct {
	quiet   time.Duration
	now     func() time.Time
	entries map[domain.Scope]map[string]typingEntry
	seq     uint64
}

func NewTypingAggregator(quiet time.Duration, now func() time.Time) *TypingAggregator {
	if quiet <= 0 {
		quiet = DefaultTypingQuietPeriod
	}
	return &TypingAggregator{quiet: quiet, now: now, entries: make(map[domain.Scope]map[string]typingEntry)}
}

// SetTyping refreshes or removes the entry of identity in scope.
// It reports whether the list of typists of scope changed.
func (t *TypingAggregator) SetTyping(identity, displayName string, scope domain.Scope, isTyping bool) bool {
	if !isTyping {
		return t.ClearScope(identity, scope)
	}

	byIdentity, ok := t.entries[scope]
	if !ok {
		byIdentity = make(map[string]typingEntry)
		t.entries[scope] = byIdentity
	}
	current, existed := byIdentity[identity]
	now := t.now()
	active := existed && !current.state.ExpiredAt(now)
	if !active {
		t.seq++
		current.seq = t.seq
	}
	current.state = domain.TypingState{
		IdentityKey: identity,
		DisplayName: displayName,
		Scope:       scope,
		ExpiresAt:   now.Add(t.quiet),
	}
	byIdentity[identity] = current
	return !active
}

// ActiveTypists returns display names in the order typing started.
// Expired entries of scope are pruned on the way.
func (t *TypingAggregator) ActiveTypists(scope domain.Scope) []string {
	t.prune(scope, t.now())
	entries := lo.Values(t.entries[scope])
	slices.SortFunc(entries, func(a, b typingEntry) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return lo.Map(entries, func(e typingEntry, _ int) string { return e.state.DisplayName })
}

func (t *TypingAggregator) ClearScope(identity string, scope domain.Scope) bool {
	byIdentity, ok := t.entries[scope]
	if !ok {
		return false
	}
	if _, ok := byIdentity[identity]; !ok {
		return false
	}
	delete(byIdentity, identity)
	if len(byIdentity) == 0 {
		delete(t.entries, scope)
	}
	return true
}

// ClearIdentity removes identity from every scope and returns the scopes it was in.
func (t *TypingAggregator) ClearIdentity(identity string) []domain.Scope {
	var cleared []domain.Scope
	for _, scope := range t.scopes() {
		if t.ClearScope(identity, scope) {
			cleared = append(cleared, scope)
		}
	}
	return cleared
}

// Sweep drops every expired entry and returns the scopes that lost one.
func (t *TypingAggregator) Sweep() []domain.Scope {
	now := t.now()
	var changed []domain.Scope
	for _, scope := range t.scopes() {
		if t.prune(scope, now) {
			changed = append(changed, scope)
		}
	}
	return changed
}

func (t *TypingAggregator) prune(scope domain.Scope, now time.Time) bool {
	byIdentity, ok := t.entries[scope]
	if !ok {
		return false
	}
	pruned := false
	for identity, e := range byIdentity {
		if e.state.ExpiredAt(now) {
			delete(byIdentity, identity)
			pruned = true
		}
	}
	if len(byIdentity) == 0 {
		delete(t.entries, scope)
	}
	return pruned
}

// scopes are sorted so notifications go out in a stable order.
func (t *TypingAggregator) scopes() []domain.Scope {
	scopes := lo.Keys(t.entries)
	slices.SortFunc(scopes, func(a, b domain.Scope) int {
		return cmp.Compare(a.String(), b.String())
	})
	return scopes
}
