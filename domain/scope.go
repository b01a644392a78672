package domain

import "fmt"

type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeRoom
)

// Scope is the routing domain of a message or typing signal.
// It is comparable and can be used as a map key.
type Scope struct {
	Kind ScopeKind
	Room RoomID
}

func GlobalScope() Scope {
	return Scope{Kind: ScopeGlobal}
}

func RoomScope(id RoomID) Scope {
	return Scope{Kind: ScopeRoom, Room: id}
}

func (s Scope) IsGlobal() bool {
	return s.Kind == ScopeGlobal
}

func (s Scope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return fmt.Sprintf("room:%s", s.Room)
}
