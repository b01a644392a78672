package runtime

import (
	"chat-relay/domain"
	"cmp"
	"slices"

	"github.com/samber/lo"
)

type presenceEntry struct {
	session domain.Session
	seq     uint64
}

// PresenceTable is the connection <-> session index.
// At most one connection is bound to an identity at a time.
type PresenceTable struct {
	sessions   map[domain.ConnectionID]presenceEntry
	byIdentity map[string]domain.ConnectionID
	seq        uint64
}

// BindResult reports what a bind replaced.
// Previous is the former session of the same connection, Superseded the
// session of another connection that was bound to the same identity.
type BindResult struct {
	Session    domain.Session
	Previous   *domain.Session
	Superseded *domain.Session
}

func NewPresenceTable() *PresenceTable {
	return &PresenceTable{
		sessions:   make(map[domain.ConnectionID]presenceEntry),
		byIdentity: make(map[string]domain.ConnectionID),
	}
}

func (p *PresenceTable) Bind(conn domain.ConnectionID, identityKey, displayName string) BindResult {
	var res BindResult

	if prev, ok := p.sessions[conn]; ok {
		previous := prev.session
		res.Previous = &previous
		if p.byIdentity[previous.IdentityKey] == conn {
			delete(p.byIdentity, previous.IdentityKey)
		}
	}

	if other, ok := p.byIdentity[identityKey]; ok && other != conn {
		superseded := p.sessions[other].session
		res.Superseded = &superseded
		delete(p.sessions, other)
	}

	p.seq++
	session := domain.Session{ConnectionID: conn, IdentityKey: identityKey, DisplayName: displayName}
	if res.Previous != nil && res.Previous.IdentityKey == identityKey {
		session.InGlobal = res.Previous.InGlobal
	}
	p.sessions[conn] = presenceEntry{session: session, seq: p.seq}
	p.byIdentity[identityKey] = conn
	res.Session = session
	return res
}

// MarkJoined flags the session as a member of the global chat.
func (p *PresenceTable) MarkJoined(conn domain.ConnectionID) (domain.Session, bool) {
	entry, ok := p.sessions[conn]
	if !ok {
		return domain.Session{}, false
	}
	entry.session.InGlobal = true
	p.sessions[conn] = entry
	return entry.session, true
}

func (p *PresenceTable) Unbind(conn domain.ConnectionID) (domain.Session, bool) {
	entry, ok := p.sessions[conn]
	if !ok {
		return domain.Session{}, false
	}
	delete(p.sessions, conn)
	if p.byIdentity[entry.session.IdentityKey] == conn {
		delete(p.byIdentity, entry.session.IdentityKey)
	}
	return entry.session, true
}

func (p *PresenceTable) Resolve(conn domain.ConnectionID) (domain.Session, bool) {
	entry, ok := p.sessions[conn]
	return entry.session, ok
}

func (p *PresenceTable) FindConnectionFor(identityKey string) (domain.ConnectionID, bool) {
	conn, ok := p.byIdentity[identityKey]
	return conn, ok
}

// Snapshot lists the sessions that joined the global chat, in bind order.
func (p *PresenceTable) Snapshot() []domain.OnlineUser {
	return lo.Map(p.joined(), func(s domain.Session, _ int) domain.OnlineUser {
		return domain.OnlineUser{ID: s.ConnectionID, Username: s.DisplayName}
	})
}

// GlobalAudience lists the connections receiving global broadcasts, in bind order.
func (p *PresenceTable) GlobalAudience() []domain.ConnectionID {
	return lo.Map(p.joined(), func(s domain.Session, _ int) domain.ConnectionID { return s.ConnectionID })
}

func (p *PresenceTable) Len() int {
	return len(p.sessions)
}

func (p *PresenceTable) joined() []domain.Session {
	entries := lo.Filter(lo.Values(p.sessions), func(e presenceEntry, _ int) bool {
		return e.session.InGlobal
	})
	slices.SortFunc(entries, func(a, b presenceEntry) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return lo.Map(entries, func(e presenceEntry, _ int) domain.Session { return e.session })
}
