package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"slices"
	"time"

	"github.com/samber/lo"
)

const DefaultRoomHistoryLimit = 100

type identityLookup interface {
	Lookup(phone string) (string, bool)
}

type presenceLookup interface {
	FindConnectionFor(identityKey string) (domain.ConnectionID, bool)
}

// room is referenced by id only. Members map a connection to its identity key.
type room struct {
	id      domain.RoomID
	members map[domain.ConnectionID]string
	history *MessageStore
}

// RoomView is a read-only copy of a room.
type RoomView struct {
	ID      domain.RoomID
	Members []domain.ConnectionID
	History []domain.Message
}

// Departure describes a connection removed from a room.
// Remaining are the connections still in it. Discarded is set when the room
// became empty and was dropped.
type Departure struct {
	Connection  domain.ConnectionID
	IdentityKey string
	Room        domain.RoomID
	Remaining   []domain.ConnectionID
	Discarded   bool
}

type JoinResult struct {
	Room               domain.RoomID
	PartnerKey         string
	PartnerConnection  domain.ConnectionID
	PartnerDisplayName string
	Created            bool
	Detachments        []Departure
}

// RoomCoordinator owns two-party rooms and the connection -> room index.
// A connection belongs to at most one room.
type RoomCoordinator struct {
	identities   identityLookup
	presence     presenceLookup
	rooms        map[domain.RoomID]*room
	byConnection map[domain.ConnectionID]domain.RoomID
	historyLimit int
	seq          *domain.Sequence
	now          func() time.Time
}

func NewRoomCoordinator(identities identityLookup, presence presenceLookup,
	historyLimit int, seq *domain.Sequence, now func() time.Time) *RoomCoordinator {
	if historyLimit < 1 {
		historyLimit = DefaultRoomHistoryLimit
	}
	return &RoomCoordinator{
		identities:   identities,
		presence:     presence,
		rooms:        make(map[domain.RoomID]*room),
		byConnection: make(map[domain.ConnectionID]domain.RoomID),
		historyLimit: historyLimit,
		seq:          seq,
		now:          now,
	}
}

// RequestPrivateChat puts conn and the live connection of partnerPhone in
// their shared room. Both connections leave any other room first.
func (c *RoomCoordinator) RequestPrivateChat(conn domain.ConnectionID, identityKey, partnerPhone string) (JoinResult, error) {
	partnerKey, err := domain.NormalizePhone(partnerPhone)
	if err != nil {
		return JoinResult{}, errors.ErrPartnerUnknown
	}
	if partnerKey == identityKey {
		return JoinResult{}, errors.ErrSelfChat
	}
	partnerName, ok := c.identities.Lookup(partnerKey)
	if !ok {
		return JoinResult{}, errors.ErrPartnerUnknown
	}
	partnerConn, ok := c.presence.FindConnectionFor(partnerKey)
	if !ok {
		return JoinResult{}, errors.ErrPartnerOffline
	}

	id := domain.RoomIDFor(identityKey, partnerKey)
	res := JoinResult{
		Room:               id,
		PartnerKey:         partnerKey,
		PartnerConnection:  partnerConn,
		PartnerDisplayName: partnerName,
	}

	for _, member := range []domain.ConnectionID{conn, partnerConn} {
		if current, ok := c.byConnection[member]; ok && current != id {
			if d, ok := c.Leave(member); ok {
				res.Detachments = append(res.Detachments, d)
			}
		}
	}

	r, ok := c.rooms[id]
	if !ok {
		r = &room{
			id:      id,
			members: make(map[domain.ConnectionID]string, 2),
			history: NewMessageStore(c.historyLimit, c.seq, c.now),
		}
		c.rooms[id] = r
		res.Created = true
	}
	c.attach(r, conn, identityKey)
	c.attach(r, partnerConn, partnerKey)
	return res, nil
}

// attach drops a stale connection of the same identity so a room never
// holds more than two members.
func (c *RoomCoordinator) attach(r *room, conn domain.ConnectionID, identityKey string) {
	for member, key := range r.members {
		if key == identityKey && member != conn {
			delete(r.members, member)
			delete(c.byConnection, member)
		}
	}
	r.members[conn] = identityKey
	c.byConnection[conn] = r.id
}

// SendToRoom appends body to the history of the room of conn and returns
// the stored message with its recipients.
func (c *RoomCoordinator) SendToRoom(conn domain.ConnectionID, sender, body string) (domain.Message, []domain.ConnectionID, error) {
	id, ok := c.byConnection[conn]
	if !ok {
		return domain.Message{}, nil, errors.ErrNotInRoom
	}
	r := c.rooms[id]
	msg := r.history.Append(domain.Message{
		Sender:             sender,
		SenderConnectionID: conn,
		Body:               body,
		Scope:              domain.RoomScope(id),
	})
	return msg, sortedMembers(r), nil
}

// Leave removes conn from its room. An empty room is discarded.
func (c *RoomCoordinator) Leave(conn domain.ConnectionID) (Departure, bool) {
	id, ok := c.byConnection[conn]
	if !ok {
		return Departure{}, false
	}
	delete(c.byConnection, conn)

	r := c.rooms[id]
	d := Departure{Connection: conn, IdentityKey: r.members[conn], Room: id}
	delete(r.members, conn)
	d.Remaining = sortedMembers(r)
	if len(r.members) == 0 {
		delete(c.rooms, id)
		d.Discarded = true
	}
	return d, true
}

func (c *RoomCoordinator) RoomOf(conn domain.ConnectionID) (domain.RoomID, bool) {
	id, ok := c.byConnection[conn]
	return id, ok
}

func (c *RoomCoordinator) Members(id domain.RoomID) []domain.ConnectionID {
	r, ok := c.rooms[id]
	if !ok {
		return nil
	}
	return sortedMembers(r)
}

func (c *RoomCoordinator) Room(id domain.RoomID) (RoomView, bool) {
	r, ok := c.rooms[id]
	if !ok {
		return RoomView{}, false
	}
	return RoomView{ID: r.id, Members: sortedMembers(r), History: r.history.All()}, true
}

func (c *RoomCoordinator) Len() int {
	return len(c.rooms)
}

func sortedMembers(r *room) []domain.ConnectionID {
	members := lo.Keys(r.members)
	slices.Sort(members)
	return members
}
