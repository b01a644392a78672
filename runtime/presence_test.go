package runtime

import (
	"chat-relay/domain"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresenceTable_SnapshotFollowsBindOrder(t *testing.T) {
	req := require.New(t)
	presence := NewPresenceTable()

	// Given three sessions bound in order, joined in reverse order
	presence.Bind("c1", "5550000001", "Alice")
	presence.Bind("c2", "5550000002", "Bob")
	presence.Bind("c3", "5550000003", "Carol")
	for _, conn := range []domain.ConnectionID{"c3", "c2", "c1"} {
		_, ok := presence.MarkJoined(conn)
		req.True(ok)
	}

	// Then the snapshot keeps the bind order
	req.Equal([]domain.OnlineUser{
		{ID: "c1", Username: "Alice"},
		{ID: "c2", Username: "Bob"},
		{ID: "c3", Username: "Carol"},
	}, presence.Snapshot())
	req.Equal([]domain.ConnectionID{"c1", "c2", "c3"}, presence.GlobalAudience())
}

func TestPresenceTable_OnlyJoinedSessionsAreListed(t *testing.T) {
	req := require.New(t)
	presence := NewPresenceTable()

	presence.Bind("c1", "5550000001", "Alice")
	presence.Bind("c2", "5550000002", "Bob")
	presence.MarkJoined("c2")

	req.Equal([]domain.OnlineUser{{ID: "c2", Username: "Bob"}}, presence.Snapshot())
	req.Equal(2, presence.Len())
	conn, ok := presence.FindConnectionFor("5550000001")
	req.True(ok)
	req.Equal(domain.ConnectionID("c1"), conn)
}

func TestPresenceTable_LaterLoginSupersedes(t *testing.T) {
	req := require.New(t)
	presence := NewPresenceTable()
	presence.Bind("old", "5550000001", "Alice")
	presence.MarkJoined("old")

	// When the same identity logs in from another connection
	res := presence.Bind("new", "5550000001", "Alice")

	// Then the old session is reported and removed
	req.Nil(res.Previous)
	req.NotNil(res.Superseded)
	req.Equal(domain.ConnectionID("old"), res.Superseded.ConnectionID)
	req.True(res.Superseded.InGlobal)
	_, ok := presence.Resolve("old")
	req.False(ok)
	conn, _ := presence.FindConnectionFor("5550000001")
	req.Equal(domain.ConnectionID("new"), conn)
	req.Empty(presence.Snapshot())
}

func TestPresenceTable_RebindOverwritesConnection(t *testing.T) {
	req := require.New(t)
	presence := NewPresenceTable()
	presence.Bind("c1", "5550000001", "Alice")
	presence.MarkJoined("c1")

	// When the connection logs in as somebody else
	res := presence.Bind("c1", "5550000002", "Bob")

	// Then the former identity is no longer reachable and the join flag is reset
	req.NotNil(res.Previous)
	req.Equal("5550000001", res.Previous.IdentityKey)
	req.Nil(res.Superseded)
	_, ok := presence.FindConnectionFor("5550000001")
	req.False(ok)
	session, _ := presence.Resolve("c1")
	req.Equal("Bob", session.DisplayName)
	req.False(session.InGlobal)
}

func TestPresenceTable_RebindSameIdentityKeepsJoin(t *testing.T) {
	req := require.New(t)
	presence := NewPresenceTable()
	presence.Bind("c1", "5550000001", "Alice")
	presence.MarkJoined("c1")

	res := presence.Bind("c1", "5550000001", "Alice")

	req.True(res.Session.InGlobal)
	req.Len(presence.Snapshot(), 1)
}

func TestPresenceTable_Unbind(t *testing.T) {
	req := require.New(t)
	presence := NewPresenceTable()
	presence.Bind("c1", "5550000001", "Alice")
	presence.MarkJoined("c1")

	session, ok := presence.Unbind("c1")
	req.True(ok)
	req.Equal("Alice", session.DisplayName)

	_, ok = presence.Unbind("c1")
	req.False(ok)
	_, ok = presence.FindConnectionFor("5550000001")
	req.False(ok)
	req.Empty(presence.Snapshot())
	_, ok = presence.MarkJoined("c1")
	req.False(ok)
}
