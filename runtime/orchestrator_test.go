package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type recordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (s *recordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) named(name string) []event.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Filter(s.events, func(e event.DomainEvent, _ int) bool { return e.EventName() == name })
}

func (s *recordingSink) last(name string) event.DomainEvent {
	found := s.named(name)
	if len(found) == 0 {
		return nil
	}
	return found[len(found)-1]
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	orch  *Orchestrator
	clock *manualClock
	sinks map[domain.ConnectionID]*recordingSink
}

func newHarness(t *testing.T) *harness {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIdentityStore(ctrl)
	store.EXPECT().Load(gomock.Any()).Return(map[string]string{
		alicePhone: "Alice",
		bobPhone:   "Bob",
		carolPhone: "Carol",
		davePhone:  "Dave",
	}, nil)
	store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	return startHarness(t, store)
}

func startHarness(t *testing.T, store *mocks.MockIdentityStore) *harness {
	clock := newManualClock()
	orch := NewOrchestrator(logs.GetLoggerFromLevel(slog.LevelDebug), store, NewRegistry(), OrchestratorConfig{
		HistoryLimit:      DefaultHistoryLimit,
		RoomHistoryLimit:  DefaultRoomHistoryLimit,
		TypingQuietPeriod: 2 * time.Second,
		CommandBufferSize: 16,
		Now:               clock.Now,
	})
	require.NoError(t, orch.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = orch.Run(ctx) }()

	return &harness{t: t, ctx: ctx, orch: orch, clock: clock, sinks: make(map[domain.ConnectionID]*recordingSink)}
}

func (h *harness) connect(conn domain.ConnectionID) *recordingSink {
	sink := &recordingSink{}
	require.NoError(h.t, h.orch.Connect(h.ctx, conn, sink))
	h.sinks[conn] = sink
	return sink
}

func (h *harness) dispatch(cmd domain.Command) (any, error) {
	return h.orch.Dispatch(h.ctx, cmd)
}

// online connects, logs in and joins the global chat.
func (h *harness) online(conn domain.ConnectionID, phone string) *recordingSink {
	sink := h.connect(conn)
	_, err := h.dispatch(domain.LoginCommand{Connection: conn, Phone: phone})
	require.NoError(h.t, err)
	_, err = h.dispatch(domain.JoinCommand{Connection: conn})
	require.NoError(h.t, err)
	return sink
}

func (h *harness) resetAll() {
	for _, s := range h.sinks {
		s.reset()
	}
}

func failureReason(e event.DomainEvent) string {
	if f, ok := e.(event.Failure); ok {
		return f.Reason
	}
	return ""
}

func TestOrchestrator_Register(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	sink := h.connect("x")

	// When registering a new phone
	_, err := h.dispatch(domain.RegisterCommand{Connection: "x", Phone: "555 111 2222", Username: "Erin"})

	// Then the caller is acknowledged with the canonical phone
	req.NoError(err)
	req.Equal(event.RegistrationSuccess{Phone: "5551112222", Username: "Erin"},
		sink.last(event.RegistrationSuccessName))

	// And a second registration is a conflict whatever the name
	_, err = h.dispatch(domain.RegisterCommand{Connection: "x", Phone: "5551112222", Username: "Other"})
	req.ErrorIs(err, errors.ErrDuplicatePhone)
	req.Equal("Phone number already registered", failureReason(sink.last(event.RegistrationErrorName)))
}

func TestOrchestrator_RegisterPersistenceFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIdentityStore(ctrl)
	store.EXPECT().Load(gomock.Any()).Return(map[string]string{}, nil)
	store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(fmt.Errorf("read-only file system"))
	h := startHarness(t, store)
	sink := h.connect("x")

	_, err := h.dispatch(domain.RegisterCommand{Connection: "x", Phone: "5551112222", Username: "Erin"})
	req.ErrorIs(err, errors.ErrPersistence)
	req.Equal("Registration could not be saved, please retry", failureReason(sink.last(event.RegistrationErrorName)))

	// The identity was never registered
	_, err = h.dispatch(domain.LoginCommand{Connection: "x", Phone: "5551112222"})
	req.ErrorIs(err, errors.ErrPhoneNotFound)
}

func TestOrchestrator_LoginFailures(t *testing.T) {
	tests := []struct {
		name   string
		phone  string
		want   error
		reason string
	}{
		{"missing phone", "", errors.ErrPhoneRequired, "Phone number is required"},
		{"malformed phone", "abc", errors.ErrInvalidPhone, "Invalid phone number format"},
		{"unregistered phone", "5559999999", errors.ErrPhoneNotFound, "Phone number not registered"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			h := newHarness(t)
			sink := h.connect("x")

			_, err := h.dispatch(domain.LoginCommand{Connection: "x", Phone: tt.phone})

			req.ErrorIs(err, tt.want)
			req.Equal(tt.reason, failureReason(sink.last(event.LoginErrorName)))
		})
	}
}

func TestOrchestrator_JoinBroadcastsPresence(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.online("a", alicePhone)
	alice.reset()

	// When Bob joins
	h.online("b", bobPhone)

	// Then Alice sees him in the list and as a newcomer
	req.Equal(event.UserList{Users: []domain.OnlineUser{
		{ID: "a", Username: "Alice"},
		{ID: "b", Username: "Bob"},
	}}, alice.last(event.UserListName))
	req.Equal(event.UserJoined{Username: "Bob", ID: "b"}, alice.last(event.UserJoinedName))

	users, err := h.orch.Users(h.ctx)
	req.NoError(err)
	req.Len(users, 2)
}

func TestOrchestrator_JoinRequiresLogin(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	sink := h.connect("x")

	_, err := h.dispatch(domain.JoinCommand{Connection: "x", Username: "Nobody"})

	req.ErrorIs(err, errors.ErrNotAuthenticated)
	req.Equal("You must be logged in", failureReason(sink.last(event.ErrorName)))
}

func TestOrchestrator_GlobalMessageReachesJoinedConnections(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.online("a", alicePhone)
	bob := h.online("b", bobPhone)
	// Carol logged in but never joined the global chat
	carol := h.connect("c")
	_, err := h.dispatch(domain.LoginCommand{Connection: "c", Phone: carolPhone})
	req.NoError(err)

	v, err := h.dispatch(domain.SendMessageCommand{Connection: "a", Body: "hello world"})
	req.NoError(err)
	msg := v.(domain.Message)

	req.Equal(event.ReceiveMessage{Message: msg}, alice.last(event.ReceiveMessageName))
	req.Equal(event.ReceiveMessage{Message: msg}, bob.last(event.ReceiveMessageName))
	req.Empty(carol.named(event.ReceiveMessageName))
	req.Equal("Alice", msg.Sender)
	req.True(msg.Scope.IsGlobal())

	page, err := h.orch.Page(h.ctx, 1, 20)
	req.NoError(err)
	req.Equal([]domain.Message{msg}, page.Items)
	found, err := h.orch.Search(h.ctx, "HELLO")
	req.NoError(err)
	req.Equal([]domain.Message{msg}, found)
}

func TestOrchestrator_AnonymousCannotSend(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	sink := h.connect("x")

	_, err := h.dispatch(domain.SendMessageCommand{Connection: "x", Body: "hi"})

	req.ErrorIs(err, errors.ErrNotAuthenticated)
	req.NotNil(sink.last(event.ErrorName))
	page, _ := h.orch.Page(h.ctx, 1, 20)
	req.Zero(page.Total)
}

func TestOrchestrator_ConcurrentSendersShareOneOrder(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	conns := map[domain.ConnectionID]string{"a": alicePhone, "b": bobPhone, "c": carolPhone}
	for conn, phone := range conns {
		h.online(conn, phone)
	}
	h.resetAll()

	// When three senders post concurrently
	var wg sync.WaitGroup
	for conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, err := h.dispatch(domain.SendMessageCommand{Connection: conn, Body: fmt.Sprintf("%s-%d", conn, i)})
				req.NoError(err)
			}
		}()
	}
	wg.Wait()

	// Then every receiver saw the same strictly increasing sequence
	ids := func(s *recordingSink) []int64 {
		return lo.Map(s.named(event.ReceiveMessageName), func(e event.DomainEvent, _ int) int64 {
			return e.(event.ReceiveMessage).Message.ID
		})
	}
	reference := ids(h.sinks["a"])
	req.Len(reference, 60)
	req.IsIncreasing(reference)
	req.Equal(reference, ids(h.sinks["b"]))
	req.Equal(reference, ids(h.sinks["c"]))
}

func TestOrchestrator_PrivateChatJoinNotifiesBoth(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.online("a", alicePhone)
	bob := h.online("b", bobPhone)

	_, err := h.dispatch(domain.JoinPrivateChatCommand{Connection: "a", PartnerPhone: bobPhone})
	req.NoError(err)

	room := domain.RoomIDFor(alicePhone, bobPhone)
	req.Equal(event.PrivateChatJoined{PartnerUsername: "Bob", RoomID: room}, alice.last(event.PrivateChatJoinedName))
	req.Equal(event.PrivateChatJoined{PartnerUsername: "Alice", RoomID: room}, bob.last(event.PrivateChatJoinedName))
}

func TestOrchestrator_SimultaneousRequestsResolveToOneRoom(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.online("a", alicePhone)
	bob := h.online("b", bobPhone)

	// When both ask for each other at the same time
	var wg sync.WaitGroup
	for conn, partner := range map[domain.ConnectionID]string{"a": bobPhone, "b": alicePhone} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.dispatch(domain.JoinPrivateChatCommand{Connection: conn, PartnerPhone: partner})
			req.NoError(err)
		}()
	}
	wg.Wait()

	// Then every notification names the same room and the other party
	room := domain.RoomIDFor(alicePhone, bobPhone)
	for _, e := range alice.named(event.PrivateChatJoinedName) {
		req.Equal(event.PrivateChatJoined{PartnerUsername: "Bob", RoomID: room}, e)
	}
	for _, e := range bob.named(event.PrivateChatJoinedName) {
		req.Equal(event.PrivateChatJoined{PartnerUsername: "Alice", RoomID: room}, e)
	}
	req.Len(alice.named(event.PrivateChatJoinedName), 2)
	req.Equal([]domain.ConnectionID{"a", "b"}, h.orch.rooms.Members(room))
}

func TestOrchestrator_PrivateChatErrors(t *testing.T) {
	tests := []struct {
		name    string
		partner string
		reason  string
	}{
		{"unknown partner", "5559999999", "User not found"},
		{"self chat", alicePhone, "Cannot chat with yourself"},
		{"offline partner", davePhone, "User is not online"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			h := newHarness(t)
			alice := h.online("a", alicePhone)

			_, err := h.dispatch(domain.JoinPrivateChatCommand{Connection: "a", PartnerPhone: tt.partner})

			req.Error(err)
			req.Equal(tt.reason, failureReason(alice.last(event.PrivateChatErrorName)))
		})
	}
}

func TestOrchestrator_SwitchedMemberNoLongerReceivesOldRoom(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.online("a", alicePhone)
	bob := h.online("b", bobPhone)
	h.online("c", carolPhone)
	ab := domain.RoomIDFor(alicePhone, bobPhone)

	_, err := h.dispatch(domain.JoinPrivateChatCommand{Connection: "a", PartnerPhone: bobPhone})
	req.NoError(err)

	// When Alice switches to Carol
	_, err = h.dispatch(domain.JoinPrivateChatCommand{Connection: "a", PartnerPhone: carolPhone})
	req.NoError(err)

	// Then Bob is told Alice left
	req.Equal(event.PrivateChatPartnerLeft{RoomID: ab, Username: "Alice"}, bob.last(event.PrivateChatPartnerLeftName))

	// And Bob's message into A-B does not reach Alice
	alice.reset()
	_, err = h.dispatch(domain.SendPrivateMessageCommand{Connection: "b", Body: "are you there?"})
	req.NoError(err)
	req.Empty(alice.named(event.PrivateMessageName))
	req.Len(bob.named(event.PrivateMessageName), 1)
}

func TestOrchestrator_PrivateMessageStaysInRoom(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.online("a", alicePhone)
	bob := h.online("b", bobPhone)
	carol := h.online("c", carolPhone)
	_, err := h.dispatch(domain.JoinPrivateChatCommand{Connection: "a", PartnerPhone: bobPhone})
	req.NoError(err)

	v, err := h.dispatch(domain.SendPrivateMessageCommand{Connection: "a", Body: "secret"})
	req.NoError(err)
	msg := v.(domain.Message)

	req.Equal(event.PrivateMessage{Message: msg}, alice.last(event.PrivateMessageName))
	req.Equal(event.PrivateMessage{Message: msg}, bob.last(event.PrivateMessageName))
	req.Empty(carol.named(event.PrivateMessageName))
	req.Empty(carol.named(event.ReceiveMessageName))

	// Private messages never enter the global history
	page, _ := h.orch.Page(h.ctx, 1, 20)
	req.Zero(page.Total)
}

func TestOrchestrator_PrivateMessageOutsideRoom(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.online("a", alicePhone)

	_, err := h.dispatch(domain.SendPrivateMessageCommand{Connection: "a", Body: "hello?"})

	req.ErrorIs(err, errors.ErrNotInRoom)
	req.Equal("You are not in a private chat", failureReason(alice.last(event.PrivateChatErrorName)))
}

func TestOrchestrator_PrivateMessageToAnotherRoomIsRejected(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.online("a", alicePhone)
	bob := h.online("b", bobPhone)
	_, err := h.dispatch(domain.JoinPrivateChatCommand{Connection: "a", PartnerPhone: bobPhone})
	req.NoError(err)

	_, err = h.dispatch(domain.SendPrivateMessageCommand{Connection: "a", Body: "x", Room: "other_room"})

	req.ErrorIs(err, errors.ErrNotInRoom)
	req.Empty(bob.named(event.PrivateMessageName))
}

func TestOrchestrator_TypingFollowsDeclaredScope(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.online("a", alicePhone)
	bob := h.online("b", bobPhone)
	carol := h.online("c", carolPhone)
	_, err := h.dispatch(domain.JoinPrivateChatCommand{Connection: "a", PartnerPhone: bobPhone})
	req.NoError(err)
	room := domain.RoomIDFor(alicePhone, bobPhone)
	h.resetAll()

	// Global typing while sitting in a room still goes to the global chat
	_, err = h.dispatch(domain.TypingCommand{Connection: "a", IsTyping: true})
	req.NoError(err)
	req.Equal(event.TypingUsers{Usernames: []string{"Alice"}}, carol.last(event.TypingUsersName))
	req.Empty(bob.named(event.PrivateTypingUsersName))

	// Room typing only reaches the room
	_, err = h.dispatch(domain.TypingCommand{Connection: "b", IsTyping: true, Room: room})
	req.NoError(err)
	req.Equal(event.PrivateTypingUsers{RoomID: room, Usernames: []string{"Bob"}}, alice.last(event.PrivateTypingUsersName))
	req.Empty(carol.named(event.PrivateTypingUsersName))
	req.Equal(event.TypingUsers{Usernames: []string{"Alice"}}, carol.last(event.TypingUsersName))

	// A room the connection is not in is refused
	_, err = h.dispatch(domain.TypingCommand{Connection: "c", IsTyping: true, Room: room})
	req.ErrorIs(err, errors.ErrNotInRoom)
}

func TestOrchestrator_SweepAnnouncesLapsedTyping(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.online("a", alicePhone)
	bob := h.online("b", bobPhone)
	_, err := h.dispatch(domain.TypingCommand{Connection: "a", IsTyping: true})
	req.NoError(err)
	bob.reset()

	h.clock.Advance(3 * time.Second)
	_, err = h.dispatch(domain.SweepTypingCommand{})
	req.NoError(err)

	req.Equal(event.TypingUsers{Usernames: []string{}}, bob.last(event.TypingUsersName))
}

func TestOrchestrator_LeavePrivateChat(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.online("a", alicePhone)
	bob := h.online("b", bobPhone)
	_, err := h.dispatch(domain.JoinPrivateChatCommand{Connection: "a", PartnerPhone: bobPhone})
	req.NoError(err)
	room := domain.RoomIDFor(alicePhone, bobPhone)
	_, err = h.dispatch(domain.TypingCommand{Connection: "a", IsTyping: true, Room: room})
	req.NoError(err)

	_, err = h.dispatch(domain.LeavePrivateChatCommand{Connection: "a"})
	req.NoError(err)

	req.Equal(event.PrivateChatLeft{RoomID: room}, alice.last(event.PrivateChatLeftName))
	req.Equal(event.PrivateChatPartnerLeft{RoomID: room, Username: "Alice"}, bob.last(event.PrivateChatPartnerLeftName))
	req.Equal(event.PrivateTypingUsers{RoomID: room, Usernames: []string{}}, bob.last(event.PrivateTypingUsersName))

	_, err = h.dispatch(domain.LeavePrivateChatCommand{Connection: "a"})
	req.ErrorIs(err, errors.ErrNotInRoom)
}

func TestOrchestrator_DisconnectCleansEverything(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.online("a", alicePhone)
	bob := h.online("b", bobPhone)
	carol := h.online("c", carolPhone)
	_, err := h.dispatch(domain.JoinPrivateChatCommand{Connection: "a", PartnerPhone: bobPhone})
	req.NoError(err)
	room := domain.RoomIDFor(alicePhone, bobPhone)
	_, err = h.dispatch(domain.TypingCommand{Connection: "a", IsTyping: true})
	req.NoError(err)
	_, err = h.dispatch(domain.TypingCommand{Connection: "a", IsTyping: true, Room: room})
	req.NoError(err)
	h.resetAll()

	// When Alice's connection drops
	_, err = h.dispatch(domain.DisconnectCommand{Connection: "a"})
	req.NoError(err)

	// Then she is gone from presence, from every typing list and from the room
	users, err := h.orch.Users(h.ctx)
	req.NoError(err)
	req.NotContains(lo.Map(users, func(u domain.OnlineUser, _ int) domain.ConnectionID { return u.ID }), domain.ConnectionID("a"))
	req.Empty(h.orch.typing.ActiveTypists(domain.GlobalScope()))
	req.Empty(h.orch.typing.ActiveTypists(domain.RoomScope(room)))
	req.Equal([]domain.ConnectionID{"b"}, h.orch.rooms.Members(room))
	_, ok := h.orch.registry.Sink("a")
	req.False(ok)

	// And the others were told
	req.Equal(event.UserLeft{Username: "Alice", ID: "a"}, carol.last(event.UserLeftName))
	req.Equal(event.TypingUsers{Usernames: []string{}}, carol.last(event.TypingUsersName))
	req.Equal(event.PrivateChatPartnerLeft{RoomID: room, Username: "Alice"}, bob.last(event.PrivateChatPartnerLeftName))
	req.Equal(event.UserList{Users: []domain.OnlineUser{
		{ID: "b", Username: "Bob"},
		{ID: "c", Username: "Carol"},
	}}, bob.last(event.UserListName))
}

func TestOrchestrator_SecondLoginEvictsFirstConnection(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	old := h.online("a", alicePhone)
	bob := h.online("b", bobPhone)
	_, err := h.dispatch(domain.JoinPrivateChatCommand{Connection: "a", PartnerPhone: bobPhone})
	req.NoError(err)
	room := domain.RoomIDFor(alicePhone, bobPhone)

	// When Alice logs in again elsewhere
	h.online("a2", alicePhone)

	// Then the old connection lost its session and its room
	req.Equal(event.PrivateChatPartnerLeft{RoomID: room, Username: "Alice"}, bob.last(event.PrivateChatPartnerLeftName))
	req.Equal([]domain.ConnectionID{"b"}, h.orch.rooms.Members(room))
	_, err = h.dispatch(domain.SendMessageCommand{Connection: "a", Body: "ghost"})
	req.ErrorIs(err, errors.ErrNotAuthenticated)
	req.NotNil(old.last(event.ErrorName))

	// And the new one can rejoin the room with Bob
	_, err = h.dispatch(domain.JoinPrivateChatCommand{Connection: "b", PartnerPhone: alicePhone})
	req.NoError(err)
	req.Equal([]domain.ConnectionID{"a2", "b"}, h.orch.rooms.Members(room))
}

func TestOrchestrator_ModeratorAndArchive(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	moderator := mocks.NewMockModerator(ctrl)
	moderator.EXPECT().Censor("you badger").Return("you ******")
	archive := make(chan event.DomainEvent, 1)

	h := newHarness(t)
	h.orch.WithModerator(moderator).WithArchive(archive)
	alice := h.online("a", alicePhone)

	_, err := h.dispatch(domain.SendMessageCommand{Connection: "a", Body: "you badger"})
	req.NoError(err)

	received := alice.last(event.ReceiveMessageName).(event.ReceiveMessage)
	req.Equal("you ******", received.Message.Body)
	posted := (<-archive).(event.MessagePosted)
	req.Equal(received.Message, posted.Message)
}

func TestOrchestrator_IdsContinueAfterArchivedRun(t *testing.T) {
	req := require.New(t)
	archive := make(chan event.DomainEvent, 1)

	// Given a first run archiving one message
	first := newHarness(t)
	first.orch.WithArchive(archive)
	first.online("a", alicePhone)
	_, err := first.dispatch(domain.SendMessageCommand{Connection: "a", Body: "before restart"})
	req.NoError(err)
	last := (<-archive).(event.MessagePosted).Message.ID

	// When a second run resumes after the last archived id
	second := newHarness(t)
	second.orch.WithArchive(archive).ResumeAfter(last)
	second.online("a", alicePhone)
	_, err = second.dispatch(domain.SendMessageCommand{Connection: "a", Body: "after restart"})
	req.NoError(err)

	// Then the new message does not reuse the archived id
	next := (<-archive).(event.MessagePosted).Message.ID
	req.Greater(next, last)

	// And private room messages draw from the same sequence
	second.online("b", bobPhone)
	_, err = second.dispatch(domain.JoinPrivateChatCommand{Connection: "a", PartnerPhone: bobPhone})
	req.NoError(err)
	v, err := second.dispatch(domain.SendPrivateMessageCommand{Connection: "a", Body: "psst"})
	req.NoError(err)
	req.Greater(v.(domain.Message).ID, next)
}

// panickingSink blows up the loop on its first notification.
type panickingSink struct{}

func (panickingSink) Consume(context.Context, event.DomainEvent) error {
	panic("sink exploded")
}

func TestOrchestrator_PanicIsReportedAndStateSurvives(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.online("a", alicePhone)
	req.NoError(h.orch.Connect(h.ctx, "boom", panickingSink{}))

	// When a command makes the loop panic
	_, err := h.dispatch(domain.RegisterCommand{Connection: "boom", Phone: "5551112222", Username: "Erin"})

	// Then the caller gets an error instead of hanging
	req.ErrorIs(err, errors.ErrWorkerPanic)

	// And a restarted loop still holds the earlier state
	go func() { _ = h.orch.Run(h.ctx) }()
	stats, err := h.orch.Stats(h.ctx)
	req.NoError(err)
	req.Equal(1, stats.Online)
	req.Equal(5, stats.Identities)
}

func TestOrchestrator_DispatchGivesUpWithContext(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIdentityStore(ctrl)
	// A loop that never runs
	orch := NewOrchestrator(logs.GetLoggerFromLevel(slog.LevelDebug), store, NewRegistry(), OrchestratorConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := orch.Dispatch(ctx, domain.UsersQuery{})

	req.ErrorIs(err, errors.ErrCoordinatorClosed)
	req.ErrorIs(err, context.DeadlineExceeded)
}
