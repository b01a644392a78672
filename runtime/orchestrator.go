// Package runtime owns the chat state and serializes every change to it.
// The Orchestrator is the only writer of the tables; all callers talk to it
// through typed commands answered on a reply channel.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var _ contract.Worker = (*Orchestrator)(nil)

type OrchestratorConfig struct {
	HistoryLimit      int
	RoomHistoryLimit  int
	TypingQuietPeriod time.Duration
	CommandBufferSize int
	Now               func() time.Time
}

type Orchestrator struct {
	log        *slog.Logger
	identities *IdentityRegistry
	presence   *PresenceTable
	messages   *MessageStore
	typing     *TypingAggregator
	rooms      *RoomCoordinator
	sequence   *domain.Sequence
	registry   *Registry
	moderator  contract.Moderator
	archive    chan<- event.DomainEvent
	commands   chan envelope
}

// Stats is a point-in-time view of the tables, used by /health.
type Stats struct {
	Connections int `json:"connections"`
	Sessions    int `json:"sessions"`
	Online      int `json:"online"`
	Identities  int `json:"identities"`
	Messages    int `json:"messages"`
	Rooms       int `json:"rooms"`
}

type envelope struct {
	cmd   any
	reply chan result
}

type result struct {
	value any
	err   error
}

// connectCommand and statsCommand never leave this package.
type connectCommand struct {
	conn domain.ConnectionID
	sink contract.EventSink
}

type statsCommand struct{}

func NewOrchestrator(log *slog.Logger, store contract.IdentityStore, registry *Registry, cfg OrchestratorConfig) *Orchestrator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.CommandBufferSize < 1 {
		cfg.CommandBufferSize = 1
	}
	seq := &domain.Sequence{}
	identities := NewIdentityRegistry(log, store)
	presence := NewPresenceTable()
	return &Orchestrator{
		log:        log,
		identities: identities,
		presence:   presence,
		messages:   NewMessageStore(cfg.HistoryLimit, seq, now),
		typing:     NewTypingAggregator(cfg.TypingQuietPeriod, now),
		rooms:      NewRoomCoordinator(identities, presence, cfg.RoomHistoryLimit, seq, now),
		sequence:   seq,
		registry:   registry,
		commands:   make(chan envelope, cfg.CommandBufferSize),
	}
}

// WithModerator masks censored words of every message body before it is stored.
func (o *Orchestrator) WithModerator(m contract.Moderator) *Orchestrator {
	o.moderator = m
	return o
}

// WithArchive publishes every stored global message on ch. Publishing never blocks.
func (o *Orchestrator) WithArchive(ch chan<- event.DomainEvent) *Orchestrator {
	o.archive = ch
	return o
}

// ResumeAfter continues message ids after last, the greatest id a previous
// run archived. It must be called before Run.
func (o *Orchestrator) ResumeAfter(last int64) *Orchestrator {
	o.sequence.ResumeAfter(last)
	return o
}

// Load reads the identity store. It must be called before Run.
func (o *Orchestrator) Load(ctx context.Context) error {
	return o.identities.Load(ctx)
}

func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.Info("Orchestrator loop started")
	for {
		select {
		case <-ctx.Done():
			o.log.Debug("Context done, stopping orchestrator loop")
			return nil
		case env := <-o.commands:
			if err := o.process(ctx, env); err != nil {
				return err
			}
		}
	}
}

// process answers env even when its handler panics, then hands the failure
// to the supervisor. The tables survive the restart.
func (o *Orchestrator) process(ctx context.Context, env envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("Command handler panicked", "command", fmt.Sprintf("%T", env.cmd), "panic", r)
			env.reply <- result{err: errors.ErrWorkerPanic}
			err = errors.ErrWorkerPanic
		}
	}()
	value, herr := o.handle(ctx, env.cmd)
	env.reply <- result{value: value, err: herr}
	return nil
}

// Dispatch submits cmd to the loop and waits for its outcome.
// Notifications caused by cmd are delivered before Dispatch returns.
func (o *Orchestrator) Dispatch(ctx context.Context, cmd domain.Command) (any, error) {
	return o.submit(ctx, cmd)
}

// Connect registers the sink of a new connection.
func (o *Orchestrator) Connect(ctx context.Context, conn domain.ConnectionID, sink contract.EventSink) error {
	_, err := o.submit(ctx, connectCommand{conn: conn, sink: sink})
	return err
}

func (o *Orchestrator) Page(ctx context.Context, page, limit int) (MessagePage, error) {
	v, err := o.submit(ctx, domain.PageQuery{Page: page, Limit: limit})
	if err != nil {
		return MessagePage{}, err
	}
	return v.(MessagePage), nil
}

func (o *Orchestrator) Search(ctx context.Context, query string) ([]domain.Message, error) {
	v, err := o.submit(ctx, domain.SearchQuery{Query: query})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Message), nil
}

func (o *Orchestrator) Users(ctx context.Context) ([]domain.OnlineUser, error) {
	v, err := o.submit(ctx, domain.UsersQuery{})
	if err != nil {
		return nil, err
	}
	return v.([]domain.OnlineUser), nil
}

func (o *Orchestrator) Stats(ctx context.Context) (Stats, error) {
	v, err := o.submit(ctx, statsCommand{})
	if err != nil {
		return Stats{}, err
	}
	return v.(Stats), nil
}

// HistoryLimit is fixed at construction and safe to read from any goroutine.
func (o *Orchestrator) HistoryLimit() int {
	return o.messages.Capacity()
}

func (o *Orchestrator) submit(ctx context.Context, cmd any) (any, error) {
	env := envelope{cmd: cmd, reply: make(chan result, 1)}
	select {
	case o.commands <- env:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", errors.ErrCoordinatorClosed, ctx.Err())
	}
	select {
	case res := <-env.reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", errors.ErrCoordinatorClosed, ctx.Err())
	}
}

func (o *Orchestrator) handle(ctx context.Context, cmd any) (any, error) {
	switch c := cmd.(type) {
	case connectCommand:
		o.registry.Subscribe(c.conn, c.sink)
		o.log.Debug("Connection registered", "connection_id", c.conn)
		return nil, nil
	case domain.RegisterCommand:
		return o.register(ctx, c)
	case domain.LoginCommand:
		return o.login(ctx, c)
	case domain.JoinCommand:
		return o.join(ctx, c)
	case domain.SendMessageCommand:
		return o.sendMessage(ctx, c)
	case domain.TypingCommand:
		return nil, o.setTyping(ctx, c)
	case domain.JoinPrivateChatCommand:
		return o.joinPrivateChat(ctx, c)
	case domain.SendPrivateMessageCommand:
		return o.sendPrivateMessage(ctx, c)
	case domain.LeavePrivateChatCommand:
		return o.leavePrivateChat(ctx, c)
	case domain.DisconnectCommand:
		o.disconnect(ctx, c)
		return nil, nil
	case domain.SweepTypingCommand:
		for _, scope := range o.typing.Sweep() {
			o.broadcastTyping(ctx, scope)
		}
		return nil, nil
	case domain.PageQuery:
		return o.messages.Page(c.Page, min(c.Limit, o.messages.Capacity())), nil
	case domain.SearchQuery:
		return o.messages.Search(c.Query), nil
	case domain.UsersQuery:
		return o.presence.Snapshot(), nil
	case statsCommand:
		return Stats{
			Connections: o.registry.Len(),
			Sessions:    o.presence.Len(),
			Online:      len(o.presence.GlobalAudience()),
			Identities:  o.identities.Len(),
			Messages:    o.messages.Len(),
			Rooms:       o.rooms.Len(),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T", errors.ErrUnknownEvent, cmd)
	}
}

func (o *Orchestrator) register(ctx context.Context, c domain.RegisterCommand) (any, error) {
	identity, err := o.identities.Register(ctx, c.Phone, c.Username)
	if err != nil {
		return nil, o.fail(ctx, c.Connection, event.RegistrationErrorName, err)
	}
	o.notify(ctx, c.Connection, event.RegistrationSuccess{Phone: identity.Key, Username: identity.DisplayName})
	return identity, nil
}

// login binds the connection. A connection already bound to the same
// identity is evicted from presence, rooms and typing without being told.
func (o *Orchestrator) login(ctx context.Context, c domain.LoginCommand) (any, error) {
	if strings.TrimSpace(c.Phone) == "" {
		return nil, o.fail(ctx, c.Connection, event.LoginErrorName, errors.ErrPhoneRequired)
	}
	key, err := domain.NormalizePhone(c.Phone)
	if err != nil {
		return nil, o.fail(ctx, c.Connection, event.LoginErrorName, err)
	}
	name, ok := o.identities.Lookup(key)
	if !ok {
		return nil, o.fail(ctx, c.Connection, event.LoginErrorName, errors.ErrPhoneNotFound)
	}

	res := o.presence.Bind(c.Connection, key, name)
	if res.Previous != nil && res.Previous.IdentityKey != key {
		o.releaseSession(ctx, *res.Previous)
	}
	if res.Superseded != nil {
		o.log.Info("Login supersedes previous connection",
			"identity", key, "connection_id", c.Connection, "superseded", res.Superseded.ConnectionID)
		o.releaseSession(ctx, *res.Superseded)
	}

	o.log.Info("User logged in", "identity", key, "connection_id", c.Connection)
	o.notify(ctx, c.Connection, event.LoginSuccess{Phone: key, Username: name})
	return res.Session, nil
}

func (o *Orchestrator) join(ctx context.Context, c domain.JoinCommand) (any, error) {
	before, ok := o.presence.Resolve(c.Connection)
	if !ok {
		return nil, o.fail(ctx, c.Connection, event.ErrorName, errors.ErrNotAuthenticated)
	}
	session, _ := o.presence.MarkJoined(c.Connection)
	if before.InGlobal {
		o.notify(ctx, c.Connection, event.UserList{Users: o.presence.Snapshot()})
		return session, nil
	}

	o.log.Info("User joined the chat", "connection_id", c.Connection, "username", session.DisplayName)
	audience := o.presence.GlobalAudience()
	o.broadcast(ctx, audience, event.UserList{Users: o.presence.Snapshot()})
	o.broadcast(ctx, audience, event.UserJoined{Username: session.DisplayName, ID: session.ConnectionID})
	return session, nil
}

func (o *Orchestrator) sendMessage(ctx context.Context, c domain.SendMessageCommand) (any, error) {
	session, ok := o.presence.Resolve(c.Connection)
	if !ok {
		return nil, o.fail(ctx, c.Connection, event.ErrorName, errors.ErrNotAuthenticated)
	}
	msg := o.messages.Append(domain.Message{
		Sender:             session.DisplayName,
		SenderConnectionID: c.Connection,
		Body:               o.moderate(c.Body),
		Scope:              domain.GlobalScope(),
	})
	o.broadcast(ctx, o.presence.GlobalAudience(), event.ReceiveMessage{Message: msg})
	o.publish(event.MessagePosted{Message: msg})
	return msg, nil
}

// setTyping follows the scope named by the command, never the room the
// connection happens to be in.
func (o *Orchestrator) setTyping(ctx context.Context, c domain.TypingCommand) error {
	session, ok := o.presence.Resolve(c.Connection)
	if !ok {
		o.log.Debug("Typing signal from anonymous connection ignored", "connection_id", c.Connection)
		return errors.ErrNotAuthenticated
	}
	scope := domain.GlobalScope()
	if c.Room != "" {
		if current, ok := o.rooms.RoomOf(c.Connection); !ok || current != c.Room {
			return o.fail(ctx, c.Connection, event.PrivateChatErrorName, errors.ErrNotInRoom)
		}
		scope = domain.RoomScope(c.Room)
	}
	if o.typing.SetTyping(session.IdentityKey, session.DisplayName, scope, c.IsTyping) {
		o.broadcastTyping(ctx, scope)
	}
	return nil
}

func (o *Orchestrator) joinPrivateChat(ctx context.Context, c domain.JoinPrivateChatCommand) (any, error) {
	session, ok := o.presence.Resolve(c.Connection)
	if !ok {
		return nil, o.fail(ctx, c.Connection, event.PrivateChatErrorName, errors.ErrNotAuthenticated)
	}
	res, err := o.rooms.RequestPrivateChat(c.Connection, session.IdentityKey, c.PartnerPhone)
	if err != nil {
		return nil, o.fail(ctx, c.Connection, event.PrivateChatErrorName, err)
	}
	for _, d := range res.Detachments {
		o.afterDeparture(ctx, d)
	}

	o.log.Info("Private chat joined", "room_id", res.Room, "identity", session.IdentityKey, "created", res.Created)
	o.notify(ctx, c.Connection, event.PrivateChatJoined{PartnerUsername: res.PartnerDisplayName, RoomID: res.Room})
	o.notify(ctx, res.PartnerConnection, event.PrivateChatJoined{PartnerUsername: session.DisplayName, RoomID: res.Room})
	return res, nil
}

func (o *Orchestrator) sendPrivateMessage(ctx context.Context, c domain.SendPrivateMessageCommand) (any, error) {
	session, ok := o.presence.Resolve(c.Connection)
	if !ok {
		return nil, o.fail(ctx, c.Connection, event.PrivateChatErrorName, errors.ErrNotAuthenticated)
	}
	if c.Room != "" {
		if current, ok := o.rooms.RoomOf(c.Connection); ok && current != c.Room {
			return nil, o.fail(ctx, c.Connection, event.PrivateChatErrorName, errors.ErrNotInRoom)
		}
	}
	msg, recipients, err := o.rooms.SendToRoom(c.Connection, session.DisplayName, o.moderate(c.Body))
	if err != nil {
		return nil, o.fail(ctx, c.Connection, event.PrivateChatErrorName, err)
	}
	o.broadcast(ctx, recipients, event.PrivateMessage{Message: msg})
	return msg, nil
}

func (o *Orchestrator) leavePrivateChat(ctx context.Context, c domain.LeavePrivateChatCommand) (any, error) {
	d, ok := o.rooms.Leave(c.Connection)
	if !ok {
		return nil, o.fail(ctx, c.Connection, event.PrivateChatErrorName, errors.ErrNotInRoom)
	}
	o.afterDeparture(ctx, d)
	o.notify(ctx, c.Connection, event.PrivateChatLeft{RoomID: d.Room})
	return d, nil
}

// disconnect runs the whole cleanup in one loop iteration so no observer can
// see a half-removed connection.
func (o *Orchestrator) disconnect(ctx context.Context, c domain.DisconnectCommand) {
	o.registry.Unsubscribe(c.Connection)
	session, bound := o.presence.Unbind(c.Connection)
	if !bound {
		o.log.Debug("Anonymous connection closed", "connection_id", c.Connection)
		return
	}
	o.releaseSession(ctx, session)
	o.log.Info("User left the chat", "connection_id", c.Connection, "identity", session.IdentityKey)
}

// releaseSession clears everything a session held besides presence itself.
func (o *Orchestrator) releaseSession(ctx context.Context, session domain.Session) {
	if d, ok := o.rooms.Leave(session.ConnectionID); ok {
		o.afterDeparture(ctx, d)
	}
	for _, scope := range o.typing.ClearIdentity(session.IdentityKey) {
		o.broadcastTyping(ctx, scope)
	}
	if session.InGlobal {
		audience := o.presence.GlobalAudience()
		o.broadcast(ctx, audience, event.UserLeft{Username: session.DisplayName, ID: session.ConnectionID})
		o.broadcast(ctx, audience, event.UserList{Users: o.presence.Snapshot()})
	}
}

// afterDeparture clears the room typing of the leaver and tells the member left behind.
func (o *Orchestrator) afterDeparture(ctx context.Context, d Departure) {
	scope := domain.RoomScope(d.Room)
	if o.typing.ClearScope(d.IdentityKey, scope) {
		o.broadcastTyping(ctx, scope)
	}
	if len(d.Remaining) == 0 {
		o.log.Debug("Private room discarded", "room_id", d.Room)
		return
	}
	name, _ := o.identities.Lookup(d.IdentityKey)
	o.broadcast(ctx, d.Remaining, event.PrivateChatPartnerLeft{RoomID: d.Room, Username: name})
}

func (o *Orchestrator) broadcastTyping(ctx context.Context, scope domain.Scope) {
	names := o.typing.ActiveTypists(scope)
	if scope.IsGlobal() {
		o.broadcast(ctx, o.presence.GlobalAudience(), event.TypingUsers{Usernames: names})
		return
	}
	o.broadcast(ctx, o.rooms.Members(scope.Room), event.PrivateTypingUsers{RoomID: scope.Room, Usernames: names})
}

// fail tells conn why its command was rejected and returns err unchanged.
func (o *Orchestrator) fail(ctx context.Context, conn domain.ConnectionID, name string, err error) error {
	if errors.KindOf(err) == errors.KindState {
		o.log.Warn("Unexpected client state", "connection_id", conn, "event", name, "error", err)
	} else {
		o.log.Debug("Command rejected", "connection_id", conn, "event", name, "error", err)
	}
	o.notify(ctx, conn, event.Failure{Name: name, Reason: errors.Reason(err)})
	return err
}

func (o *Orchestrator) notify(ctx context.Context, conn domain.ConnectionID, evt event.DomainEvent) {
	sink, ok := o.registry.Sink(conn)
	if !ok {
		return
	}
	if err := sink.Consume(ctx, evt); err != nil {
		o.log.Warn("Notification dropped", "connection_id", conn, "event", evt.EventName(), "error", err)
	}
}

func (o *Orchestrator) broadcast(ctx context.Context, conns []domain.ConnectionID, evt event.DomainEvent) {
	for _, conn := range conns {
		o.notify(ctx, conn, evt)
	}
}

func (o *Orchestrator) publish(evt event.DomainEvent) {
	if o.archive == nil {
		return
	}
	select {
	case o.archive <- evt:
	default:
		o.log.Debug("Archive event lost", "event", evt.EventName())
	}
}

func (o *Orchestrator) moderate(body string) string {
	if o.moderator == nil {
		return body
	}
	return o.moderator.Censor(body)
}
