package api

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/sink"
	"context"
	goerrors "errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 * 1024
	disconnectWait = 5 * time.Second
)

type coordinator interface {
	Connect(ctx context.Context, conn domain.ConnectionID, sink contract.EventSink) error
	Dispatch(ctx context.Context, cmd domain.Command) (any, error)
}

type WebsocketConfig struct {
	ConnectionBufferSize int
	EventsPerSecond      float64
	EventBurst           int
	MaxContentLength     int
	// AllowedOrigin is matched against the Origin header. Empty or "*" accepts any.
	AllowedOrigin string
}

// WebsocketHandler upgrades /ws requests and bridges one connection to the
// coordinator: a read pump decoding inbound events and a write pump draining
// the connection sink.
type WebsocketHandler struct {
	ctx         context.Context
	log         *slog.Logger
	coordinator coordinator
	authLimiter *LimiterStore
	decoder     Decoder
	upgrader    websocket.Upgrader
	cfg         WebsocketConfig
}

// NewWebsocketHandler ties every connection to ctx: canceling it ends them all.
// authLimiter may be nil to leave register and login unlimited.
func NewWebsocketHandler(
	ctx context.Context,
	log *slog.Logger,
	coordinator coordinator,
	authLimiter *LimiterStore,
	cfg WebsocketConfig,
) *WebsocketHandler {
	h := &WebsocketHandler{
		ctx:         ctx,
		log:         log,
		coordinator: coordinator,
		authLimiter: authLimiter,
		decoder:     NewDecoder(cfg.MaxContentLength),
		cfg:         cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WebsocketHandler) checkOrigin(r *http.Request) bool {
	if h.cfg.AllowedOrigin == "" || h.cfg.AllowedOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == h.cfg.AllowedOrigin
}

func (h *WebsocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already answered the client
		h.log.Debug("Websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()

	conn := domain.NewConnectionID()
	log := h.log.With("connection_id", conn)
	out := sink.NewConnectionSink(h.cfg.ConnectionBufferSize, log)
	if err := h.coordinator.Connect(ctx, conn, out); err != nil {
		log.Warn("Connection refused by coordinator", "error", err)
		_ = ws.Close()
		return
	}
	log.Info("Connection opened", "remote", clientIP(r))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writePump(log, ws, out)
	}()

	h.readPump(ctx, log, ws, conn, out, clientIP(r))

	// The loop removes the sink before answering, nothing is queued after this.
	// On shutdown the loop is gone and there is nobody left to tell.
	if h.ctx.Err() == nil {
		disconnectCtx, cancelDisconnect := context.WithTimeout(context.WithoutCancel(ctx), disconnectWait)
		if _, err := h.coordinator.Dispatch(disconnectCtx, domain.DisconnectCommand{Connection: conn}); err != nil {
			log.Warn("Disconnect not processed", "error", err)
		}
		cancelDisconnect()
	}
	out.Close()
	wg.Wait()
	_ = ws.Close()
	log.Info("Connection closed")
}

func (h *WebsocketHandler) readPump(
	ctx context.Context,
	log *slog.Logger,
	ws *websocket.Conn,
	conn domain.ConnectionID,
	out *sink.ConnectionSink,
	ip string,
) {
	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Closing the socket is the only way to unblock ReadMessage on shutdown
	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	events := newEventLimiter(h.cfg.EventsPerSecond, h.cfg.EventBurst)
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("Websocket read failed", "error", err)
			}
			return
		}
		if !events.Allow() {
			h.reject(ctx, log, out, event.ErrorName, errors.ErrRateLimited)
			continue
		}

		name, cmd, err := h.decoder.Decode(conn, frame)
		if err != nil {
			h.reject(ctx, log, out, FailureEvent(name), err)
			continue
		}
		if h.authLimiter != nil && (name == RegisterEvent || name == LoginEvent) && !h.authLimiter.Allow(ip) {
			h.reject(ctx, log, out, FailureEvent(name), errors.ErrRateLimited)
			continue
		}

		// Rejections are answered by the coordinator itself
		if _, err := h.coordinator.Dispatch(ctx, cmd); err != nil {
			if goerrors.Is(err, errors.ErrCoordinatorClosed) {
				log.Info("Coordinator gone, closing connection")
				return
			}
			log.Debug("Command rejected", "event", name, "error", err)
		}
	}
}

func (h *WebsocketHandler) reject(ctx context.Context, log *slog.Logger, out *sink.ConnectionSink, name string, err error) {
	log.Debug("Inbound event refused", "event", name, "error", err)
	if err := out.Consume(ctx, event.Failure{Name: name, Reason: errors.Reason(err)}); err != nil {
		log.Warn("Notification dropped", "event", name, "error", err)
	}
}

func (h *WebsocketHandler) writePump(log *slog.Logger, ws *websocket.Conn, out *sink.ConnectionSink) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-out.Frames():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug("Websocket write failed", "error", err)
				// Unblocks the read pump, which then drives the disconnect
				_ = ws.Close()
				drain(out)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = ws.Close()
				drain(out)
				return
			}
		}
	}
}

// drain discards frames until the sink is closed.
func drain(out *sink.ConnectionSink) {
	for range out.Frames() {
	}
}
