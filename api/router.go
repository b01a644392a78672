package api

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	defaultPage         = 1
	defaultPageLimit    = 20
	defaultArchiveLimit = 20
	maxArchiveLimit     = 100
)

type queries interface {
	Page(ctx context.Context, page, limit int) (runtime.MessagePage, error)
	Search(ctx context.Context, query string) ([]domain.Message, error)
	Users(ctx context.Context) ([]domain.OnlineUser, error)
	HistoryLimit() int
}

type archiveIndex interface {
	Search(ctx context.Context, query string, limit int) ([]int64, error)
}

// Archive answers full-text queries from the bluge index and the badger archive.
type Archive struct {
	Index      archiveIndex
	Repository repositories.IArchiveRepository
}

type messagesResponse struct {
	Messages []domain.Message `json:"messages"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
	HasMore  bool             `json:"hasMore"`
}

type searchResponse struct {
	Messages []domain.Message `json:"messages"`
}

type archiveResponse struct {
	Messages []repositories.ArchivedMessage `json:"messages"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// RouterConfig holds the HTTP surface options.
type RouterConfig struct {
	// TrustProxy takes the client address from X-Forwarded-For and X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers, since the
	// auth limiter is keyed on that address.
	TrustProxy bool
}

type routes struct {
	log     *slog.Logger
	queries queries
	archive *Archive
}

// NewRouter mounts the read surface, /health and the websocket endpoint.
// archive is nil when the archive is disabled.
func NewRouter(log *slog.Logger, q queries, archive *Archive, health http.Handler, ws http.Handler, cfg RouterConfig) http.Handler {
	rt := routes{log: log, queries: q, archive: archive}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Chat relay is running"))
	})
	r.Method(http.MethodGet, "/health", health)
	r.Method(http.MethodGet, "/ws", ws)

	r.Route("/api", func(api chi.Router) {
		api.Get("/messages", rt.messages)
		api.Get("/messages/search", rt.search)
		api.Get("/messages/archive", rt.archived)
		api.Get("/users", rt.users)
	})
	return r
}

func (rt routes) messages(w http.ResponseWriter, r *http.Request) {
	page := positiveInt(r.URL.Query().Get("page"), defaultPage)
	limit := min(positiveInt(r.URL.Query().Get("limit"), defaultPageLimit), rt.queries.HistoryLimit())

	result, err := rt.queries.Page(r.Context(), page, limit)
	if err != nil {
		rt.unavailable(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messagesResponse{
		Messages: result.Items,
		Total:    result.Total,
		Page:     page,
		Limit:    limit,
		HasMore:  result.HasMore,
	})
}

func (rt routes) search(w http.ResponseWriter, r *http.Request) {
	found, err := rt.queries.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		rt.unavailable(w, err)
		return
	}
	respondJSON(w, http.StatusOK, searchResponse{Messages: found})
}

func (rt routes) users(w http.ResponseWriter, r *http.Request) {
	users, err := rt.queries.Users(r.Context())
	if err != nil {
		rt.unavailable(w, err)
		return
	}
	if users == nil {
		users = []domain.OnlineUser{}
	}
	respondJSON(w, http.StatusOK, users)
}

func (rt routes) archived(w http.ResponseWriter, r *http.Request) {
	if rt.archive == nil {
		respondJSON(w, http.StatusNotFound, errorResponse{Error: errors.Reason(errors.ErrArchiveDisabled)})
		return
	}
	limit := min(positiveInt(r.URL.Query().Get("limit"), defaultArchiveLimit), maxArchiveLimit)
	ids, err := rt.archive.Index.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		rt.log.Error("Archive search failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "archive search failed"})
		return
	}
	found, err := rt.archive.Repository.Get(ids)
	if err != nil {
		rt.log.Error("Archive read failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "archive search failed"})
		return
	}
	if found == nil {
		found = []repositories.ArchivedMessage{}
	}
	respondJSON(w, http.StatusOK, archiveResponse{Messages: found})
}

func (rt routes) unavailable(w http.ResponseWriter, err error) {
	rt.log.Warn("Coordinator query failed", "error", err)
	respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "service unavailable"})
}

// positiveInt falls back to def for missing, malformed or non positive values.
func positiveInt(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Debug("HTTP request",
					"request_id", middleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
