package api

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const idleLimiterTTL = 10 * time.Minute

var _ contract.Worker = (*LimiterStore)(nil)

// LimiterStore keeps one token bucket per key and forgets keys idle for
// longer than idleLimiterTTL. Run performs that cleanup under the supervisor.
type LimiterStore struct {
	mu              sync.Mutex
	log             *slog.Logger
	limit           rate.Limit
	burst           int
	clients         map[string]*clientEntry
	cleanupInterval time.Duration
	now             func() time.Time
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiterStore allows limitPerMinute events per key, burst at once.
func NewLimiterStore(log *slog.Logger, limitPerMinute, burst int, cleanupInterval time.Duration) *LimiterStore {
	if limitPerMinute <= 0 {
		limitPerMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &LimiterStore{
		log:             log,
		limit:           rate.Every(time.Minute / time.Duration(limitPerMinute)),
		burst:           burst,
		clients:         map[string]*clientEntry{},
		cleanupInterval: cleanupInterval,
		now:             time.Now,
	}
}

func (s *LimiterStore) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if removed := s.cleanup(); removed > 0 {
				s.log.Debug("Idle rate limiters removed", "count", removed)
			}
		}
	}
}

func (s *LimiterStore) cleanup() int {
	cutoff := s.now().Add(-idleLimiterTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, entry := range s.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(s.clients, key)
			removed++
		}
	}
	return removed
}

func (s *LimiterStore) limiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.clients[key]; ok {
		entry.lastSeen = s.now()
		return entry.limiter
	}
	limiter := rate.NewLimiter(s.limit, s.burst)
	s.clients[key] = &clientEntry{limiter: limiter, lastSeen: s.now()}
	return limiter
}

// Allow reports whether one more event for key is permitted now.
func (s *LimiterStore) Allow(key string) bool {
	return s.limiter(key).AllowN(s.now(), 1)
}

func (s *LimiterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// newEventLimiter bounds the inbound event rate of a single connection.
// A non positive eventsPerSecond disables the limit.
func newEventLimiter(eventsPerSecond float64, burst int) *rate.Limiter {
	if eventsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(eventsPerSecond), burst)
}

// clientIP reads RemoteAddr, which RealIP rewrites only for trusted proxies.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
