// Package ratelimit limits requests per client with a fixed one-minute
// window.
package ratelimit

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"koperasi/internal/cache"
)

type Limiter struct {
	mu      sync.Mutex
	clients *cache.LRUCache[*window]
	limit   int
	now     func() time.Time
	hits    atomic.Int64
}

type window struct {
	start    time.Time
	requests int
}

type Config struct {
	RequestsPerMinute int
	// MaxClients bounds memory; the least recently seen client is dropped
	// first.
	MaxClients int
}

func DefaultConfig() Config {
	return Config{RequestsPerMinute: 60, MaxClients: 10000}
}

// NewLimiter builds a limiter. Idle client windows expire after ten
// minutes; register the limiter with a cache.Manager to sweep them.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	return &Limiter{
		clients: cache.NewLRUCache[*window](cfg.MaxClients, 10*time.Minute),
		limit:   cfg.RequestsPerMinute,
		now:     time.Now,
	}
}

// Allow counts one request from clientIP and reports whether it fits the
// current window.
func (rl *Limiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.clients.Get(clientIP)
	if !ok || now.Sub(w.start) >= time.Minute {
		rl.clients.Set(clientIP, &window{start: now, requests: 1})
		return true
	}
	w.requests++
	if w.requests > rl.limit {
		rl.hits.Add(1)
		return false
	}
	return true
}

// CleanExpired drops idle clients. It makes the limiter a cache.Cleaner.
func (rl *Limiter) CleanExpired() int {
	return rl.clients.CleanExpired()
}

func (rl *Limiter) ActiveClients() int {
	return rl.clients.Size()
}

type Metrics struct {
	TotalHits   int64
	ClientCount int64
}

func (rl *Limiter) GetMetrics() Metrics {
	return Metrics{TotalHits: rl.hits.Load(), ClientCount: int64(rl.clients.Size())}
}

// Middleware rejects requests over the limit with onLimit, or a plain 429
// when onLimit is nil.
func (rl *Limiter) Middleware(extractIP func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(extractIP(r)) {
				w.Header().Set("Retry-After", "60")
				if onLimit != nil {
					onLimit(w, r)
				} else {
					http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
