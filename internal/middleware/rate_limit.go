package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// Hard cap on tracked clients; above this the stalest entries are evicted.
	maxVisitors = 10000
	// Sweep cadence for the background cleanup.
	sweepInterval = 5 * time.Minute
	// A client idle longer than this is forgotten.
	visitorTTL = 15 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a per-client token bucket to HTTP requests. Clients
// are keyed by IP, so it sits behind the RealIP middleware.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter builds a limiter allowing requestsPerSecond sustained with
// the given burst, and starts its cleanup sweep.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		stopCh:   make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// Allow consumes one token for the client key, creating its bucket on first
// sight.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	v, ok := rl.visitors[key]
	if !ok {
		if len(rl.visitors) >= maxVisitors {
			rl.evictStalest()
		}
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	limiter := v.limiter
	rl.mu.Unlock()

	return limiter.Allow()
}

// Stop terminates the cleanup sweep. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-visitorTTL)
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
		}
	}
}

// evictStalest drops the least recently seen client. Caller holds rl.mu.
func (rl *RateLimiter) evictStalest() {
	var stalestKey string
	var stalest time.Time
	for key, v := range rl.visitors {
		if stalestKey == "" || v.lastSeen.Before(stalest) {
			stalestKey = key
			stalest = v.lastSeen
		}
	}
	if stalestKey != "" {
		delete(rl.visitors, stalestKey)
	}
}

// Middleware wraps handlers with the limiter, answering 429 when a client
// is over budget.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientKey(r)) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, `{"error":"Rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey prefers the bare IP so reconnecting clients share one bucket;
// RealIP has already rewritten RemoteAddr when a proxy header is present.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
