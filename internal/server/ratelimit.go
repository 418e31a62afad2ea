package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/safemobile/docbot/internal/logging"
)

const (
	// defaultRateLimit is the sustained requests-per-second allowed per IP on
	// rate-limited endpoints. Each ask request fans out to an embedding call
	// and a chat completion that can run for tens of seconds, so the default
	// is sized for a documentation assistant, not a generic API.
	defaultRateLimit = 2

	// defaultRateBurst is the per-IP burst capacity. Five queued questions is
	// plenty for an interactive client; anything more is a retry loop.
	defaultRateBurst = 5

	// evictInterval is how often stale per-IP buckets are swept.
	evictInterval = 2 * time.Minute

	// limiterTTL is how long an idle IP keeps its bucket. It exceeds the
	// write timeout so an in-flight completion never loses its entry.
	limiterTTL = 10 * time.Minute
)

// ipLimiter pairs a token bucket with the time its IP was last seen.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-IP token-bucket limit on HTTP handlers. Idle
// entries are swept periodically to bound the map.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter

	rps   rate.Limit
	burst int
	log   *slog.Logger
}

// newRateLimiter constructs a rateLimiter and starts its sweep goroutine.
// The goroutine exits when the returned stop function is called.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		limiters: make(map[string]*ipLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		log:      log,
	}

	stopCh := make(chan struct{})
	go rl.sweepLoop(stopCh)

	return rl, func() { close(stopCh) }
}

// allow reports whether a request from ip may proceed, consuming a token
// when it does.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	rl.mu.Unlock()

	return entry.limiter.Allow()
}

// sweepLoop periodically drops IP entries idle longer than limiterTTL.
func (rl *rateLimiter) sweepLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			rl.evictStale(time.Now().Add(-limiterTTL))
		}
	}
}

// evictStale removes entries last seen before cutoff.
func (rl *rateLimiter) evictStale(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
}

// middleware returns an http.Handler enforcing the limit before delegating
// to next. Rejected requests get 429 with a Retry-After header and a WARN
// log entry.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if !rl.allow(ip) {
			log := logging.FromContext(r.Context())
			log.Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the remote IP from the request, stripping the port.
// It does not trust X-Forwarded-For since this server is local-only.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	// RemoteAddr is "host:port" for TCP connections.
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}
