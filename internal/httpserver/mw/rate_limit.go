package mw

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/utils"
)

// RateLimitConfig configures a per-client token bucket.
type RateLimitConfig struct {
	Burst             int           // bucket capacity
	RefillPerIPPerMin int           // sustained rate
	MaxEntries        int           // sweep early once this many clients are tracked, 0 = unbounded
	IdleTTL           time.Duration // forget clients idle for this long (default 15m)
	TrustProxy        bool          // resolve IP from proxy headers when true
	Logger            logger.Logger // optional, rejections are logged at debug level

	now func() time.Time // tests
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// limiter is a token bucket per client. One mutex is enough: the critical
// section is a few float operations.
type limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	rate      float64 // tokens per second
	capacity  float64
	idleTTL   time.Duration
	maxItems  int
	lastSweep time.Time
}

func newLimiter(cfg RateLimitConfig, now time.Time) *limiter {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.RefillPerIPPerMin < 1 {
		cfg.RefillPerIPPerMin = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 15 * time.Minute
	}
	return &limiter{
		buckets:   make(map[string]*bucket),
		rate:      float64(cfg.RefillPerIPPerMin) / 60.0,
		capacity:  float64(cfg.Burst),
		idleTTL:   cfg.IdleTTL,
		maxItems:  cfg.MaxEntries,
		lastSweep: now,
	}
}

// take consumes one token for key. When the bucket is empty it returns the
// number of seconds until the next token.
func (l *limiter) take(key string, now time.Time) (ok bool, remaining, retryAfter int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.idleTTL || (l.maxItems > 0 && len(l.buckets) >= l.maxItems) {
		l.sweepLocked(now)
	}

	b, found := l.buckets[key]
	if !found {
		b = &bucket{tokens: l.capacity, lastSeen: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastSeen).Seconds(); elapsed > 0 {
		b.tokens = math.Min(l.capacity, b.tokens+elapsed*l.rate)
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false, 0, max(1, int(math.Ceil((1-b.tokens)/l.rate)))
	}
	b.tokens--
	return true, int(b.tokens), 0
}

func (l *limiter) sweepLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

// RateLimit rejects clients that exhausted their bucket with 429 and a
// Retry-After header. Each call owns its buckets, so routes sharing a
// budget must share the returned middleware.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	now := cfg.now
	if now == nil {
		now = time.Now
	}
	l := newLimiter(cfg, now())
	limit := strconv.Itoa(int(l.capacity))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := utils.ClientIP(r, cfg.TrustProxy)
			ok, remaining, retry := l.take(key, now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !ok {
				if cfg.Logger != nil {
					cfg.Logger.Debug("rate limited",
						logger.String("remote_ip", key),
						logger.String("path", r.URL.Path),
						logger.Int("retry_after", retry))
				}
				h.Set("Retry-After", strconv.Itoa(retry))
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
