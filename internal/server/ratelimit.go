package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/54b3r/docchat-go/internal/logging"
)

const (
	// defaultRateLimit is the per-IP request rate on /api/* when unset.
	defaultRateLimit = 10
	// defaultRateBurst is the per-IP burst when unset.
	defaultRateBurst = 20
	// limiterTTL is how long an idle IP keeps its bucket.
	limiterTTL = 5 * time.Minute
)

// rateLimiter enforces a per-IP token bucket on /api/*. Buckets live in a
// TTL cache whose janitor drops IPs idle for limiterTTL.
type rateLimiter struct {
	buckets *cache.Cache
	rps     rate.Limit
	burst   int
	log     *slog.Logger
}

// newRateLimiter constructs a rateLimiter. The returned stop function drops
// every bucket; call it on shutdown.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: cache.New(limiterTTL, time.Minute),
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
	}
	return rl, rl.buckets.Flush
}

// getLimiter returns the bucket for ip, creating it on first sight, and
// pushes its expiry out by limiterTTL.
func (rl *rateLimiter) getLimiter(ip string) *rate.Limiter {
	if v, ok := rl.buckets.Get(ip); ok {
		lim := v.(*rate.Limiter)
		rl.buckets.SetDefault(ip, lim)
		return lim
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	if err := rl.buckets.Add(ip, lim, cache.DefaultExpiration); err != nil {
		// Lost the race with a concurrent first request from the same IP.
		if v, ok := rl.buckets.Get(ip); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// middleware rejects requests over the limit with 429 and a Retry-After
// header holding the seconds until the next token.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		res := rl.getLimiter(ip).Reserve()

		if delay := res.Delay(); !res.OK() || delay > 0 {
			res.Cancel()
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", retryAfter(delay))
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// retryAfter renders d as whole seconds, at least one.
func retryAfter(d time.Duration) string {
	if d == rate.InfDuration {
		return "60"
	}
	return strconv.FormatInt(max(1, int64(math.Ceil(d.Seconds()))), 10)
}

// clientIP extracts the remote IP from the request, stripping the port.
// X-Forwarded-For is not trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
