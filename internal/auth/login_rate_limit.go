package auth

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"authgate/internal/httpjson"
)

const limiterIdleSweep = 5 * time.Minute

// LoginRateLimiter throttles login attempts per client IP with a token
// bucket holding maxHits tokens refilled over window.
type LoginRateLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	limit    rate.Limit
	burst    int

	// trustProxy reads the client address from X-Forwarded-For. Only safe
	// behind a proxy that appends the connecting address to that header.
	trustProxy bool

	mu        sync.Mutex
	lastSweep time.Time
	now       func() time.Time
}

func NewLoginRateLimiter(maxHits int, window time.Duration) *LoginRateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &LoginRateLimiter{
		limit:     rate.Limit(float64(maxHits) / window.Seconds()),
		burst:     maxHits,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// WithTrustedProxy keys buckets by the last X-Forwarded-For hop instead of
// the connection address.
func (l *LoginRateLimiter) WithTrustedProxy(trusted bool) *LoginRateLimiter {
	l.trustProxy = trusted
	return l
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := l.allow(clientIP(r, l.trustProxy))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			httpjson.Message(w, http.StatusTooManyRequests, "Too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *LoginRateLimiter) allow(ip string) (bool, time.Duration) {
	now := l.now()
	limiter := l.limiter(ip, now)

	if limiter.AllowN(now, 1) {
		return true, 0
	}

	reservation := limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	reservation.CancelAt(now)
	if delay < time.Second {
		delay = time.Second
	}
	return false, delay
}

func (l *LoginRateLimiter) limiter(ip string, now time.Time) *rate.Limiter {
	if existing, ok := l.limiters.Load(ip); ok {
		return existing.(*rate.Limiter)
	}

	actual, _ := l.limiters.LoadOrStore(ip, rate.NewLimiter(l.limit, l.burst))
	l.sweep(now)
	return actual.(*rate.Limiter)
}

// sweep drops limiters whose bucket refilled completely, i.e. clients that
// have been idle for at least one window.
func (l *LoginRateLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) < limiterIdleSweep {
		return
	}
	l.lastSweep = now

	l.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).TokensAt(now) >= float64(l.burst) {
			l.limiters.Delete(key)
		}
		return true
	})
}

// clientIP returns the address the bucket is keyed by. Earlier
// X-Forwarded-For hops are written by the client, so only the last one, added
// by the trusted proxy, is used.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		hops := r.Header.Values("X-Forwarded-For")
		if len(hops) > 0 {
			last := hops[len(hops)-1]
			if i := strings.LastIndex(last, ","); i >= 0 {
				last = last[i+1:]
			}
			if ip := strings.TrimSpace(last); ip != "" {
				return ip
			}
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}
