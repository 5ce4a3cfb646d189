package auth

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newFrozenLimiter(maxHits int, window time.Duration, at *time.Time) *LoginRateLimiter {
	limiter := NewLoginRateLimiter(maxHits, window)
	limiter.now = func() time.Time { return *at }
	return limiter
}

func loginFrom(handler http.Handler, remoteAddr, forwardedFor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestLoginRateLimiter(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("rejects attempts past the limit", func(t *testing.T) {
		now := time.Now()
		handler := newFrozenLimiter(3, time.Minute, &now).Middleware(okHandler)

		for i := 0; i < 3; i++ {
			require.Equal(t, http.StatusOK, loginFrom(handler, "10.0.0.1:1234", "").Code)
		}

		rec := loginFrom(handler, "10.0.0.1:1234", "")
		requireMessage(t, rec, http.StatusTooManyRequests, "Too many login attempts")

		retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
		require.NoError(t, err)
		require.GreaterOrEqual(t, retryAfter, 20)
		require.LessOrEqual(t, retryAfter, 21)
	})

	t.Run("buckets are per client", func(t *testing.T) {
		now := time.Now()
		handler := newFrozenLimiter(1, time.Minute, &now).Middleware(okHandler)

		require.Equal(t, http.StatusOK, loginFrom(handler, "10.0.0.1:1234", "").Code)
		require.Equal(t, http.StatusTooManyRequests, loginFrom(handler, "10.0.0.1:5678", "").Code)
		require.Equal(t, http.StatusOK, loginFrom(handler, "10.0.0.2:1234", "").Code)
	})

	t.Run("forwarded header is ignored without a trusted proxy", func(t *testing.T) {
		now := time.Now()
		handler := newFrozenLimiter(1, time.Minute, &now).Middleware(okHandler)

		require.Equal(t, http.StatusOK, loginFrom(handler, "10.0.0.1:1234", "198.51.100.1").Code)
		for _, spoofed := range []string{"198.51.100.2", "198.51.100.3", "203.0.113.7, 198.51.100.4"} {
			require.Equal(t, http.StatusTooManyRequests, loginFrom(handler, "10.0.0.1:1234", spoofed).Code, spoofed)
		}
	})

	t.Run("trusted proxy keys by the hop it appended", func(t *testing.T) {
		now := time.Now()
		handler := newFrozenLimiter(1, time.Minute, &now).WithTrustedProxy(true).Middleware(okHandler)

		require.Equal(t, http.StatusOK, loginFrom(handler, "10.0.0.254:1234", "203.0.113.7").Code)
		require.Equal(t, http.StatusTooManyRequests, loginFrom(handler, "10.0.0.254:1234", "198.51.100.9, 203.0.113.7").Code)
		require.Equal(t, http.StatusOK, loginFrom(handler, "10.0.0.254:1234", "203.0.113.8").Code)
	})

	t.Run("bucket refills over the window", func(t *testing.T) {
		now := time.Now()
		handler := newFrozenLimiter(2, time.Minute, &now).Middleware(okHandler)

		require.Equal(t, http.StatusOK, loginFrom(handler, "10.0.0.1:1234", "").Code)
		require.Equal(t, http.StatusOK, loginFrom(handler, "10.0.0.1:1234", "").Code)
		require.Equal(t, http.StatusTooManyRequests, loginFrom(handler, "10.0.0.1:1234", "").Code)

		now = now.Add(31 * time.Second)
		require.Equal(t, http.StatusOK, loginFrom(handler, "10.0.0.1:1234", "").Code)
	})

	t.Run("idle clients are swept", func(t *testing.T) {
		now := time.Now()
		limiter := newFrozenLimiter(1, time.Minute, &now)
		handler := limiter.Middleware(okHandler)

		require.Equal(t, http.StatusOK, loginFrom(handler, "10.0.0.1:1234", "").Code)
		_, tracked := limiter.limiters.Load("10.0.0.1")
		require.True(t, tracked)

		now = now.Add(limiterIdleSweep + time.Second)
		require.Equal(t, http.StatusOK, loginFrom(handler, "10.0.0.2:1234", "").Code)

		_, tracked = limiter.limiters.Load("10.0.0.1")
		require.False(t, tracked)
	})

	t.Run("non positive settings fall back to defaults", func(t *testing.T) {
		limiter := NewLoginRateLimiter(0, 0)
		require.Equal(t, 10, limiter.burst)
		require.InDelta(t, 10.0/60.0, float64(limiter.limit), 1e-9)
	})
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  []string
		trustProxy bool
		want       string
	}{
		{"remote address host", "192.0.2.1:4000", nil, false, "192.0.2.1"},
		{"forwarded ignored when untrusted", "192.0.2.1:4000", []string{"203.0.113.7"}, false, "192.0.2.1"},
		{"last forwarded hop when trusted", "192.0.2.1:4000", []string{" 198.51.100.9 , 203.0.113.7 "}, true, "203.0.113.7"},
		{"last header line when trusted", "192.0.2.1:4000", []string{"198.51.100.9", "203.0.113.7"}, true, "203.0.113.7"},
		{"empty last hop falls back", "192.0.2.1:4000", []string{"203.0.113.7, "}, true, "192.0.2.1"},
		{"remote address without port", "192.0.2.1", nil, false, "192.0.2.1"},
		{"nothing known", "", nil, true, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
			req.RemoteAddr = tt.remoteAddr
			for _, hop := range tt.forwarded {
				req.Header.Add("X-Forwarded-For", hop)
			}
			require.Equal(t, tt.want, clientIP(req, tt.trustProxy))
		})
	}
}
