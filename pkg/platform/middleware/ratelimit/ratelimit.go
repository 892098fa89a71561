// Package ratelimit throttles callers per client IP with a token bucket.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"usiverify/pkg/platform/httputil"
	"usiverify/pkg/requestcontext"
)

const (
	sweepInterval = 5 * time.Minute
	idleExpiry    = 10 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-client token-bucket rate limiter. Idle entries are swept
// by Run so the map does not grow without bound.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	r        rate.Limit
	burst    int
	now      func() time.Time
}

// New creates a limiter allowing rps requests per second with the given burst.
func New(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*clientLimiter),
		r:        rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether one more request from key fits the budget.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).AllowN(l.now(), 1)
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if v, ok := l.limiters[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(l.r, l.burst)
	l.limiters[key] = &clientLimiter{limiter: lim, lastSeen: now}
	return lim
}

// Sweep drops entries idle longer than idleExpiry.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-idleExpiry)
	for key, v := range l.limiters {
		if v.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
}

// Run sweeps idle entries until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Middleware enforces the limit per client IP. Requires metadata.ClientMetadata upstream.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := requestcontext.ClientIP(r.Context())
		if key == "" {
			key = r.RemoteAddr
		}
		if !l.Allow(key) {
			retry := time.Second
			if l.r > 0 {
				retry = time.Duration(float64(time.Second) / float64(l.r))
			}
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(retry.Round(time.Second)/time.Second))))
			httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.ErrorResponse{
				Error:            "rate_limited",
				ErrorDescription: "too many requests",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
