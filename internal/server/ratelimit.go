package server

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter allows each client n requests per fixed window. A client's
// bucket holds n tokens with no refill and is replaced when its window ends.
type rateLimiter struct {
	mu      sync.Mutex
	n       int
	window  time.Duration
	message string
	clients map[string]*client
	now     func() time.Time
}

type client struct {
	limiter *rate.Limiter
	start   time.Time
}

func newRateLimiter(n int, window time.Duration, message string) *rateLimiter {
	return &rateLimiter{
		n:       n,
		window:  window,
		message: message,
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

// allow reports whether key may proceed, the requests left in its window
// and when the window resets
func (l *rateLimiter) allow(key string) (bool, int, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[key]
	if !ok || !now.Before(c.start.Add(l.window)) {
		if !ok && len(l.clients) >= 4096 {
			l.sweep(now)
		}
		c = &client{limiter: rate.NewLimiter(0, l.n), start: now}
		l.clients[key] = c
	}

	allowed := c.limiter.AllowN(now, 1)
	remaining := int(c.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining, c.start.Add(l.window)
}

// sweep drops clients whose window has ended
func (l *rateLimiter) sweep(now time.Time) {
	for key, c := range l.clients {
		if !now.Before(c.start.Add(l.window)) {
			delete(l.clients, key)
		}
	}
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, reset := l.allow(clientIP(r))
		w.Header().Set("RateLimit-Limit", strconv.Itoa(l.n))
		w.Header().Set("RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			wait := math.Ceil(reset.Sub(l.now()).Seconds())
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(wait))))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"message": l.message})
			return
		}
		next.ServeHTTP(w, r)
	})
}
