package stub

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client address.
type rateLimiter struct {
	mu          sync.Mutex
	window      time.Duration
	max         int
	limit       rate.Limit
	clients     map[string]*clientLimiter
	nextCleanup time.Time
}

func newRateLimiter(window time.Duration, max int) *rateLimiter {
	if window <= 0 || max <= 0 {
		return &rateLimiter{}
	}

	return &rateLimiter{
		window:  window,
		max:     max,
		limit:   rate.Every(window / time.Duration(max)),
		clients: make(map[string]*clientLimiter),
	}
}

func (r *rateLimiter) allow(key string, now time.Time) bool {
	if r == nil || r.window <= 0 || r.max <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.clients[key]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(r.limit, r.max)}
		r.clients[key] = client
	}
	client.lastSeen = now

	allowed := client.limiter.AllowN(now, 1)

	if r.nextCleanup.IsZero() || now.After(r.nextCleanup) {
		threshold := now.Add(-2 * r.window)
		for k, c := range r.clients {
			if c.lastSeen.Before(threshold) {
				delete(r.clients, k)
			}
		}
		r.nextCleanup = now.Add(r.window)
	}

	return allowed
}

func clientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first := strings.TrimSpace(strings.Split(forwarded, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
			return addr
		}
		return "global"
	}
	return host
}
