// internal/app/system/ratelimit/ratelimit.go
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// Limiter counts attempts per key in fixed windows.
// It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	limit    int           // max attempts per window
	duration time.Duration // window duration
	now      func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

type window struct {
	count     int
	expiresAt time.Time
}

// New creates a limiter allowing limit attempts per key every duration.
// A background loop drops expired windows until Stop is called.
func New(limit int, duration time.Duration) *Limiter {
	l := &Limiter{
		windows:  make(map[string]*window),
		limit:    limit,
		duration: duration,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go l.cleanupLoop(duration * 2)
	return l
}

// Allow records an attempt for key and reports whether it is within the limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.expiresAt) {
		l.windows[key] = &window{count: 1, expiresAt: now.Add(l.duration)}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// Remaining returns how many attempts are left for key in the current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || l.now().After(w.expiresAt) {
		return l.limit
	}
	return max(l.limit-w.count, 0)
}

// Reset clears the window for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// Stop ends the cleanup loop. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			for key, w := range l.windows {
				if now.After(w.expiresAt) {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// ClientIP returns the host part of r.RemoteAddr. Forwarding headers are
// not consulted here; deployments behind a trusted proxy rewrite
// RemoteAddr before this runs (see trust_proxy_headers).
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// JoinLimiter throttles attempts to use an access code, whether to join a
// center or to look one up. Codes are six digits, so guessing is bounded
// both per client address and per acting user.
type JoinLimiter struct {
	ip    *Limiter
	actor *Limiter
}

// NewJoinLimiter allows ipLimit attempts per client address and actorLimit
// attempts per acting user within window.
func NewJoinLimiter(ipLimit, actorLimit int, window time.Duration) *JoinLimiter {
	return &JoinLimiter{
		ip:    New(ipLimit, window),
		actor: New(actorLimit, window),
	}
}

// Check records an attempt by actorID and returns the reason it was
// refused, or "". Successful attempts count too: a known code must not
// buy more guesses.
func (jl *JoinLimiter) Check(r *http.Request, actorID string) string {
	if !jl.ip.Allow(ClientIP(r)) {
		return "too many access code attempts from this address"
	}
	if !jl.actor.Allow(actorID) {
		return "too many access code attempts for this user"
	}
	return ""
}

func (jl *JoinLimiter) Stop() {
	jl.ip.Stop()
	jl.actor.Stop()
}
