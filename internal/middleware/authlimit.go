package middleware

import (
	"sync"
	"time"
)

const (
	authMaxFailures     = 5
	authWindowDuration  = time.Minute
	authCleanupInterval = 5 * time.Minute
)

type authFailures struct {
	count       int
	windowStart time.Time
}

// FailedAuthLimiter counts rejected tokens per client address and blocks the
// address once it fails too often within the window.
type FailedAuthLimiter struct {
	mu          sync.Mutex
	attempts    map[string]*authFailures
	lastCleanup time.Time
	now         func() time.Time
}

func NewFailedAuthLimiter() *FailedAuthLimiter {
	return &FailedAuthLimiter{
		attempts:    make(map[string]*authFailures),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (l *FailedAuthLimiter) cleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < authCleanupInterval {
		return
	}
	l.lastCleanup = now

	for ip, attempt := range l.attempts {
		if now.Sub(attempt.windowStart) > authWindowDuration {
			delete(l.attempts, ip)
		}
	}
}

// Blocked reports whether ip has used up its failures for the current window.
func (l *FailedAuthLimiter) Blocked(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanup(now)

	attempt, exists := l.attempts[ip]
	if !exists || now.Sub(attempt.windowStart) > authWindowDuration {
		return false
	}
	return attempt.count >= authMaxFailures
}

func (l *FailedAuthLimiter) Record(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	attempt, exists := l.attempts[ip]
	if !exists || now.Sub(attempt.windowStart) > authWindowDuration {
		l.attempts[ip] = &authFailures{count: 1, windowStart: now}
		return
	}
	attempt.count++
}
