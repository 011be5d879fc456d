package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/openclaw/export-worker-go/internal/audit"
	apperrors "github.com/openclaw/export-worker-go/internal/errors"
	"github.com/openclaw/export-worker-go/internal/util"
)

// TokenAuthMiddleware checks the bearer service token against a bcrypt hash.
// A verified token is remembered by its SHA-256 so bcrypt runs once per
// distinct token rather than once per request.
type TokenAuthMiddleware struct {
	hash     string
	failures *FailedAuthLimiter

	mu       sync.RWMutex
	verified string
}

// NewTokenAuthMiddleware returns a middleware that rejects every request
// without the token. An empty hash disables the check, which is only allowed
// outside production.
func NewTokenAuthMiddleware(hash string) *TokenAuthMiddleware {
	return &TokenAuthMiddleware{
		hash:     hash,
		failures: NewFailedAuthLimiter(),
	}
}

func (m *TokenAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.hash == "" {
			next.ServeHTTP(w, r)
			return
		}

		ip := r.RemoteAddr
		if m.failures.Blocked(ip) {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]any{"reason": "locked_out"},
			})
			w.Header().Set("Retry-After", "60")
			writeError(w, apperrors.RateLimitExceeded())
			return
		}

		token := extractToken(r)
		if token == "" {
			writeError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		if !m.check(token) {
			m.failures.Record(ip)
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAuthFailure})
			writeError(w, apperrors.InvalidToken("Invalid token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *TokenAuthMiddleware) check(token string) bool {
	digest := util.HashToken(token)

	m.mu.RLock()
	cached := m.verified
	m.mu.RUnlock()
	if cached != "" && util.ConstantTimeEqual(cached, digest) {
		return true
	}

	if !util.MatchesBcrypt(token, m.hash) {
		return false
	}

	m.mu.Lock()
	m.verified = digest
	m.mu.Unlock()
	return true
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	// EventSource clients cannot set headers.
	if strings.HasSuffix(r.URL.Path, "/events") {
		return r.URL.Query().Get("token")
	}

	return ""
}
