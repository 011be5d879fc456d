package audit

import (
	"context"
	"net"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventHandshakeBegin      EventType = "handshake_begin"
	EventHandshakeAuthorized EventType = "handshake_authorized"
	EventHandshakeFailed     EventType = "handshake_failed"
	EventHandshakeTimedOut   EventType = "handshake_timed_out"
	EventHandshakeCancelled  EventType = "handshake_cancelled"
	EventPasswordRejected    EventType = "password_rejected"
	EventSessionExpired      EventType = "session_expired"
	EventSettingsUpdate      EventType = "settings_update"
	EventCredentialDeleted   EventType = "credential_deleted"
	EventRateLimitExceed     EventType = "rate_limit_exceeded"
	EventAuthFailure         EventType = "auth_failure"
)

// Event never carries secrets: no session tokens, codes, passwords or keys.
type Event struct {
	Type      EventType
	OwnerID   int64
	SessionID string
	IP        string
	UserAgent string
	Details   map[string]any
}

// Log writes one security event on the "audit" stream. Empty fields are
// omitted from the entry.
func Log(ctx context.Context, event Event) {
	logger := loggerFrom(ctx)
	entry := logger.Info().
		Str("audit", "security").
		Str("event_type", string(event.Type))

	if event.OwnerID != 0 {
		entry = entry.Int64("ownerId", event.OwnerID)
	}
	for key, value := range map[string]string{
		"sessionId":  event.SessionID,
		"ip":         event.IP,
		"user_agent": event.UserAgent,
	} {
		if value != "" {
			entry = entry.Str(key, value)
		}
	}
	if len(event.Details) > 0 {
		entry = entry.Fields(event.Details)
	}
	entry.Timestamp().Msg("security audit event")
}

// LogFromRequest fills the client address and agent from r. The address is
// RemoteAddr, which chi's RealIP middleware has already resolved.
func LogFromRequest(r *http.Request, event Event) {
	event.IP = clientHost(r.RemoteAddr)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

// loggerFrom prefers a request-scoped logger and falls back to the global one.
func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}

func clientHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
