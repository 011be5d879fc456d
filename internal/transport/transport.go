// Package transport declares the external collaborators the worker talks to:
// the chat platform (sign-in and export), the analysis service, the owner
// notification channel and the report renderer.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/openclaw/export-worker-go/internal/model"
)

// Export failures with actionable guidance.
var (
	ErrNotAMember     = errors.New("not a member of the chat")
	ErrBadReference   = errors.New("chat reference could not be resolved")
	ErrSessionExpired = errors.New("platform session expired")
)

// Analysis failures.
var (
	ErrRateLimited = errors.New("analysis service rate limited")
)

// ErrNotifierUnavailable means the notification channel itself is unusable.
var ErrNotifierUnavailable = errors.New("notification channel unavailable")

// Sign-in failures.
var (
	ErrInvalidAppCredentials = errors.New("app id or secret rejected")
	ErrInvalidCode           = errors.New("login code invalid or expired")
	ErrPasswordRequired      = errors.New("two-step verification password required")
	ErrInvalidPassword       = errors.New("two-step verification password invalid")
	ErrSessionRevoked        = errors.New("session revoked by the platform")
)

// Session is the authorized platform session produced by a sign-in.
type Session struct {
	Token string
	Phone string
}

type QRLogin struct {
	URL       string
	ExpiresAt time.Time
}

// Platform opens remote connections for a sign-in handshake.
type Platform interface {
	Connect(ctx context.Context, appID int64, appSecret string) (Conn, error)
}

// Conn is one remote connection owned by a single handshake. Close must be
// safe to call more than once.
type Conn interface {
	RequestQRLogin(ctx context.Context) (*QRLogin, error)
	// WaitQRLogin blocks until the challenge is scanned or ctx ends.
	WaitQRLogin(ctx context.Context) (*Session, error)
	// SendCode asks the platform to deliver a login code and returns the
	// continuation token needed by SignIn.
	SendCode(ctx context.Context, phone string) (string, error)
	SignIn(ctx context.Context, phone, codeHash, code string) (*Session, error)
	CheckPassword(ctx context.Context, password string) (*Session, error)
	Close() error
}

type ExportRequest struct {
	ChatRef   string
	From      *time.Time
	To        *time.Time
	Limit     int
	OutputDir string
}

// Exporter writes the chat history selected by req to a file and returns its path.
type Exporter interface {
	Export(ctx context.Context, cred *model.Credential, req ExportRequest) (string, error)
}

// Analyzer runs the analysis prompt over contents. An empty template selects
// the default prompt.
type Analyzer interface {
	Analyze(ctx context.Context, apiKey, contents, template string) (string, error)
}

// Notifier delivers messages to owners. Delivery is best effort.
type Notifier interface {
	SendText(ctx context.Context, ownerID int64, text string) error
	SendFile(ctx context.Context, ownerID int64, path, caption string) error
}

type Renderer interface {
	Render(report, outputPath, sourceLabel string) error
}
