package middleware

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"github.com/openclaw/export-worker-go/internal/audit"
	"github.com/openclaw/export-worker-go/internal/config"
	apperrors "github.com/openclaw/export-worker-go/internal/errors"
	"github.com/openclaw/export-worker-go/internal/service"
	"github.com/openclaw/export-worker-go/internal/telemetry"
)

const rateLimitWindow = time.Minute

type Limiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) service.RateLimitResult
}

// OwnerRateLimitMiddleware limits /v1 requests per owner. The owner comes
// from the {ownerID} route parameter or, for job submission, from the
// ownerId field of the JSON body. Requests naming no owner share one bucket.
// It must run after routing so route parameters are resolved.
type OwnerRateLimitMiddleware struct {
	limiter Limiter
	limit   int
	window  time.Duration
}

func NewOwnerRateLimitMiddleware(limiter Limiter, limit int) *OwnerRateLimitMiddleware {
	if limit <= 0 {
		limit = config.DefaultRateLimitPerMin
	}
	return &OwnerRateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  rateLimitWindow,
	}
}

func (m *OwnerRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := ownerKey(r)
		result := m.limiter.CheckLimit(r.Context(), "owner:"+owner, m.limit, m.window)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			telemetry.RateLimitRejects.Inc()
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]any{"bucket": owner},
			})
			secondsLeft := int(time.Until(result.ResetAt).Seconds()) + 1
			if secondsLeft < 1 {
				secondsLeft = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", secondsLeft))
			writeError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func ownerKey(r *http.Request) string {
	if owner := chi.URLParam(r, "ownerID"); owner != "" {
		return owner
	}

	if r.Body == nil || r.Method != http.MethodPost {
		return "shared"
	}
	body, err := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return "shared"
	}
	if owner := gjson.GetBytes(body, "ownerId"); owner.Exists() {
		return strconv.FormatInt(owner.Int(), 10)
	}
	return "shared"
}
