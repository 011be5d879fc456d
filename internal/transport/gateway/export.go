package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/export-worker-go/internal/model"
	"github.com/openclaw/export-worker-go/internal/transport"
)

var _ transport.Exporter = (*Client)(nil)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Export streams the CSV produced by the gateway into req.OutputDir.
func (c *Client) Export(ctx context.Context, cred *model.Credential, req transport.ExportRequest) (string, error) {
	payload := map[string]any{
		"appId":        cred.AppID,
		"appSecret":    cred.AppSecret,
		"sessionToken": cred.SessionToken,
		"chatRef":      req.ChatRef,
		"limit":        req.Limit,
	}
	if req.From != nil {
		payload["from"] = req.From.UTC().Format(time.RFC3339)
	}
	if req.To != nil {
		payload["to"] = req.To.UTC().Format(time.RFC3339)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/exports", payload)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Accept", "text/csv")

	start := time.Now()
	resp, err := c.stream.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", decodeError(resp)
	}

	if err := os.MkdirAll(req.OutputDir, 0o700); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(req.OutputDir, exportFileName(req.ChatRef, time.Now()))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}

	written, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write export file: %w", err)
	}

	log.Info().
		Int64("ownerId", cred.OwnerID).
		Str("chatRef", req.ChatRef).
		Int64("bytes", written).
		Dur("elapsed", time.Since(start)).
		Msg("export written")

	return path, nil
}

func exportFileName(chatRef string, now time.Time) string {
	base := unsafeFileChars.ReplaceAllString(strings.TrimPrefix(chatRef, "@"), "_")
	base = strings.Trim(base, "_")
	if base == "" {
		base = "chat"
	}
	return fmt.Sprintf("%s_%s.csv", base, now.Format("20060102_150405"))
}
