// Package telegram delivers owner notifications through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/openclaw/export-worker-go/internal/transport"
)

const (
	sendTimeout     = 15 * time.Second
	uploadTimeout   = 2 * time.Minute
	maxMessageRunes = 4096
	maxCaptionRunes = 1024
)

var _ transport.Notifier = (*Notifier)(nil)

type Notifier struct {
	baseURL string
	token   string
	client  *http.Client
	upload  *http.Client
}

func NewNotifier(baseURL, token string) *Notifier {
	return &Notifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: sendTimeout},
		upload:  &http.Client{Timeout: uploadTimeout},
	}
}

func (n *Notifier) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", n.baseURL, n.token, method)
}

func (n *Notifier) SendText(ctx context.Context, ownerID int64, text string) error {
	body, err := json.Marshal(map[string]any{
		"chat_id": ownerID,
		"text":    truncateRunes(text, maxMessageRunes),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.methodURL("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return n.do(n.client, req, ownerID, "sendMessage")
}

func (n *Notifier) SendFile(ctx context.Context, ownerID int64, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("chat_id", strconv.FormatInt(ownerID, 10)); err != nil {
		return fmt.Errorf("write chat_id: %w", err)
	}
	if caption != "" {
		if err := mw.WriteField("caption", truncateRunes(caption, maxCaptionRunes)); err != nil {
			return fmt.Errorf("write caption: %w", err)
		}
	}
	part, err := mw.CreateFormFile("document", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.methodURL("sendDocument"), &buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return n.do(n.upload, req, ownerID, "sendDocument")
}

func (n *Notifier) do(client *http.Client, req *http.Request, ownerID int64, method string) error {
	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		log.Error().Err(err).Int64("ownerId", ownerID).Str("method", method).Dur("elapsed", elapsed).Msg("bot api request error")
		return fmt.Errorf("bot api request failed: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	// 401 and 404 come back for a revoked or malformed bot token; every
	// later delivery would fail the same way.
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound {
		log.Error().Int("status", resp.StatusCode).Str("method", method).Msg("bot token rejected")
		return fmt.Errorf("%w: %s", transport.ErrNotifierUnavailable, describe(data, resp.StatusCode))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !gjson.GetBytes(data, "ok").Bool() {
		log.Warn().
			Int64("ownerId", ownerID).
			Str("method", method).
			Int("status", resp.StatusCode).
			Dur("elapsed", elapsed).
			Msg("bot api delivery failed")
		return fmt.Errorf("%s failed with status %d: %s", method, resp.StatusCode, describe(data, resp.StatusCode))
	}

	log.Debug().Int64("ownerId", ownerID).Str("method", method).Dur("elapsed", elapsed).Msg("bot api delivery ok")
	return nil
}

func describe(data []byte, status int) string {
	if d := gjson.GetBytes(data, "description").String(); d != "" {
		return d
	}
	return http.StatusText(status)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
