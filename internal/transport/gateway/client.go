// Package gateway talks to the platform gateway sidecar, which owns the
// chat platform protocol and exposes sign-in and export over HTTP.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/openclaw/export-worker-go/internal/transport"
)

const (
	requestTimeout  = 30 * time.Second
	maxErrorBody    = 64 * 1024
	maxResponseBody = 1 << 20
)

var errorCodes = map[string]error{
	"NOT_A_MEMBER":            transport.ErrNotAMember,
	"CHANNEL_PRIVATE":         transport.ErrNotAMember,
	"BAD_REFERENCE":           transport.ErrBadReference,
	"USERNAME_NOT_OCCUPIED":   transport.ErrBadReference,
	"SESSION_EXPIRED":         transport.ErrSessionExpired,
	"AUTH_KEY_UNREGISTERED":   transport.ErrSessionExpired,
	"API_ID_INVALID":          transport.ErrInvalidAppCredentials,
	"PHONE_CODE_INVALID":      transport.ErrInvalidCode,
	"PHONE_CODE_EXPIRED":      transport.ErrInvalidCode,
	"SESSION_PASSWORD_NEEDED": transport.ErrPasswordRequired,
	"PASSWORD_HASH_INVALID":   transport.ErrInvalidPassword,
	"SESSION_REVOKED":         transport.ErrSessionRevoked,
}

// APIError is an unrecognized gateway failure. Message is the gateway's own text.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("gateway error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("gateway error %s (status %d): %s", e.Code, e.Status, e.Message)
}

type Client struct {
	baseURL string
	client  *http.Client
	// stream has no client timeout; long polls and exports are bound by ctx.
	stream *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
		stream:  &http.Client{},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// call performs a JSON round trip and returns the raw response body.
func (c *Client) call(ctx context.Context, httpClient *http.Client, method, path string, payload any) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("path", path).Dur("elapsed", elapsed).Msg("gateway request error")
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := decodeError(resp)
		log.Warn().Str("path", path).Int("status", resp.StatusCode).Dur("elapsed", elapsed).Err(err).Msg("gateway request failed")
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	log.Debug().Str("path", path).Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("gateway request ok")
	return data, nil
}

// decodeError maps the gateway error envelope {"error":{"code","message"}}
// onto the transport sentinel errors.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	code := gjson.GetBytes(data, "error.code").String()
	message := gjson.GetBytes(data, "error.message").String()
	if message == "" {
		message = strings.TrimSpace(string(data))
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	if sentinel, ok := errorCodes[code]; ok {
		return fmt.Errorf("%w: %s", sentinel, message)
	}
	return &APIError{Status: resp.StatusCode, Code: code, Message: message}
}

// IsAPIError reports whether err is an unrecognized gateway failure.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
