// Package anthropic is the analysis transport backed by the Anthropic
// Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/openclaw/export-worker-go/internal/transport"
)

const (
	apiVersion     = "2023-06-01"
	maxTokens      = 8192
	requestTimeout = 5 * time.Minute
	maxErrorBody   = 64 * 1024

	// MaxCSVRows caps the data rows sent in one request.
	MaxCSVRows = 3000

	// ContentPlaceholder is replaced by the exported CSV in prompt templates.
	ContentPlaceholder = "{csv_content}"
)

const DefaultPrompt = `You are analysing an exported chat history in CSV form.
Each row is one message with its date, author and text.

Write a structured report with these sections:
1. Overview: period covered, number of participants, overall activity.
2. Main topics: the recurring subjects and how discussion about them evolved.
3. Key participants: who drives the conversation and their typical positions.
4. Notable events: decisions, conflicts, announcements, links worth keeping.
5. Summary: a short conclusion with actionable takeaways.

Chat history:
{csv_content}`

var _ transport.Analyzer = (*Client)(nil)

type Client struct {
	baseURL string
	model   string
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient builds an analyzer that keeps at least delay between calls.
func NewClient(baseURL, model string, delay time.Duration) *Client {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: requestTimeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (c *Client) Analyze(ctx context.Context, apiKey, contents, template string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]any{
		"model":      c.model,
		"max_tokens": maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": BuildPrompt(template, contents)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("analysis request error")
		return "", fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		log.Warn().Dur("elapsed", elapsed).Msg("analysis rate limited")
		return "", fmt.Errorf("%w: %s", transport.ErrRateLimited, errorMessage(data, resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("analysis request failed")
		return "", fmt.Errorf("analysis failed with status %d: %s", resp.StatusCode, errorMessage(data, resp.StatusCode))
	}

	var parts []string
	gjson.GetBytes(data, "content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			parts = append(parts, block.Get("text").String())
		}
		return true
	})
	if len(parts) == 0 {
		return "", fmt.Errorf("analysis returned no text content")
	}

	log.Info().
		Int64("inputTokens", gjson.GetBytes(data, "usage.input_tokens").Int()).
		Int64("outputTokens", gjson.GetBytes(data, "usage.output_tokens").Int()).
		Dur("elapsed", elapsed).
		Msg("analysis completed")

	return strings.Join(parts, "\n"), nil
}

func errorMessage(data []byte, status int) string {
	if msg := gjson.GetBytes(data, "error.message").String(); msg != "" {
		return msg
	}
	if len(data) > maxErrorBody {
		data = data[:maxErrorBody]
	}
	if s := strings.TrimSpace(string(data)); s != "" {
		return s
	}
	return http.StatusText(status)
}

// BuildPrompt fills template with the truncated CSV. Templates without the
// placeholder get the content appended.
func BuildPrompt(template, contents string) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultPrompt
	}
	csv := TruncateRows(contents, MaxCSVRows)
	if strings.Contains(template, ContentPlaceholder) {
		return strings.ReplaceAll(template, ContentPlaceholder, csv)
	}
	return template + "\n\n" + csv
}

// TruncateRows keeps the header line plus at most maxRows data lines.
func TruncateRows(contents string, maxRows int) string {
	lines := strings.SplitAfter(contents, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) <= maxRows+1 {
		return contents
	}
	return strings.Join(lines[:maxRows+1], "")
}
