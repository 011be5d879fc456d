package jobs

import (
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/openclaw/export-worker-go/internal/errors"
)

const (
	// DateLayout is the DD-MM-YYYY format owners use for export windows.
	DateLayout = "02-01-2006"

	// FallbackExportLimit applies when neither the job nor the owner sets a limit.
	FallbackExportLimit = 10000
)

type exportParams struct {
	ChatRef string
	From    *time.Time
	To      *time.Time
	Limit   int
}

type analyzeParams struct {
	FilePath string
	FileName string
}

// parseExportPayload reads chatRef, from, to and limit. to covers the whole
// day up to 23:59:59 UTC. A missing limit falls back to defaultLimit.
func parseExportPayload(payload map[string]any, defaultLimit int) (exportParams, error) {
	var p exportParams

	p.ChatRef = strings.TrimSpace(asString(payload["chatRef"]))
	if p.ChatRef == "" {
		return p, apperrors.MissingRequired("chatRef")
	}

	var err error
	if p.From, err = parseDate(payload, "from"); err != nil {
		return p, err
	}
	if p.To, err = parseDate(payload, "to"); err != nil {
		return p, err
	}
	if p.To != nil {
		end := p.To.Add(24*time.Hour - time.Second)
		p.To = &end
	}
	if p.From != nil && p.To != nil && p.From.After(*p.To) {
		return p, apperrors.InvalidInput("from", "must not be after to")
	}

	p.Limit = defaultLimit
	if p.Limit <= 0 {
		p.Limit = FallbackExportLimit
	}
	if raw, ok := payload["limit"]; ok && raw != nil {
		limit, ok := asInt(raw)
		if !ok || limit <= 0 {
			return p, apperrors.InvalidInput("limit", "must be a positive number")
		}
		p.Limit = limit
	}
	return p, nil
}

func parseAnalyzePayload(payload map[string]any) (analyzeParams, error) {
	var p analyzeParams
	p.FilePath = strings.TrimSpace(asString(payload["filePath"]))
	if p.FilePath == "" {
		return p, apperrors.MissingRequired("filePath")
	}
	p.FileName = strings.TrimSpace(asString(payload["fileName"]))
	if p.FileName == "" {
		p.FileName = filepath.Base(p.FilePath)
	}
	return p, nil
}

func parseDate(payload map[string]any, key string) (*time.Time, error) {
	raw := strings.TrimSpace(asString(payload[key]))
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(DateLayout, raw, time.UTC)
	if err != nil {
		return nil, apperrors.InvalidInput(key, "use the DD-MM-YYYY format, e.g. 31-12-2024")
	}
	return &t, nil
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}
