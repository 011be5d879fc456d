// Package report renders analysis results into a plain-text document.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openclaw/export-worker-go/internal/transport"
)

const title = "Chat analysis report"

var _ transport.Renderer = (*TextRenderer)(nil)

type TextRenderer struct {
	now func() time.Time
}

func NewTextRenderer() *TextRenderer {
	return &TextRenderer{now: time.Now}
}

// Render writes the report to outputPath. The file appears only once it is
// complete.
func (r *TextRenderer) Render(report, outputPath, sourceLabel string) error {
	if strings.TrimSpace(report) == "" {
		return fmt.Errorf("empty report")
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o700); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	var b strings.Builder
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("=", len(title)) + "\n\n")
	fmt.Fprintf(&b, "Generated: %s\n", r.now().UTC().Format("02-01-2006 15:04 MST"))
	fmt.Fprintf(&b, "Source: %s\n\n", sourceLabel)
	b.WriteString(strings.TrimSpace(report))
	b.WriteString("\n")

	tmp := outputPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, outputPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize report: %w", err)
	}
	return nil
}
