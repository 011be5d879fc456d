package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/export-worker-go/internal/errors"
	"github.com/openclaw/export-worker-go/internal/model"
	"github.com/openclaw/export-worker-go/internal/telemetry"
	"github.com/openclaw/export-worker-go/internal/transport"
)

// Analyze runs the analysis over an exported file and sends the report.
func (p *Pipeline) Analyze(ctx context.Context, job model.Job) error {
	cred, err := p.credential(ctx, job.OwnerID)
	if err != nil {
		return err
	}
	if !cred.HasAnalysisKey() {
		return apperrors.AnalysisNotConfigured()
	}
	params, err := parseAnalyzePayload(job.Payload)
	if err != nil {
		return err
	}
	source, err := p.ownedFile(job.OwnerID, params.FilePath)
	if err != nil {
		return err
	}

	if err := p.notify(ctx, job.OwnerID, fmt.Sprintf(
		"Analysis started\n\nTask: #%d\nFile: %s\n\nSending the data to the analysis service...",
		job.ID, params.FileName,
	)); err != nil {
		return err
	}

	reportPath, err := p.analyzeFile(ctx, job, cred, source, params.FileName)
	if err != nil {
		return err
	}

	return p.sendFile(ctx, job.OwnerID, reportPath, fmt.Sprintf(
		"Analysis finished\n\nTask: #%d\nFile: %s\nReport: %s",
		job.ID, params.FileName, filepath.Base(reportPath),
	))
}

// ExportAnalyze exports a chat, sends the file right away, then analyzes it.
func (p *Pipeline) ExportAnalyze(ctx context.Context, job model.Job) error {
	cred, err := p.credential(ctx, job.OwnerID)
	if err != nil {
		return err
	}
	if !cred.HasAnalysisKey() {
		return apperrors.AnalysisNotConfigured()
	}
	params, err := parseExportPayload(job.Payload, exportLimit(cred, p.cfg.DefaultExportLimit))
	if err != nil {
		return err
	}

	if err := p.notify(ctx, job.OwnerID, fmt.Sprintf(
		"Export + analysis\n\nTask: #%d\nChat: %s\n\nStep 1/2: exporting the chat...",
		job.ID, params.ChatRef,
	)); err != nil {
		return err
	}

	path, err := p.export(ctx, job, cred, params)
	if err != nil {
		return err
	}
	fileName := filepath.Base(path)
	if err := p.sendFile(ctx, job.OwnerID, path, "Export finished: "+fileName); err != nil {
		return err
	}

	if err := p.notify(ctx, job.OwnerID, "Step 2/2: analysing the export. This can take a while."); err != nil {
		return err
	}

	reportPath, err := p.analyzeFile(ctx, job, cred, path, fileName)
	if err != nil {
		return err
	}

	return p.sendFile(ctx, job.OwnerID, reportPath, fmt.Sprintf(
		"Analysis finished\n\nTask: #%d\nChat: %s\nCSV: %s\nReport: %s",
		job.ID, params.ChatRef, fileName, filepath.Base(reportPath),
	))
}

// analyzeFile analyzes source, renders the report into the owner's analysis
// folder and removes source once the report exists.
func (p *Pipeline) analyzeFile(ctx context.Context, job model.Job, cred *model.Credential, source, label string) (string, error) {
	data, err := os.ReadFile(source)
	if errors.Is(err, fs.ErrNotExist) {
		return "", apperrors.NotFound("Export file " + label)
	}
	if err != nil {
		return "", fmt.Errorf("read export file: %w", err)
	}

	report, err := p.analyzeWithRetry(ctx, job, cred.AnalysisKey, string(data), cred.CustomPrompt)
	if err != nil {
		return "", err
	}

	output := filepath.Join(p.ownerDir(job.OwnerID, "analysis"), reportFileName(label))
	if err := p.renderer.Render(report, output, label); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}

	if err := os.Remove(source); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Int64("jobId", job.ID).Msg("failed to remove analyzed export")
	}
	return output, nil
}

// analyzeWithRetry retries rate-limited calls with exponential backoff up to
// the attempt cap. Other errors fail immediately.
func (p *Pipeline) analyzeWithRetry(ctx context.Context, job model.Job, apiKey, contents, template string) (string, error) {
	retry := p.cfg.Retry
	delay := retry.Backoff

	for attempt := 1; ; attempt++ {
		report, err := p.callAnalyzer(ctx, apiKey, contents, template)
		if err == nil {
			return report, nil
		}
		if !errors.Is(err, transport.ErrRateLimited) || attempt >= retry.MaxAttempts {
			return "", err
		}

		telemetry.AnalysisRetries.Inc()
		log.Warn().
			Int64("jobId", job.ID).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("analysis rate limited, retrying")

		if err := p.sleep(ctx, delay); err != nil {
			return "", err
		}
		delay *= 2
		if delay > retry.MaxBackoff {
			delay = retry.MaxBackoff
		}
	}
}

// callAnalyzer runs one analysis call on its own goroutine so the runner
// only waits on the result channel and ctx.
func (p *Pipeline) callAnalyzer(ctx context.Context, apiKey, contents, template string) (string, error) {
	type result struct {
		report string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := p.analyzer.Analyze(ctx, apiKey, contents, template)
		done <- result{report: report, err: err}
	}()

	select {
	case res := <-done:
		return res.report, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func reportFileName(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_analysis.txt"
}
