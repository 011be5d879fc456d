package jobs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/export-worker-go/internal/errors"
	"github.com/openclaw/export-worker-go/internal/model"
	"github.com/openclaw/export-worker-go/internal/transport"
)

// CredentialSource resolves and updates owner credentials.
type CredentialSource interface {
	Get(ctx context.Context, ownerID int64) (*model.Credential, error)
	Touch(ctx context.Context, ownerID int64) error
	MarkUnauthorized(ctx context.Context, ownerID int64) error
}

// RetryPolicy bounds retries of rate-limited analysis calls. The delay
// doubles after each attempt up to MaxBackoff.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

type PipelineConfig struct {
	// OutputDir is the root of per-owner folders.
	OutputDir          string
	DefaultExportLimit int
	Retry              RetryPolicy
}

// Pipeline implements the export, analyze and export_analyze handlers.
type Pipeline struct {
	creds    CredentialSource
	exporter transport.Exporter
	analyzer transport.Analyzer
	renderer transport.Renderer
	notifier transport.Notifier
	cfg      PipelineConfig
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewPipeline(
	creds CredentialSource,
	exporter transport.Exporter,
	analyzer transport.Analyzer,
	renderer transport.Renderer,
	notifier transport.Notifier,
	cfg PipelineConfig,
) *Pipeline {
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.Retry.MaxBackoff <= 0 {
		cfg.Retry.MaxBackoff = time.Minute
	}
	return &Pipeline{
		creds:    creds,
		exporter: exporter,
		analyzer: analyzer,
		renderer: renderer,
		notifier: notifier,
		cfg:      cfg,
		sleep:    sleepContext,
	}
}

// Register binds the pipeline handlers to the runner.
func (p *Pipeline) Register(r *Runner) {
	r.RegisterHandler(model.JobTypeExport, p.Export)
	r.RegisterHandler(model.JobTypeAnalyze, p.Analyze)
	r.RegisterHandler(model.JobTypeExportAnalyze, p.ExportAnalyze)
}

// credential resolves the owner's credential before any progress message is
// sent.
func (p *Pipeline) credential(ctx context.Context, ownerID int64) (*model.Credential, error) {
	cred, err := p.creds.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if cred == nil || !cred.IsConfigured {
		return nil, apperrors.NotConfigured()
	}
	if !cred.IsAuthorized {
		return nil, apperrors.NotAuthorized()
	}
	if err := p.creds.Touch(ctx, ownerID); err != nil {
		log.Warn().Err(err).Int64("ownerId", ownerID).Msg("failed to update last activity")
	}
	return cred, nil
}

func (p *Pipeline) export(ctx context.Context, job model.Job, cred *model.Credential, params exportParams) (string, error) {
	path, err := p.exporter.Export(ctx, cred, transport.ExportRequest{
		ChatRef:   params.ChatRef,
		From:      params.From,
		To:        params.To,
		Limit:     params.Limit,
		OutputDir: p.ownerDir(job.OwnerID, "exports"),
	})
	if errors.Is(err, transport.ErrSessionExpired) {
		if markErr := p.creds.MarkUnauthorized(ctx, job.OwnerID); markErr != nil {
			log.Error().Err(markErr).Int64("ownerId", job.OwnerID).Msg("failed to mark credential unauthorized")
		}
	}
	if err != nil {
		return "", err
	}
	log.Info().Int64("jobId", job.ID).Str("file", filepath.Base(path)).Msg("export finished")
	return path, nil
}

// notify sends a progress message. Only an unusable channel is an error.
func (p *Pipeline) notify(ctx context.Context, ownerID int64, text string) error {
	err := p.notifier.SendText(ctx, ownerID, text)
	if err == nil {
		return nil
	}
	if errors.Is(err, transport.ErrNotifierUnavailable) {
		return err
	}
	log.Warn().Err(err).Int64("ownerId", ownerID).Msg("failed to send progress message")
	return nil
}

// sendFile delivers a result. Failing to deliver it fails the job.
func (p *Pipeline) sendFile(ctx context.Context, ownerID int64, path, caption string) error {
	if err := p.notifier.SendFile(ctx, ownerID, path, caption); err != nil {
		if errors.Is(err, transport.ErrNotifierUnavailable) {
			return err
		}
		return fmt.Errorf("could not deliver %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (p *Pipeline) ownerRoot(ownerID int64) string {
	return filepath.Join(p.cfg.OutputDir, strconv.FormatInt(ownerID, 10))
}

func (p *Pipeline) ownerDir(ownerID int64, sub string) string {
	return filepath.Join(p.ownerRoot(ownerID), sub)
}

// ownedFile resolves path inside the owner's folder. Relative paths are taken
// from the owner's exports folder.
func (p *Pipeline) ownedFile(ownerID int64, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.ownerDir(ownerID, "exports"), path)
	}
	root, err := filepath.Abs(p.ownerRoot(ownerID))
	if err != nil {
		return "", fmt.Errorf("resolve owner folder: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", apperrors.InvalidInput("filePath", "must be a file exported for this owner")
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperrors.InvalidInput("filePath", "must be a file exported for this owner")
	}
	return abs, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
