package jobs

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/openclaw/export-worker-go/internal/model"
)

// Export exports a chat and sends the file to its owner. The credential is
// kept on failure.
func (p *Pipeline) Export(ctx context.Context, job model.Job) error {
	cred, err := p.credential(ctx, job.OwnerID)
	if err != nil {
		return err
	}
	params, err := parseExportPayload(job.Payload, exportLimit(cred, p.cfg.DefaultExportLimit))
	if err != nil {
		return err
	}

	if err := p.notify(ctx, job.OwnerID, fmt.Sprintf(
		"Export started\n\nTask: #%d\nChat: %s\nLimit: %d messages",
		job.ID, params.ChatRef, params.Limit,
	)); err != nil {
		return err
	}

	path, err := p.export(ctx, job, cred, params)
	if err != nil {
		return err
	}

	return p.sendFile(ctx, job.OwnerID, path, fmt.Sprintf(
		"Export finished\n\nTask: #%d\nChat: %s\nFile: %s",
		job.ID, params.ChatRef, filepath.Base(path),
	))
}

// exportLimit picks the owner's default row cap, then the process default.
func exportLimit(cred *model.Credential, processDefault int) int {
	if cred.DefaultExportLimit > 0 {
		return cred.DefaultExportLimit
	}
	return processDefault
}
