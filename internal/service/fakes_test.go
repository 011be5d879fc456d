package service

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/export-worker-go/internal/model"
	"github.com/openclaw/export-worker-go/internal/repository"
	"github.com/openclaw/export-worker-go/internal/util"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func mustCipher(key string) *util.Cipher {
	c, err := util.NewCipher(key)
	if err != nil {
		panic(err)
	}
	return c
}

// memCredentialRepo keeps rows exactly as the SQL layer would see them.
type memCredentialRepo struct {
	mu   sync.Mutex
	rows map[int64]model.Credential
}

func newMemCredentialRepo() *memCredentialRepo {
	return &memCredentialRepo{rows: make(map[int64]model.Credential)}
}

func (r *memCredentialRepo) row(ownerID int64) (model.Credential, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[ownerID]
	return row, ok
}

func (r *memCredentialRepo) FindByOwnerID(ctx context.Context, ownerID int64) (*model.Credential, error) {
	row, ok := r.row(ownerID)
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (r *memCredentialRepo) UpsertAuthorization(ctx context.Context, p model.UpsertCredentialParams) (*model.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	row, ok := r.rows[p.OwnerID]
	if !ok {
		row = model.Credential{OwnerID: p.OwnerID, CreatedAt: now}
	}
	row.AppID = p.AppID
	row.AppSecretEncrypted = p.AppSecretEncrypted
	row.Phone = p.Phone
	row.SessionTokenEncrypted = p.SessionTokenEncrypted
	row.IsConfigured = true
	row.IsAuthorized = true
	row.LastActiveAt = now
	r.rows[p.OwnerID] = row
	return &row, nil
}

func (r *memCredentialRepo) MarkUnauthorized(ctx context.Context, ownerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[ownerID]; ok {
		row.IsAuthorized = false
		r.rows[ownerID] = row
	}
	return nil
}

func (r *memCredentialRepo) UpdateSettings(ctx context.Context, ownerID int64, p model.UpdateSettingsParams) (*model.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[ownerID]
	if !ok {
		row = model.Credential{OwnerID: ownerID, CreatedAt: time.Now()}
	}
	if p.AnalysisKeyEncrypted != nil {
		row.AnalysisKeyEncrypted = *p.AnalysisKeyEncrypted
	}
	if p.CustomPrompt != nil {
		row.CustomPrompt = *p.CustomPrompt
	}
	if p.DefaultExportLimit != nil {
		row.DefaultExportLimit = *p.DefaultExportLimit
	}
	r.rows[ownerID] = row
	return &row, nil
}

func (r *memCredentialRepo) Touch(ctx context.Context, ownerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[ownerID]; ok {
		row.LastActiveAt = time.Now()
		r.rows[ownerID] = row
	}
	return nil
}

func (r *memCredentialRepo) Delete(ctx context.Context, ownerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, ownerID)
	return nil
}

func (r *memCredentialRepo) WithTx(tx *sqlx.Tx) repository.CredentialRepository {
	return r
}
