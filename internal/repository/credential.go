package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/export-worker-go/internal/model"
)

// CredentialRepository stores credential rows as-is. Callers are responsible
// for encrypting secret columns before they reach this layer.
type CredentialRepository interface {
	FindByOwnerID(ctx context.Context, ownerID int64) (*model.Credential, error)
	UpsertAuthorization(ctx context.Context, params model.UpsertCredentialParams) (*model.Credential, error)
	MarkUnauthorized(ctx context.Context, ownerID int64) error
	UpdateSettings(ctx context.Context, ownerID int64, params model.UpdateSettingsParams) (*model.Credential, error)
	Touch(ctx context.Context, ownerID int64) error
	Delete(ctx context.Context, ownerID int64) error
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) CredentialRepository
}

type credentialRepo struct {
	db sqlxDB
}

// sqlxDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sqlxDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func NewCredentialRepository(db *sqlx.DB) CredentialRepository {
	return &credentialRepo{db: db}
}

func (r *credentialRepo) WithTx(tx *sqlx.Tx) CredentialRepository {
	return &credentialRepo{db: tx}
}

func (r *credentialRepo) FindByOwnerID(ctx context.Context, ownerID int64) (*model.Credential, error) {
	return getOptional[model.Credential](ctx, r.db, `
		SELECT * FROM credentials WHERE owner_id = $1
	`, ownerID)
}

// UpsertAuthorization records a completed handshake. Settings columns of an
// existing row are preserved.
func (r *credentialRepo) UpsertAuthorization(ctx context.Context, params model.UpsertCredentialParams) (*model.Credential, error) {
	now := time.Now()
	return getOne[model.Credential](ctx, r.db, `
		INSERT INTO credentials (owner_id, app_id, app_secret_encrypted, phone, session_token_encrypted,
			is_configured, is_authorized, created_at, last_active_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, TRUE, $6, $6)
		ON CONFLICT (owner_id) DO UPDATE SET
			app_id = EXCLUDED.app_id,
			app_secret_encrypted = EXCLUDED.app_secret_encrypted,
			phone = EXCLUDED.phone,
			session_token_encrypted = EXCLUDED.session_token_encrypted,
			is_configured = TRUE,
			is_authorized = TRUE,
			last_active_at = EXCLUDED.last_active_at
		RETURNING *
	`, params.OwnerID, params.AppID, params.AppSecretEncrypted, params.Phone, params.SessionTokenEncrypted, now)
}

func (r *credentialRepo) MarkUnauthorized(ctx context.Context, ownerID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE credentials SET is_authorized = FALSE WHERE owner_id = $1
	`, ownerID)
	return err
}

// UpdateSettings creates the row when the owner has not signed in yet, so
// settings can be entered in any order.
func (r *credentialRepo) UpdateSettings(ctx context.Context, ownerID int64, params model.UpdateSettingsParams) (*model.Credential, error) {
	return getOne[model.Credential](ctx, r.db, `
		INSERT INTO credentials (owner_id, analysis_key_encrypted, custom_prompt, default_export_limit)
		VALUES ($1, COALESCE($2, ''), COALESCE($3, ''), COALESCE($4, 0))
		ON CONFLICT (owner_id) DO UPDATE SET
			analysis_key_encrypted = COALESCE($2, credentials.analysis_key_encrypted),
			custom_prompt = COALESCE($3, credentials.custom_prompt),
			default_export_limit = COALESCE($4, credentials.default_export_limit)
		RETURNING *
	`, ownerID, params.AnalysisKeyEncrypted, params.CustomPrompt, params.DefaultExportLimit)
}

func (r *credentialRepo) Touch(ctx context.Context, ownerID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE credentials SET last_active_at = $2 WHERE owner_id = $1
	`, ownerID, time.Now())
	return err
}

func (r *credentialRepo) Delete(ctx context.Context, ownerID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE owner_id = $1`, ownerID)
	return err
}
