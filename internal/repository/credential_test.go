package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/export-worker-go/internal/model"
)

var credentialColumns = []string{
	"owner_id", "app_id", "app_secret_encrypted", "phone", "session_token_encrypted",
	"analysis_key_encrypted", "custom_prompt", "default_export_limit",
	"is_configured", "is_authorized", "created_at", "last_active_at",
}

func setupMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return sqlx.NewDb(sqlDB, "postgres"), mock
}

func credentialRow(ownerID int64, authorized bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(credentialColumns).AddRow(
		ownerID, int64(94575), "enc-secret", "+15550000000", "enc-token",
		"", "", 0, true, authorized, now, now,
	)
}

func TestCredentialRepository_FindByOwnerID(t *testing.T) {
	t.Run("returns credential", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewCredentialRepository(db)

		mock.ExpectQuery(`SELECT \* FROM credentials WHERE owner_id = \$1`).
			WithArgs(int64(42)).
			WillReturnRows(credentialRow(42, true))

		cred, err := repo.FindByOwnerID(context.Background(), 42)
		require.NoError(t, err)
		require.NotNil(t, cred)
		assert.Equal(t, int64(42), cred.OwnerID)
		assert.Equal(t, "enc-token", cred.SessionTokenEncrypted)
		assert.True(t, cred.IsAuthorized)
		assert.Empty(t, cred.SessionToken)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns nil for missing owner", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewCredentialRepository(db)

		mock.ExpectQuery(`SELECT \* FROM credentials`).
			WithArgs(int64(42)).
			WillReturnError(sql.ErrNoRows)

		cred, err := repo.FindByOwnerID(context.Background(), 42)
		require.NoError(t, err)
		assert.Nil(t, cred)
	})

	t.Run("propagates driver errors", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewCredentialRepository(db)

		mock.ExpectQuery(`SELECT \* FROM credentials`).
			WithArgs(int64(42)).
			WillReturnError(errors.New("connection reset"))

		_, err := repo.FindByOwnerID(context.Background(), 42)
		assert.Error(t, err)
	})
}

func TestCredentialRepository_UpsertAuthorization(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCredentialRepository(db)

	mock.ExpectQuery(`INSERT INTO credentials .* ON CONFLICT \(owner_id\) DO UPDATE`).
		WithArgs(int64(7), int64(94575), "enc-secret", "+15550000000", "enc-token", sqlmock.AnyArg()).
		WillReturnRows(credentialRow(7, true))

	cred, err := repo.UpsertAuthorization(context.Background(), model.UpsertCredentialParams{
		OwnerID:               7,
		AppID:                 94575,
		AppSecretEncrypted:    "enc-secret",
		Phone:                 "+15550000000",
		SessionTokenEncrypted: "enc-token",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), cred.OwnerID)
	assert.True(t, cred.IsConfigured)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepository_UpdateSettings(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCredentialRepository(db)

	prompt := "Summarize {csv_content}"
	mock.ExpectQuery(`INSERT INTO credentials \(owner_id, analysis_key_encrypted`).
		WithArgs(int64(42), nil, &prompt, nil).
		WillReturnRows(credentialRow(42, true))

	_, err := repo.UpdateSettings(context.Background(), 42, model.UpdateSettingsParams{CustomPrompt: &prompt})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepository_Mutations(t *testing.T) {
	t.Run("MarkUnauthorized", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewCredentialRepository(db)

		mock.ExpectExec(`UPDATE credentials SET is_authorized = FALSE`).
			WithArgs(int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.MarkUnauthorized(context.Background(), 42))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Touch", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewCredentialRepository(db)

		mock.ExpectExec(`UPDATE credentials SET last_active_at`).
			WithArgs(int64(42), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Touch(context.Background(), 42))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Delete", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewCredentialRepository(db)

		mock.ExpectExec(`DELETE FROM credentials WHERE owner_id = \$1`).
			WithArgs(int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Delete(context.Background(), 42))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("WithTx uses the transaction", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewCredentialRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM credentials`).WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := db.Beginx()
		require.NoError(t, err)
		require.NoError(t, repo.WithTx(tx).Delete(context.Background(), 1))
		require.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
