package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()
	db := &DB{sqlx.NewDb(sqlDB, "postgres")}

	mock.ExpectPing()
	assert.NoError(t, db.Check(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	err = db.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping database")
}

func TestInTx(t *testing.T) {
	t.Run("commits", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM credentials").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := db.InTx(context.Background(), func(tx *sqlx.Tx) error {
			_, err := tx.Exec("DELETE FROM credentials")
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back and keeps the cause", func(t *testing.T) {
		db, mock := newMockDB(t)
		cause := errors.New("boom")
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := db.InTx(context.Background(), func(tx *sqlx.Tx) error { return cause })
		assert.ErrorIs(t, err, cause)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports a failed commit", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

		err := db.InTx(context.Background(), func(tx *sqlx.Tx) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "commit transaction")
	})
}
