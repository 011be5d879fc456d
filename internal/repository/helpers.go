package repository

import (
	"context"
	"database/sql"
	"errors"
)

// getOptional runs a single-row query. A missing row is reported as a nil
// result without error, which is how every Find* method treats absence.
func getOptional[T any](ctx context.Context, db sqlxDB, query string, args ...any) (*T, error) {
	var row T
	err := db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// getOne runs a single-row query that is expected to return a row, such as
// an upsert with RETURNING.
func getOne[T any](ctx context.Context, db sqlxDB, query string, args ...any) (*T, error) {
	var row T
	if err := db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, err
	}
	return &row, nil
}
