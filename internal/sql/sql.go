/*
Package sql implements persistent storage using the postgres database.
*/
package sql

import (
	"errors"

	"github.com/datapowersync/counters/internal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// CollectOneRow is a wrapper for pgx.CollectOneRow, translating errors into
// domain errors.
func CollectOneRow[T any](rows pgx.Rows, fn pgx.RowToFunc[T]) (T, error) {
	row, err := pgx.CollectOneRow(rows, fn)
	if err != nil {
		return *new(T), toError(err)
	}
	return row, nil
}

// CollectRows is a wrapper for pgx.CollectRows, translating errors into
// domain errors.
func CollectRows[T any](rows pgx.Rows, fn pgx.RowToFunc[T]) ([]T, error) {
	collected, err := pgx.CollectRows(rows, fn)
	if err != nil {
		return nil, toError(err)
	}
	return collected, nil
}

func toError(err error) error {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return internal.ErrResourceNotFound
	case errors.As(err, &pgErr):
		switch pgErr.Code {
		case "23505": // unique violation
			return internal.ErrResourceAlreadyExists
		}
		fallthrough
	default:
		return err
	}
}
