package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgDuplicateKeyCode   = "23505"
	pgDuplicateTableCode = "42P07"
	pgUndefinedTableCode = "42P01"
)

// MapError translates database errors to domain errors.
// It maps sql.ErrNoRows and undefined_table (42P01) to notFoundErr and
// PostgreSQL unique violation (23505) to duplicateErr. Other errors are returned unchanged.
func MapError(err error, notFoundErr, duplicateErr error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) || hasCode(err, pgUndefinedTableCode) {
		return notFoundErr
	}

	if hasCode(err, pgDuplicateKeyCode) {
		return duplicateErr
	}

	return err
}

// IsDuplicateTable reports whether err is a PostgreSQL duplicate_table (42P07) error.
// CREATE TABLE IF NOT EXISTS can still raise it when two sessions race on the catalog.
func IsDuplicateTable(err error) bool {
	return hasCode(err, pgDuplicateTableCode)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
