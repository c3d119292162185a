package review

import (
	"context"
	"database/sql"
	"errors"

	"github.com/JaimeStill/vigil/pkg/repository"
)

type pgLedger struct {
	db *sql.DB
}

// NewLedger returns a Ledger backed by the shared_resources table and
// serialized by a Postgres advisory lock.
func NewLedger(db *sql.DB) Ledger {
	return &pgLedger{db: db}
}

func (l *pgLedger) Resolve(
	ctx context.Context,
	name string,
	create func(ctx context.Context) (string, error),
) (string, error) {
	return repository.WithAdvisoryLock(ctx, l.db, name, func(tx *sql.Tx) (string, error) {
		var ref string
		err := tx.QueryRowContext(ctx,
			"SELECT ref FROM shared_resources WHERE name = $1", name,
		).Scan(&ref)
		if err == nil {
			return ref, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", err
		}

		ref, err = create(ctx)
		if err != nil {
			return "", err
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO shared_resources (name, ref) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING",
			name, ref,
		)
		return ref, err
	})
}
