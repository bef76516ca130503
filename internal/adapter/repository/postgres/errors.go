package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iho/ledgersync/internal/domain"
)

// PostgreSQL error codes the gateway classifies.
const (
	pgErrForeignKeyViolation = "23503"
	pgErrCheckViolation      = "23514"
	pgErrUndefinedTable      = "42P01"
	pgErrUndefinedColumn     = "42703"
	pgErrInsufficientPriv    = "42501"
)

// mapError turns a pgx error into the domain error classes. notFound is
// returned for pgx.ErrNoRows and may be nil when a missing row is not an
// error for the caller. Deadlocks and serialization failures are passed
// through for the Retrier.
func mapError(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) && notFound != nil {
		return notFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrCheckViolation:
			return fmt.Errorf("%s: constraint %s: %w", op, pgErr.ConstraintName, domain.ErrValidation)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%s: constraint %s: %w", op, pgErr.ConstraintName, domain.ErrNotFound)
		case pgErrUndefinedTable, pgErrUndefinedColumn, pgErrInsufficientPriv:
			return domain.ConfigurationError(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return &domain.NetworkError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

var errForeignTx = errors.New("transaction was not started by this gateway")
