package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/ledgersync/internal/domain"
)

func TestTxManagerBeginSuccess(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectBegin()
	mockPool.ExpectCommit()

	manager := NewTxManager(mockPool)
	tx, err := manager.Begin(context.Background())
	require.NoError(t, err)
	require.NotNil(t, tx)

	require.NoError(t, tx.Commit(context.Background()))
	assertExpectations(t, mockPool)
}

func TestTxManagerBeginError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"plain failure", errors.New("begin failed"), false},
		{"connect failure", &pgconn.ConnectError{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPool := newMockPool(t)
			mockPool.ExpectBegin().WillReturnError(tt.err)

			_, err := NewTxManager(mockPool).Begin(context.Background())
			require.Error(t, err)

			var netErr *domain.NetworkError
			assert.Equal(t, tt.retryable, errors.As(err, &netErr))
		})
	}
}

func TestTxRollback(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectBegin()
	mockPool.ExpectRollback()

	tx, err := NewTxManager(mockPool).Begin(context.Background())
	require.NoError(t, err)

	require.NoError(t, tx.Rollback(context.Background()))
	assertExpectations(t, mockPool)
}

type foreignTx struct{}

func (foreignTx) Commit(context.Context) error   { return nil }
func (foreignTx) Rollback(context.Context) error { return nil }

func TestOnRejectsForeignTransaction(t *testing.T) {
	_, err := on(newMockPool(t), foreignTx{})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"check violation", &pgconn.PgError{Code: pgErrCheckViolation, ConstraintName: "accounts_balance_check"}, domain.ErrValidation},
		{"foreign key", &pgconn.PgError{Code: pgErrForeignKeyViolation}, domain.ErrNotFound},
		{"missing table", &pgconn.PgError{Code: pgErrUndefinedTable}, domain.ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError("op", tt.err, nil), tt.target)
		})
	}

	assert.NoError(t, mapError("op", nil, domain.ErrEntryNotFound))

	deadlock := &pgconn.PgError{Code: pgErrDeadlock}
	assert.True(t, isRetryableError(mapError("op", deadlock, nil)))
}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func assertExpectations(t *testing.T, pool pgxmock.PgxPoolIface) {
	t.Helper()
	require.NoError(t, pool.ExpectationsWereMet())
}
