// Package postgres implements the storage port on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/iho/postings/internal/domain"
	"github.com/iho/postings/internal/usecase"
)

var _ usecase.Store = (*Store)(nil)

// PostgreSQL error codes.
const (
	pgErrUniqueViolation      = "23505"
	pgErrDeadlock             = "40P01"
	pgErrSerializationFailure = "40001"
	pgErrQueryCanceled        = "57014"
)

// Store implements usecase.Store on a pgx connection pool. Every mutating
// call runs in one transaction; the content_hash uniqueness constraint is
// the idempotency mechanism.
type Store struct {
	pool    *pgxpool.Pool
	retrier usecase.Retrier
	logger  zerolog.Logger
}

// NewStore creates a new Store.
func NewStore(pool *pgxpool.Pool, retrier usecase.Retrier, logger zerolog.Logger) *Store {
	return &Store{pool: pool, retrier: retrier, logger: logger}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// classifyError wraps backend failures as domain.StorageError so callers
// can tell retryable conditions from fatal ones. Domain sentinels pass
// through untouched.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if domain.IsValidationError(err) ||
		errors.Is(err, domain.ErrPostingNotFound) ||
		errors.Is(err, domain.ErrAccountExists) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewStorageError(domain.StorageTimeout, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrDeadlock, pgErrSerializationFailure:
			return domain.NewStorageError(domain.StorageTransactionConflict, err)
		case pgErrQueryCanceled:
			return domain.NewStorageError(domain.StorageTimeout, err)
		}

		if pgErr.Code[:2] == "23" {
			return domain.NewStorageError(domain.StorageConstraintViolation, err)
		}
	}

	return domain.NewStorageError(domain.StorageConnectionFailure, err)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}

	return pgErr.Code == pgErrUniqueViolation && pgErr.ConstraintName == constraint
}

func rollback(ctx context.Context, tx pgx.Tx, logger zerolog.Logger) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		logger.Warn().Err(err).Msg("transaction rollback failed")
	}
}
