package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/iho/postings/internal/domain"
	"github.com/iho/postings/internal/usecase"
)

var _ usecase.Store = (*Store)(nil)

// Store implements usecase.Store on SQLite.
type Store struct {
	db      *sql.DB
	retrier usecase.Retrier
	logger  zerolog.Logger
}

// NewStore creates a new Store.
func NewStore(db *sql.DB, retrier usecase.Retrier, logger zerolog.Logger) *Store {
	return &Store{db: db, retrier: retrier, logger: logger}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

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

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return domain.NewStorageError(domain.StorageTransactionConflict, err)
		case sqlite3.ErrConstraint:
			return domain.NewStorageError(domain.StorageConstraintViolation, err)
		}
	}

	return domain.NewStorageError(domain.StorageConnectionFailure, err)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func rollback(tx *sql.Tx, logger zerolog.Logger) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.Warn().Err(err).Msg("transaction rollback failed")
	}
}
