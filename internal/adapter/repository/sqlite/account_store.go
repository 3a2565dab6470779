package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iho/postings/internal/domain"
)

const insertAccount = `
INSERT INTO accounts (id, name, currency_code, currency_scale, created_at)
VALUES (?, ?, ?, ?, ?)
`

const selectAccountByID = `
SELECT id, name, currency_code, currency_scale, created_at
FROM accounts
WHERE id = ?
`

const selectAccountExists = `
SELECT EXISTS (SELECT 1 FROM accounts WHERE id = ?)
`

const selectAccounts = `
SELECT id, name, currency_code, currency_scale, created_at
FROM accounts
ORDER BY id
LIMIT ? OFFSET ?
`

// CreateAccount inserts a new account.
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	_, err := s.db.ExecContext(ctx, insertAccount,
		account.ID,
		account.Name,
		account.Currency.Code,
		account.Currency.Scale,
		account.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAccountExists
		}

		return classifyError(err)
	}

	return nil
}

// GetAccount retrieves an account by ID.
func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	var (
		account   domain.Account
		createdAt int64
	)

	err := s.db.QueryRowContext(ctx, selectAccountByID, id).Scan(
		&account.ID,
		&account.Name,
		&account.Currency.Code,
		&account.Currency.Scale,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}

		return nil, classifyError(err)
	}

	account.CreatedAt = time.Unix(0, createdAt).UTC()

	return &account, nil
}

// AccountExists reports whether an account is stored.
func (s *Store) AccountExists(ctx context.Context, accountID string) (bool, error) {
	var exists bool

	err := s.db.QueryRowContext(ctx, selectAccountExists, accountID).Scan(&exists)
	if err != nil {
		return false, classifyError(err)
	}

	return exists, nil
}

// ListAccounts lists accounts ordered by ID.
func (s *Store) ListAccounts(ctx context.Context, limit, offset int) ([]*domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, selectAccounts, limit, offset)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		var (
			account   domain.Account
			createdAt int64
		)

		err := rows.Scan(
			&account.ID,
			&account.Name,
			&account.Currency.Code,
			&account.Currency.Scale,
			&createdAt,
		)
		if err != nil {
			return nil, classifyError(err)
		}

		account.CreatedAt = time.Unix(0, createdAt).UTC()
		accounts = append(accounts, &account)
	}

	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}

	return accounts, nil
}
