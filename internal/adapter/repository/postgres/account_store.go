package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/iho/postings/internal/domain"
)

const insertAccount = `
INSERT INTO accounts (id, name, currency_code, currency_scale, created_at)
VALUES ($1, $2, $3, $4, $5)
`

const selectAccountByID = `
SELECT id, name, currency_code, currency_scale, created_at
FROM accounts
WHERE id = $1
`

const selectAccountExists = `
SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)
`

const selectAccounts = `
SELECT id, name, currency_code, currency_scale, created_at
FROM accounts
ORDER BY id
LIMIT $1 OFFSET $2
`

// CreateAccount inserts a new account.
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	_, err := s.pool.Exec(ctx, insertAccount,
		account.ID,
		account.Name,
		account.Currency.Code,
		account.Currency.Scale,
		timeToPgTimestamptz(account.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "accounts_pkey") {
			return domain.ErrAccountExists
		}

		return classifyError(err)
	}

	return nil
}

// GetAccount retrieves an account by ID.
func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	var account domain.Account

	err := s.pool.QueryRow(ctx, selectAccountByID, id).Scan(
		&account.ID,
		&account.Name,
		&account.Currency.Code,
		&account.Currency.Scale,
		&account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}

		return nil, classifyError(err)
	}

	return &account, nil
}

// AccountExists reports whether an account is stored.
func (s *Store) AccountExists(ctx context.Context, accountID string) (bool, error) {
	var exists bool

	err := s.pool.QueryRow(ctx, selectAccountExists, accountID).Scan(&exists)
	if err != nil {
		return false, classifyError(err)
	}

	return exists, nil
}

// ListAccounts lists accounts ordered by ID.
func (s *Store) ListAccounts(ctx context.Context, limit, offset int) ([]*domain.Account, error) {
	rows, err := s.pool.Query(ctx, selectAccounts, int32(limit), int32(offset))
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		var account domain.Account

		err := rows.Scan(
			&account.ID,
			&account.Name,
			&account.Currency.Code,
			&account.Currency.Scale,
			&account.CreatedAt,
		)
		if err != nil {
			return nil, classifyError(err)
		}

		accounts = append(accounts, &account)
	}

	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}

	return accounts, nil
}
