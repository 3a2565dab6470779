package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/postings/internal/domain"
)

const insertPosting = `
INSERT INTO postings (id, content_hash, event_at, created_at, metadata)
VALUES ($1, $2, $3, $4, $5)
`

const insertEntry = `
INSERT INTO entries (posting_id, entry_index, account_id, side, amount, currency_code, currency_scale, event_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

const selectPostingIDByHash = `
SELECT id FROM postings WHERE content_hash = $1
`

// UpsertPosting inserts the posting and its entries in one transaction.
// A unique violation on content_hash is the duplicate-detected outcome:
// the transaction is rolled back and the existing posting's ID returned.
// The insert waits on an uncommitted writer holding the same hash, so
// concurrent duplicates converge on a single stored record.
func (s *Store) UpsertPosting(ctx context.Context, posting *domain.Posting) (string, bool, error) {
	var (
		postingID string
		wasNew    bool
	)

	err := s.retrier.Retry(ctx, func() error {
		id, isNew, err := s.upsertOnce(ctx, posting)
		if err != nil {
			return err
		}

		postingID, wasNew = id, isNew
		return nil
	})
	if err != nil {
		return "", false, classifyError(err)
	}

	return postingID, wasNew, nil
}

func (s *Store) upsertOnce(ctx context.Context, posting *domain.Posting) (string, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", false, err
	}
	defer rollback(ctx, tx, s.logger)

	var metadata []byte
	if posting.Metadata != nil {
		metadata, err = json.Marshal(posting.Metadata)
		if err != nil {
			return "", false, err
		}
	}

	_, err = tx.Exec(ctx, insertPosting,
		posting.ID,
		posting.ContentHash.String(),
		timeToPgTimestamptz(posting.EventAt),
		timeToPgTimestamptz(posting.CreatedAt),
		metadata,
	)
	if err != nil {
		if isUniqueViolation(err, "postings_content_hash_key") {
			rollback(ctx, tx, s.logger)
			return s.fetchExisting(ctx, posting.ContentHash)
		}

		return "", false, err
	}

	for i, entry := range posting.Entries {
		_, err = tx.Exec(ctx, insertEntry,
			posting.ID,
			int32(i),
			entry.AccountID,
			string(entry.Side),
			decimalToNumeric(entry.Amount),
			entry.Currency.Code,
			entry.Currency.Scale,
			timeToPgTimestamptz(posting.EventAt),
		)
		if err != nil {
			return "", false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", false, err
	}

	return posting.ID, true, nil
}

func (s *Store) fetchExisting(ctx context.Context, hash domain.ContentHash) (string, bool, error) {
	var id string

	err := s.pool.QueryRow(ctx, selectPostingIDByHash, hash.String()).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Losing a race against a writer that then rolled back.
			// Surface as a conflict so the retrier takes another pass.
			return "", false, domain.NewStorageError(domain.StorageTransactionConflict,
				errors.New("duplicate hash vanished before fetch"))
		}

		return "", false, err
	}

	return id, false, nil
}

const selectPostingByHash = `
SELECT id, content_hash, event_at, created_at, metadata
FROM postings
WHERE content_hash = $1
`

const selectEntriesByPosting = `
SELECT account_id, side, amount, currency_code, currency_scale
FROM entries
WHERE posting_id = $1
ORDER BY entry_index
`

// GetPostingByHash retrieves a posting and its entries by content hash.
func (s *Store) GetPostingByHash(ctx context.Context, hash domain.ContentHash) (*domain.Posting, error) {
	row := s.pool.QueryRow(ctx, selectPostingByHash, hash.String())

	var (
		posting  domain.Posting
		hashStr  string
		metadata []byte
	)

	err := row.Scan(&posting.ID, &hashStr, &posting.EventAt, &posting.CreatedAt, &metadata)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPostingNotFound
		}

		return nil, classifyError(err)
	}

	posting.ContentHash = domain.ContentHash(hashStr)

	if metadata != nil {
		if err := json.Unmarshal(metadata, &posting.Metadata); err != nil {
			return nil, classifyError(err)
		}
	}

	rows, err := s.pool.Query(ctx, selectEntriesByPosting, posting.ID)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entry  domain.Entry
			side   string
			amount = newNumeric()
		)

		if err := rows.Scan(&entry.AccountID, &side, &amount, &entry.Currency.Code, &entry.Currency.Scale); err != nil {
			return nil, classifyError(err)
		}

		entry.Side = domain.Side(side)
		entry.Amount = numericToDecimal(*amount)
		posting.Entries = append(posting.Entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}

	return &posting, nil
}

const selectBalance = `
SELECT COALESCE(SUM(CASE WHEN side = 'credit' THEN amount ELSE -amount END), 0)::NUMERIC
FROM entries
WHERE account_id = $1 AND ($2::TIMESTAMPTZ IS NULL OR event_at <= $2)
`

// GetBalance computes the signed entry sum as an indexed aggregate.
func (s *Store) GetBalance(ctx context.Context, accountID string, asOf time.Time) (decimal.Decimal, error) {
	balance := newNumeric()

	err := s.pool.QueryRow(ctx, selectBalance, accountID, timeOrNull(asOf)).Scan(balance)
	if err != nil {
		return decimal.Zero, classifyError(err)
	}

	return numericToDecimal(*balance), nil
}

const selectStatement = `
SELECT
    COALESCE(SUM(CASE WHEN side = 'debit' THEN amount ELSE 0 END), 0)::NUMERIC,
    COALESCE(SUM(CASE WHEN side = 'credit' THEN amount ELSE 0 END), 0)::NUMERIC
FROM entries
WHERE account_id = $1 AND ($2::TIMESTAMPTZ IS NULL OR event_at <= $2)
`

// GetStatement computes gross debit and credit totals for an account.
func (s *Store) GetStatement(ctx context.Context, accountID string, asOf time.Time) (decimal.Decimal, decimal.Decimal, error) {
	totalDebit := newNumeric()
	totalCredit := newNumeric()

	err := s.pool.QueryRow(ctx, selectStatement, accountID, timeOrNull(asOf)).Scan(totalDebit, totalCredit)
	if err != nil {
		return decimal.Zero, decimal.Zero, classifyError(err)
	}

	return numericToDecimal(*totalDebit), numericToDecimal(*totalCredit), nil
}
