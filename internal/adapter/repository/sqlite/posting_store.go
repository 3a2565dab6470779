package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/postings/internal/domain"
)

const insertPosting = `
INSERT INTO postings (id, content_hash, event_at, created_at, metadata)
VALUES (?, ?, ?, ?, ?)
`

const insertEntry = `
INSERT INTO entries (posting_id, entry_index, account_id, side, amount, currency_code, currency_scale, event_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

const selectPostingIDByHash = `
SELECT id FROM postings WHERE content_hash = ?
`

// UpsertPosting inserts the posting and its entries in one transaction,
// treating a content_hash unique violation as the duplicate-detected
// outcome, same contract as the PostgreSQL backend.
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, err
	}
	defer rollback(tx, s.logger)

	var metadata any
	if posting.Metadata != nil {
		raw, err := json.Marshal(posting.Metadata)
		if err != nil {
			return "", false, err
		}
		metadata = string(raw)
	}

	_, err = tx.ExecContext(ctx, insertPosting,
		posting.ID,
		posting.ContentHash.String(),
		posting.EventAt.UTC().UnixNano(),
		posting.CreatedAt.UTC().UnixNano(),
		metadata,
	)
	if err != nil {
		if isUniqueViolation(err) {
			rollback(tx, s.logger)
			return s.fetchExisting(ctx, posting.ContentHash)
		}

		return "", false, err
	}

	for i, entry := range posting.Entries {
		_, err = tx.ExecContext(ctx, insertEntry,
			posting.ID,
			i,
			entry.AccountID,
			string(entry.Side),
			entry.Amount.String(),
			entry.Currency.Code,
			entry.Currency.Scale,
			posting.EventAt.UTC().UnixNano(),
		)
		if err != nil {
			return "", false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", false, err
	}

	return posting.ID, true, nil
}

func (s *Store) fetchExisting(ctx context.Context, hash domain.ContentHash) (string, bool, error) {
	var id string

	err := s.db.QueryRowContext(ctx, selectPostingIDByHash, hash.String()).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
WHERE content_hash = ?
`

const selectEntriesByPosting = `
SELECT account_id, side, amount, currency_code, currency_scale
FROM entries
WHERE posting_id = ?
ORDER BY entry_index
`

// GetPostingByHash retrieves a posting and its entries by content hash.
func (s *Store) GetPostingByHash(ctx context.Context, hash domain.ContentHash) (*domain.Posting, error) {
	row := s.db.QueryRowContext(ctx, selectPostingByHash, hash.String())

	var (
		posting            domain.Posting
		hashStr            string
		eventAt, createdAt int64
		metadata           sql.NullString
	)

	err := row.Scan(&posting.ID, &hashStr, &eventAt, &createdAt, &metadata)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPostingNotFound
		}

		return nil, classifyError(err)
	}

	posting.ContentHash = domain.ContentHash(hashStr)
	posting.EventAt = time.Unix(0, eventAt).UTC()
	posting.CreatedAt = time.Unix(0, createdAt).UTC()

	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &posting.Metadata); err != nil {
			return nil, classifyError(err)
		}
	}

	rows, err := s.db.QueryContext(ctx, selectEntriesByPosting, posting.ID)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entry  domain.Entry
			side   string
			amount string
		)

		if err := rows.Scan(&entry.AccountID, &side, &amount, &entry.Currency.Code, &entry.Currency.Scale); err != nil {
			return nil, classifyError(err)
		}

		entry.Side = domain.Side(side)

		entry.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, classifyError(err)
		}

		posting.Entries = append(posting.Entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}

	return &posting, nil
}

const selectEntryAmounts = `
SELECT side, amount
FROM entries
WHERE account_id = ? AND (? = 0 OR event_at <= ?)
`

// GetBalance sums entry amounts in Go with exact decimal arithmetic.
// SQLite's SUM coerces to floats, which would diverge from the PostgreSQL
// backend on precision.
func (s *Store) GetBalance(ctx context.Context, accountID string, asOf time.Time) (decimal.Decimal, error) {
	totalDebit, totalCredit, err := s.sumEntries(ctx, accountID, asOf)
	if err != nil {
		return decimal.Zero, err
	}

	return totalCredit.Sub(totalDebit), nil
}

// GetStatement computes gross debit and credit totals for an account.
func (s *Store) GetStatement(ctx context.Context, accountID string, asOf time.Time) (decimal.Decimal, decimal.Decimal, error) {
	return s.sumEntries(ctx, accountID, asOf)
}

func (s *Store) sumEntries(ctx context.Context, accountID string, asOf time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var bound int64
	if !asOf.IsZero() {
		bound = asOf.UTC().UnixNano()
	}

	rows, err := s.db.QueryContext(ctx, selectEntryAmounts, accountID, bound, bound)
	if err != nil {
		return decimal.Zero, decimal.Zero, classifyError(err)
	}
	defer rows.Close()

	totalDebit, totalCredit := decimal.Zero, decimal.Zero

	for rows.Next() {
		var side, amountStr string

		if err := rows.Scan(&side, &amountStr); err != nil {
			return decimal.Zero, decimal.Zero, classifyError(err)
		}

		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return decimal.Zero, decimal.Zero, classifyError(err)
		}

		if domain.Side(side) == domain.Debit {
			totalDebit = totalDebit.Add(amount)
		} else {
			totalCredit = totalCredit.Add(amount)
		}
	}

	if err := rows.Err(); err != nil {
		return decimal.Zero, decimal.Zero, classifyError(err)
	}

	return totalDebit, totalCredit, nil
}
