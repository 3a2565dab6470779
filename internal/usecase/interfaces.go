package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/postings/internal/domain"
)

// Store is the storage port: the abstract persistence contract every
// backend implements. All mutating operations are atomic per call; readers
// never observe a partially applied posting. Backends signal failures as
// *domain.StorageError so callers can decide on retries.
type Store interface {
	// UpsertPosting persists a validated posting atomically, idempotent on
	// ContentHash. When a posting with the same hash already exists, the
	// stored posting's ID is returned with wasNew=false and nothing is
	// written. Concurrent duplicates race at the backend uniqueness
	// constraint and converge on one canonical record.
	UpsertPosting(ctx context.Context, posting *domain.Posting) (postingID string, wasNew bool, err error)

	// GetPostingByHash returns the posting stored under hash, or
	// domain.ErrPostingNotFound.
	GetPostingByHash(ctx context.Context, hash domain.ContentHash) (*domain.Posting, error)

	// GetBalance returns the signed sum of the account's entries whose
	// posting event time is at or before asOf. The zero time means "all
	// entries". Every stored entry is denominated in its account's
	// currency (enforced ahead of the upsert), so the sum is a
	// single-currency amount. Unknown accounts sum to zero; existence is
	// a separate concern.
	GetBalance(ctx context.Context, accountID string, asOf time.Time) (decimal.Decimal, error)

	// GetStatement returns the gross debit and credit totals for the
	// account with the same asOf semantics as GetBalance.
	GetStatement(ctx context.Context, accountID string, asOf time.Time) (totalDebit, totalCredit decimal.Decimal, err error)

	// AccountExists reports whether the account is known to the backend.
	AccountExists(ctx context.Context, accountID string) (bool, error)

	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	ListAccounts(ctx context.Context, limit, offset int) ([]*domain.Account, error)

	Ping(ctx context.Context) error
	Close() error
}

// ErrCacheMiss is returned by Cache.Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Cache defines the non-authoritative read cache in front of the store.
// Implementations must bound entry lifetime; unavailability degrades reads
// to the store, never correctness.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Retrier retries an operation on transient storage failures.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}
