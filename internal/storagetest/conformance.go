// Package storagetest exercises the storage port contract. Every backend
// runs the same suite through its own factory, so behavior that matters to
// callers (idempotent upserts, exact arithmetic, time filtering) cannot
// drift between implementations.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/postings/internal/domain"
	"github.com/iho/postings/internal/usecase"
)

// Factory builds a fresh, empty store for one subtest. Implementations
// should register cleanup with t.Cleanup.
type Factory func(t *testing.T) usecase.Store

var usd = domain.Currency{Code: "USD", Scale: 2}

// Run executes the full conformance suite against stores built by factory.
func Run(t *testing.T, factory Factory) {
	t.Run("PingAnswers", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Ping(context.Background()))
	})

	t.Run("CreateAndGetAccount", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		account := &domain.Account{
			ID:        "acc-cash",
			Name:      "Cash",
			Currency:  usd,
			CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		}
		require.NoError(t, store.CreateAccount(ctx, account))

		got, err := store.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, account.ID, got.ID)
		assert.Equal(t, account.Name, got.Name)
		assert.Equal(t, account.Currency, got.Currency)

		exists, err := store.AccountExists(ctx, account.ID)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = store.AccountExists(ctx, "acc-nope")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("DuplicateAccountRejected", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		createAccount(t, store, "acc-dup")

		err := store.CreateAccount(ctx, &domain.Account{
			ID:        "acc-dup",
			Name:      "Duplicate",
			Currency:  usd,
			CreatedAt: time.Now().UTC(),
		})
		require.ErrorIs(t, err, domain.ErrAccountExists)
	})

	t.Run("GetAccountNotFound", func(t *testing.T) {
		store := factory(t)

		_, err := store.GetAccount(context.Background(), "acc-missing")
		require.ErrorIs(t, err, domain.ErrAccountNotFound)
	})

	t.Run("ListAccountsPaginated", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			createAccount(t, store, fmt.Sprintf("acc-%02d", i))
		}

		page, err := store.ListAccounts(ctx, 3, 0)
		require.NoError(t, err)
		require.Len(t, page, 3)

		rest, err := store.ListAccounts(ctx, 3, 3)
		require.NoError(t, err)
		require.Len(t, rest, 2)

		assert.NotEqual(t, page[0].ID, rest[0].ID)
	})

	t.Run("UpsertIsIdempotent", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		createAccount(t, store, "acc-a")
		createAccount(t, store, "acc-b")

		posting := buildPosting(t, "acc-a", "acc-b", "10.00", time.Now().UTC())

		firstID, wasNew, err := store.UpsertPosting(ctx, posting)
		require.NoError(t, err)
		assert.True(t, wasNew)
		assert.Equal(t, posting.ID, firstID)

		// Resubmitting identical content under a fresh candidate ID must
		// return the stored record unchanged, no matter how often.
		for i := 0; i < 5; i++ {
			dup := *posting
			dup.ID = ulid.Make().String()

			id, wasNew, err := store.UpsertPosting(ctx, &dup)
			require.NoError(t, err)
			assert.False(t, wasNew)
			assert.Equal(t, firstID, id)
		}

		balance, err := store.GetBalance(ctx, "acc-a", time.Time{})
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.RequireFromString("-10.00")),
			"balance %s after duplicate submissions", balance)
	})

	t.Run("GetPostingByHashRoundTrip", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		createAccount(t, store, "acc-a")
		createAccount(t, store, "acc-b")

		eventAt := time.Now().UTC().Truncate(time.Microsecond)
		posting := buildPosting(t, "acc-a", "acc-b", "42.50", eventAt)
		posting.Metadata = map[string]string{"ref": "inv-1001"}

		_, _, err := store.UpsertPosting(ctx, posting)
		require.NoError(t, err)

		got, err := store.GetPostingByHash(ctx, posting.ContentHash)
		require.NoError(t, err)
		assert.Equal(t, posting.ID, got.ID)
		assert.Equal(t, posting.ContentHash, got.ContentHash)
		assert.Equal(t, posting.Metadata, got.Metadata)
		assert.True(t, eventAt.Equal(got.EventAt), "event_at %s != %s", got.EventAt, eventAt)

		require.Len(t, got.Entries, 2)
		for i, entry := range got.Entries {
			assert.Equal(t, posting.Entries[i].AccountID, entry.AccountID)
			assert.Equal(t, posting.Entries[i].Side, entry.Side)
			assert.True(t, posting.Entries[i].Amount.Equal(entry.Amount))
			assert.Equal(t, posting.Entries[i].Currency, entry.Currency)
		}
	})

	t.Run("GetPostingByHashNotFound", func(t *testing.T) {
		store := factory(t)

		draft := domain.PostingDraft{Entries: []domain.Entry{
			{AccountID: "x", Side: domain.Debit, Amount: decimal.New(1, 0), Currency: usd},
			{AccountID: "y", Side: domain.Credit, Amount: decimal.New(1, 0), Currency: usd},
		}}
		hash, err := domain.Canonicalizer{}.Hash(draft)
		require.NoError(t, err)

		_, err = store.GetPostingByHash(context.Background(), hash)
		require.ErrorIs(t, err, domain.ErrPostingNotFound)
	})

	t.Run("BalanceIsExact", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		createAccount(t, store, "acc-a")
		createAccount(t, store, "acc-b")

		// A hundred distinct cent amounts trip float arithmetic when summed
		// naively; the stored total must come back as exactly 50.50.
		eventAt := time.Now().UTC()
		for i := 1; i <= 100; i++ {
			amount := decimal.New(int64(i), -2).String()
			posting := buildPosting(t, "acc-a", "acc-b", amount, eventAt)
			_, _, err := store.UpsertPosting(ctx, posting)
			require.NoError(t, err)
		}

		balance, err := store.GetBalance(ctx, "acc-b", time.Time{})
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.RequireFromString("50.50")),
			"credit side balance %s", balance)

		balance, err = store.GetBalance(ctx, "acc-a", time.Time{})
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.RequireFromString("-50.50")),
			"debit side balance %s", balance)
	})

	t.Run("BalanceAsOfFiltersByEventTime", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		createAccount(t, store, "acc-a")
		createAccount(t, store, "acc-b")

		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		early := buildPosting(t, "acc-a", "acc-b", "5.00", base)
		late := buildPosting(t, "acc-a", "acc-b", "7.00", base.Add(time.Hour))

		for _, p := range []*domain.Posting{early, late} {
			_, _, err := store.UpsertPosting(ctx, p)
			require.NoError(t, err)
		}

		atCutoff, err := store.GetBalance(ctx, "acc-b", base.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, atCutoff.Equal(decimal.RequireFromString("5.00")), "as-of balance %s", atCutoff)

		beforeAll, err := store.GetBalance(ctx, "acc-b", base.Add(-time.Minute))
		require.NoError(t, err)
		assert.True(t, beforeAll.IsZero(), "balance before any events %s", beforeAll)

		all, err := store.GetBalance(ctx, "acc-b", time.Time{})
		require.NoError(t, err)
		assert.True(t, all.Equal(decimal.RequireFromString("12.00")), "total balance %s", all)
	})

	t.Run("BalanceOfUnknownAccountIsZero", func(t *testing.T) {
		store := factory(t)

		balance, err := store.GetBalance(context.Background(), "acc-ghost", time.Time{})
		require.NoError(t, err)
		assert.True(t, balance.IsZero())
	})

	t.Run("StatementTotalsAreGross", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		createAccount(t, store, "acc-a")
		createAccount(t, store, "acc-b")

		now := time.Now().UTC()

		// acc-a is debited 3.00 and credited 8.00.
		out := buildPosting(t, "acc-a", "acc-b", "3.00", now)
		in := buildPosting(t, "acc-b", "acc-a", "8.00", now.Add(time.Second))

		for _, p := range []*domain.Posting{out, in} {
			_, _, err := store.UpsertPosting(ctx, p)
			require.NoError(t, err)
		}

		totalDebit, totalCredit, err := store.GetStatement(ctx, "acc-a", time.Time{})
		require.NoError(t, err)
		assert.True(t, totalDebit.Equal(decimal.RequireFromString("3.00")), "total debit %s", totalDebit)
		assert.True(t, totalCredit.Equal(decimal.RequireFromString("8.00")), "total credit %s", totalCredit)

		balance, err := store.GetBalance(ctx, "acc-a", time.Time{})
		require.NoError(t, err)
		assert.True(t, balance.Equal(totalCredit.Sub(totalDebit)),
			"balance %s != credit-debit %s", balance, totalCredit.Sub(totalDebit))
	})

	t.Run("ConcurrentDuplicatesConverge", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		createAccount(t, store, "acc-a")
		createAccount(t, store, "acc-b")

		template := buildPosting(t, "acc-a", "acc-b", "99.99", time.Now().UTC())

		const writers = 8

		type outcome struct {
			id     string
			wasNew bool
			err    error
		}

		results := make([]outcome, writers)

		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()

				candidate := *template
				candidate.ID = ulid.Make().String()

				id, wasNew, err := store.UpsertPosting(ctx, &candidate)
				results[i] = outcome{id: id, wasNew: wasNew, err: err}
			}(i)
		}
		wg.Wait()

		var canonicalID string
		var inserted int
		for _, res := range results {
			require.NoError(t, res.err)
			if res.wasNew {
				inserted++
			}
			if canonicalID == "" {
				canonicalID = res.id
			}
			assert.Equal(t, canonicalID, res.id)
		}
		assert.Equal(t, 1, inserted, "exactly one writer should insert")

		// The losers' writes left no trace: one posting's worth of movement.
		balance, err := store.GetBalance(ctx, "acc-b", time.Time{})
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.RequireFromString("99.99")), "balance %s", balance)
	})

	t.Run("StorageErrorsCarryKind", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		createAccount(t, store, "acc-err")

		err := store.CreateAccount(ctx, &domain.Account{
			ID:        "acc-err",
			Name:      "Again",
			Currency:  usd,
			CreatedAt: time.Now().UTC(),
		})
		require.Error(t, err)

		// Domain sentinels pass through untouched; anything else must be a
		// classified StorageError.
		var storageErr *domain.StorageError
		if !errors.Is(err, domain.ErrAccountExists) {
			require.ErrorAs(t, err, &storageErr)
		}
	})
}

func createAccount(t *testing.T, store usecase.Store, id string) {
	t.Helper()

	err := store.CreateAccount(context.Background(), &domain.Account{
		ID:        id,
		Name:      "Account " + id,
		Currency:  usd,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

// buildPosting creates a two-entry posting debiting from and crediting to,
// with its content hash computed the same way the service does.
func buildPosting(t *testing.T, from, to, amount string, eventAt time.Time) *domain.Posting {
	t.Helper()

	entries := []domain.Entry{
		{AccountID: from, Side: domain.Debit, Amount: decimal.RequireFromString(amount), Currency: usd},
		{AccountID: to, Side: domain.Credit, Amount: decimal.RequireFromString(amount), Currency: usd},
	}

	draft := domain.PostingDraft{Entries: entries, EventAt: eventAt}

	hash, err := domain.Canonicalizer{}.Hash(draft)
	require.NoError(t, err)

	return &domain.Posting{
		ID:          ulid.Make().String(),
		ContentHash: hash,
		Entries:     entries,
		EventAt:     eventAt,
		CreatedAt:   time.Now().UTC(),
	}
}
