package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/postings/internal/adapter/repository/memcache"
	"github.com/iho/postings/internal/domain"
	"github.com/iho/postings/internal/usecase"
	"github.com/iho/postings/internal/usecase/mocks"
)

var usd = domain.Currency{Code: "USD", Scale: 2}

func seedAccounts(store *mocks.MockStore, ids ...string) {
	for _, id := range ids {
		store.AddAccount(&domain.Account{
			ID:        id,
			Name:      "Account " + id,
			Currency:  usd,
			CreatedAt: time.Now().UTC(),
		})
	}
}

func validDraft(amount string) domain.PostingDraft {
	return domain.PostingDraft{Entries: []domain.Entry{
		{AccountID: "acc-a", Side: domain.Debit, Amount: decimal.RequireFromString(amount), Currency: usd},
		{AccountID: "acc-b", Side: domain.Credit, Amount: decimal.RequireFromString(amount), Currency: usd},
	}}
}

func newPostingUC(store usecase.Store, cache usecase.Cache) *usecase.PostingUseCase {
	return usecase.NewPostingUseCase(store, cache, mocks.NewMockIDGenerator(), nil, usecase.PostingConfig{}, zerolog.Nop())
}

func TestSubmitAccepted(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	store := mocks.NewMockStore()
	seedAccounts(store, "acc-a", "acc-b")

	// A fresh posting invalidates the touched balances and caches itself.
	cache.EXPECT().Delete(gomock.Any(), "balance:acc-a", "balance:acc-b").Return(nil)
	cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	uc := newPostingUC(store, cache)

	result, err := uc.Submit(context.Background(), validDraft("10.00"))
	require.NoError(t, err)
	assert.False(t, result.AlreadyExisted)
	assert.Equal(t, "id-0001", result.PostingID)
	require.NoError(t, result.ContentHash.Validate())
	assert.Equal(t, 1, store.PostingCount())
}

func TestSubmitDuplicateReturnsCanonicalID(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	store := mocks.NewMockStore()
	seedAccounts(store, "acc-a", "acc-b")

	// Only the first submission mutates the cache.
	cache.EXPECT().Delete(gomock.Any(), "balance:acc-a", "balance:acc-b").Return(nil).Times(1)
	cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)

	uc := newPostingUC(store, cache)

	first, err := uc.Submit(context.Background(), validDraft("10.00"))
	require.NoError(t, err)
	require.False(t, first.AlreadyExisted)

	second, err := uc.Submit(context.Background(), validDraft("10.00"))
	require.NoError(t, err)
	assert.True(t, second.AlreadyExisted)
	assert.Equal(t, first.PostingID, second.PostingID)
	assert.Equal(t, first.ContentHash, second.ContentHash)
	assert.Equal(t, 1, store.PostingCount())
}

func TestSubmitEntryOrderDoesNotMatter(t *testing.T) {
	store := mocks.NewMockStore()
	seedAccounts(store, "acc-a", "acc-b")

	uc := newPostingUC(store, nil)

	draft := validDraft("10.00")
	first, err := uc.Submit(context.Background(), draft)
	require.NoError(t, err)

	reordered := domain.PostingDraft{Entries: []domain.Entry{draft.Entries[1], draft.Entries[0]}}

	second, err := uc.Submit(context.Background(), reordered)
	require.NoError(t, err)
	assert.True(t, second.AlreadyExisted)
	assert.Equal(t, first.PostingID, second.PostingID)
}

func TestSubmitValidationFailureLeavesNoTrace(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl) // no expectations: any cache call fails the test
	store := mocks.NewMockStore()
	seedAccounts(store, "acc-a", "acc-b")

	uc := newPostingUC(store, cache)

	unbalanced := domain.PostingDraft{Entries: []domain.Entry{
		{AccountID: "acc-a", Side: domain.Debit, Amount: decimal.RequireFromString("10.00"), Currency: usd},
		{AccountID: "acc-b", Side: domain.Credit, Amount: decimal.RequireFromString("9.99"), Currency: usd},
	}}

	_, err := uc.Submit(context.Background(), unbalanced)
	require.ErrorIs(t, err, domain.ErrUnbalanced)
	assert.Equal(t, 0, store.PostingCount())
}

func TestSubmitUnknownAccount(t *testing.T) {
	store := mocks.NewMockStore()
	seedAccounts(store, "acc-a") // acc-b missing

	uc := newPostingUC(store, nil)

	_, err := uc.Submit(context.Background(), validDraft("10.00"))
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.Equal(t, 0, store.PostingCount())
}

func TestSubmitRejectsCurrencyMismatch(t *testing.T) {
	store := mocks.NewMockStore()
	seedAccounts(store, "acc-a", "acc-b") // both held in USD

	uc := newPostingUC(store, nil)

	eur := domain.Currency{Code: "EUR", Scale: 2}
	draft := domain.PostingDraft{Entries: []domain.Entry{
		{AccountID: "acc-a", Side: domain.Debit, Amount: decimal.RequireFromString("7.00"), Currency: eur},
		{AccountID: "acc-b", Side: domain.Credit, Amount: decimal.RequireFromString("7.00"), Currency: eur},
	}}

	// Balanced in EUR, but the accounts are USD: incomparable amounts must
	// never reach an account's balance.
	_, err := uc.Submit(context.Background(), draft)
	require.ErrorIs(t, err, domain.ErrCurrencyMismatch)
	assert.Equal(t, 0, store.PostingCount())

	balance, err := uc.Balance(context.Background(), "acc-a", time.Time{})
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestSubmitStorageFailureSurfaces(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl) // a failed write must not touch the cache
	store := mocks.NewMockStore()
	seedAccounts(store, "acc-a", "acc-b")

	store.UpsertPostingFunc = func(_ context.Context, _ *domain.Posting) (string, bool, error) {
		return "", false, domain.NewStorageError(domain.StorageConnectionFailure, errors.New("connection refused"))
	}

	uc := newPostingUC(store, cache)

	_, err := uc.Submit(context.Background(), validDraft("10.00"))

	var storageErr *domain.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.True(t, storageErr.Retryable())
}

func TestBalanceCurrentUsesCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	store := mocks.NewMockStore()
	seedAccounts(store, "acc-a")

	// A cache hit answers entirely from the cache, existence included.
	store.GetBalanceFunc = func(_ context.Context, _ string, _ time.Time) (decimal.Decimal, error) {
		t.Fatal("store must not be hit on a cache hit")
		return decimal.Zero, nil
	}
	store.AccountExistsFunc = func(_ context.Context, _ string) (bool, error) {
		t.Fatal("existence must not be checked on a cache hit")
		return false, nil
	}

	cache.EXPECT().Get(gomock.Any(), "balance:acc-a").Return([]byte("42.00"), nil)

	uc := newPostingUC(store, cache)

	balance, err := uc.Balance(context.Background(), "acc-a", time.Time{})
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("42.00")))
}

func TestBalanceCacheMissFallsThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	store := mocks.NewMockStore()
	seedAccounts(store, "acc-a")

	store.GetBalanceFunc = func(_ context.Context, _ string, _ time.Time) (decimal.Decimal, error) {
		return decimal.RequireFromString("17.25"), nil
	}

	cache.EXPECT().Get(gomock.Any(), "balance:acc-a").Return(nil, usecase.ErrCacheMiss)
	cache.EXPECT().Set(gomock.Any(), "balance:acc-a", []byte("17.25"), gomock.Any()).Return(nil)

	uc := newPostingUC(store, cache)

	balance, err := uc.Balance(context.Background(), "acc-a", time.Time{})
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("17.25")))
}

func TestBalanceCacheFailureDegradesToStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	store := mocks.NewMockStore()
	seedAccounts(store, "acc-a")

	store.GetBalanceFunc = func(_ context.Context, _ string, _ time.Time) (decimal.Decimal, error) {
		return decimal.RequireFromString("3.00"), nil
	}

	// A broken cache costs latency, never a wrong answer.
	cache.EXPECT().Get(gomock.Any(), "balance:acc-a").Return(nil, errors.New("cache down"))
	cache.EXPECT().Set(gomock.Any(), "balance:acc-a", []byte("3.00"), gomock.Any()).Return(errors.New("cache down"))

	uc := newPostingUC(store, cache)

	balance, err := uc.Balance(context.Background(), "acc-a", time.Time{})
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("3.00")))
}

func TestBalanceReadDoesNotResurrectPreWriteValue(t *testing.T) {
	store := mocks.NewMockStore()
	seedAccounts(store, "acc-a", "acc-b")
	cache := memcache.New(16)

	uc := newPostingUC(store, cache)

	entered := make(chan struct{})
	release := make(chan struct{})

	var calls atomic.Int32
	store.GetBalanceFunc = func(_ context.Context, _ string, _ time.Time) (decimal.Decimal, error) {
		if calls.Add(1) == 1 {
			// First read starts before the write commits and finishes
			// after: the classic stale-fill interleaving.
			close(entered)
			<-release
			return decimal.Zero, nil
		}
		return decimal.RequireFromString("-10.00"), nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		balance, err := uc.Balance(context.Background(), "acc-a", time.Time{})
		assert.NoError(t, err)
		assert.True(t, balance.IsZero())
	}()

	<-entered

	_, err := uc.Submit(context.Background(), validDraft("10.00"))
	require.NoError(t, err)

	close(release)
	<-done

	// The slow reader returned the pre-write value to its caller, but it
	// must not have published it over the invalidation.
	balance, err := uc.Balance(context.Background(), "acc-a", time.Time{})
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("-10.00")),
		"balance after acknowledged write: got %s", balance)
}

func TestBalanceHistoricalBypassesCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl) // no expectations: historical reads never touch the cache
	store := mocks.NewMockStore()
	seedAccounts(store, "acc-a")

	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	store.GetBalanceFunc = func(_ context.Context, _ string, gotAsOf time.Time) (decimal.Decimal, error) {
		assert.True(t, asOf.Equal(gotAsOf))
		return decimal.RequireFromString("5.00"), nil
	}

	uc := newPostingUC(store, cache)

	balance, err := uc.Balance(context.Background(), "acc-a", asOf)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("5.00")))
}

func TestBalanceUnknownAccount(t *testing.T) {
	store := mocks.NewMockStore()
	uc := newPostingUC(store, nil)

	_, err := uc.Balance(context.Background(), "acc-ghost", time.Time{})
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestLookupInvalidHash(t *testing.T) {
	uc := newPostingUC(mocks.NewMockStore(), nil)

	_, err := uc.Lookup(context.Background(), "not-a-multihash")
	require.ErrorIs(t, err, domain.ErrInvalidContentHash)
}

func TestLookupCacheHit(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	store := mocks.NewMockStore()

	hash, err := domain.Canonicalizer{}.Hash(validDraft("10.00"))
	require.NoError(t, err)

	cached := domain.Posting{ID: "id-0001", ContentHash: hash}
	payload, err := json.Marshal(cached)
	require.NoError(t, err)

	store.GetPostingByHashFunc = func(_ context.Context, _ domain.ContentHash) (*domain.Posting, error) {
		t.Fatal("store must not be hit on a cache hit")
		return nil, nil
	}

	cache.EXPECT().Get(gomock.Any(), "posting:"+hash.String()).Return(payload, nil)

	uc := newPostingUC(store, cache)

	posting, err := uc.Lookup(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, "id-0001", posting.ID)
	assert.Equal(t, hash, posting.ContentHash)
}

func TestLookupNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	store := mocks.NewMockStore()

	hash, err := domain.Canonicalizer{}.Hash(validDraft("10.00"))
	require.NoError(t, err)

	cache.EXPECT().Get(gomock.Any(), "posting:"+hash.String()).Return(nil, usecase.ErrCacheMiss)

	uc := newPostingUC(store, cache)

	_, err = uc.Lookup(context.Background(), hash)
	require.ErrorIs(t, err, domain.ErrPostingNotFound)
}

func TestStatement(t *testing.T) {
	store := mocks.NewMockStore()
	seedAccounts(store, "acc-a")

	store.GetStatementFunc = func(_ context.Context, _ string, _ time.Time) (decimal.Decimal, decimal.Decimal, error) {
		return decimal.RequireFromString("3.00"), decimal.RequireFromString("8.00"), nil
	}

	uc := newPostingUC(store, nil)

	statement, err := uc.Statement(context.Background(), "acc-a", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "acc-a", statement.AccountID)
	assert.False(t, statement.AsOf.IsZero())
	assert.True(t, statement.TotalDebit.Equal(decimal.RequireFromString("3.00")))
	assert.True(t, statement.TotalCredit.Equal(decimal.RequireFromString("8.00")))
	assert.True(t, statement.Balance.Equal(decimal.RequireFromString("5.00")))
}

func TestStatementUnknownAccount(t *testing.T) {
	uc := newPostingUC(mocks.NewMockStore(), nil)

	_, err := uc.Statement(context.Background(), "acc-ghost", time.Time{})
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestSubmitWithNilCache(t *testing.T) {
	store := mocks.NewMockStore()
	seedAccounts(store, "acc-a", "acc-b")

	uc := newPostingUC(store, nil)

	result, err := uc.Submit(context.Background(), validDraft("10.00"))
	require.NoError(t, err)
	assert.False(t, result.AlreadyExisted)
}
