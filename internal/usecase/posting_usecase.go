package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/postings/internal/domain"
	"github.com/iho/postings/internal/infrastructure/metrics"
)

// PostingUseCase orchestrates the posting pipeline: validate, compute the
// content identity, upsert through the storage port, maintain the cache.
// It holds no state of its own.
type PostingUseCase struct {
	store   Store
	cache   Cache
	idGen   IDGenerator
	canon   domain.Canonicalizer
	metrics *metrics.Metrics
	logger  zerolog.Logger

	balanceTTL time.Duration
	postingTTL time.Duration

	// balanceGens counts writes per account. A cache-miss reader snapshots
	// the counter before querying the store and may only publish its result
	// while the counter is unchanged, so a slow read can never resurrect a
	// balance that a later write already invalidated.
	genMu       sync.Mutex
	balanceGens map[string]uint64
}

// PostingConfig carries construction-time options for the posting service.
type PostingConfig struct {
	// HashMetadata includes posting metadata in the ContentHash, making
	// metadata-only resubmissions distinct postings.
	HashMetadata bool
	// BalanceTTL bounds the lifetime of cached balances.
	BalanceTTL time.Duration
	// PostingTTL bounds the lifetime of cached posting lookups.
	PostingTTL time.Duration
}

// NewPostingUseCase creates a new PostingUseCase. Cache and metrics may be
// nil; a nil cache sends all reads straight to the store.
func NewPostingUseCase(store Store, cache Cache, idGen IDGenerator, m *metrics.Metrics, cfg PostingConfig, logger zerolog.Logger) *PostingUseCase {
	if cfg.BalanceTTL <= 0 {
		cfg.BalanceTTL = 30 * time.Second
	}
	if cfg.PostingTTL <= 0 {
		cfg.PostingTTL = 10 * time.Minute
	}

	return &PostingUseCase{
		store:       store,
		cache:       cache,
		idGen:       idGen,
		canon:       domain.Canonicalizer{IncludeMetadata: cfg.HashMetadata},
		metrics:     m,
		logger:      logger,
		balanceTTL:  cfg.BalanceTTL,
		postingTTL:  cfg.PostingTTL,
		balanceGens: make(map[string]uint64),
	}
}

// SubmitResult is the outcome of a submission. AlreadyExisted marks the
// idempotent case: the content was stored before and PostingID refers to
// the canonical record. Both outcomes are successes.
type SubmitResult struct {
	PostingID      string
	ContentHash    domain.ContentHash
	AlreadyExisted bool
}

// Submit runs a draft through the full pipeline. A validation failure
// leaves no trace; a storage failure surfaces with no cache mutation.
func (uc *PostingUseCase) Submit(ctx context.Context, draft domain.PostingDraft) (*SubmitResult, error) {
	start := time.Now()

	validated, err := domain.ValidateDraft(draft)
	if err != nil {
		uc.recordRejection(err)
		return nil, err
	}

	// The validation steps with external calls: every referenced account
	// must exist, and every entry must be denominated in its account's
	// currency, before anything is written.
	accountIDs := draft.AccountIDs()
	accounts := make(map[string]*domain.Account, len(accountIDs))
	for _, id := range accountIDs {
		account, err := uc.store.GetAccount(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				uc.recordRejection(domain.ErrAccountNotFound)
				return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
			}
			uc.recordStoreError(err)
			return nil, err
		}
		accounts[id] = account
	}

	for _, entry := range draft.Entries {
		account := accounts[entry.AccountID]
		if !entry.Currency.Equal(account.Currency) {
			uc.recordRejection(domain.ErrCurrencyMismatch)
			return nil, fmt.Errorf("%w: entry in %s against account %s held in %s",
				domain.ErrCurrencyMismatch, entry.Currency, account.ID, account.Currency)
		}
	}

	hash, err := uc.canon.Hash(validated.Draft)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	eventAt := draft.EventAt
	if eventAt.IsZero() {
		eventAt = now
	}

	posting := &domain.Posting{
		ID:          uc.idGen.Generate(),
		ContentHash: hash,
		Entries:     draft.Entries,
		EventAt:     eventAt,
		CreatedAt:   now,
		Metadata:    draft.Metadata,
	}

	postingID, wasNew, err := uc.store.UpsertPosting(ctx, posting)
	if err != nil {
		uc.recordStoreError(err)
		return nil, err
	}

	if wasNew {
		// Invalidation is synchronous with the commit so a subsequent
		// balance read on a touched account never sees the pre-write value.
		// The generation bump must precede the delete: a concurrent reader
		// either observes the bump and discards its fill, or fills first
		// and has the entry deleted here.
		uc.bumpBalanceGenerations(accountIDs)
		uc.invalidateBalances(ctx, accountIDs)
		uc.populatePostingCache(ctx, posting)
	}

	if uc.metrics != nil {
		if wasNew {
			uc.metrics.PostingsAccepted.Inc()
		} else {
			uc.metrics.PostingsDuplicate.Inc()
		}
		uc.metrics.SubmissionDuration.Observe(time.Since(start).Seconds())
	}

	return &SubmitResult{
		PostingID:      postingID,
		ContentHash:    hash,
		AlreadyExisted: !wasNew,
	}, nil
}

// Balance returns the account balance as of the given time. Current
// balances (zero asOf) are served through the cache; historical queries
// always hit the store.
func (uc *PostingUseCase) Balance(ctx context.Context, accountID string, asOf time.Time) (decimal.Decimal, error) {
	if !asOf.IsZero() {
		if err := uc.requireAccount(ctx, accountID); err != nil {
			return decimal.Zero, err
		}
		return uc.store.GetBalance(ctx, accountID, asOf)
	}

	// Hot path: a cached balance answers without any storage round-trip.
	// Only existing accounts are ever cached, so the hit also settles
	// existence.
	key := balanceKey(accountID)
	if cached, ok := uc.cacheGet(ctx, "balance", key); ok {
		balance, err := decimal.NewFromString(string(cached))
		if err == nil {
			return balance, nil
		}
		uc.logger.Warn().Str("key", key).Err(err).Msg("discarding unparsable cached balance")
	}

	gen := uc.balanceGeneration(accountID)

	if err := uc.requireAccount(ctx, accountID); err != nil {
		return decimal.Zero, err
	}

	balance, err := uc.store.GetBalance(ctx, accountID, time.Time{})
	if err != nil {
		return decimal.Zero, err
	}

	uc.fillBalanceCache(ctx, accountID, gen, balance)

	return balance, nil
}

// Lookup returns the posting stored under a content hash, if any.
func (uc *PostingUseCase) Lookup(ctx context.Context, hash domain.ContentHash) (*domain.Posting, error) {
	if err := hash.Validate(); err != nil {
		return nil, err
	}

	key := postingKey(hash)
	if cached, ok := uc.cacheGet(ctx, "posting", key); ok {
		var posting domain.Posting
		if err := json.Unmarshal(cached, &posting); err == nil {
			return &posting, nil
		}
		uc.logger.Warn().Str("key", key).Msg("discarding unparsable cached posting")
	}

	posting, err := uc.store.GetPostingByHash(ctx, hash)
	if err != nil {
		return nil, err
	}

	uc.populatePostingCache(ctx, posting)

	return posting, nil
}

// Statement summarizes an account's gross activity as of a reference time.
func (uc *PostingUseCase) Statement(ctx context.Context, accountID string, asOf time.Time) (*domain.Statement, error) {
	if err := uc.requireAccount(ctx, accountID); err != nil {
		return nil, err
	}

	totalDebit, totalCredit, err := uc.store.GetStatement(ctx, accountID, asOf)
	if err != nil {
		return nil, err
	}

	effective := asOf
	if effective.IsZero() {
		effective = time.Now().UTC()
	}

	return &domain.Statement{
		AccountID:   accountID,
		AsOf:        effective,
		TotalDebit:  totalDebit,
		TotalCredit: totalCredit,
		Balance:     totalCredit.Sub(totalDebit),
	}, nil
}

func (uc *PostingUseCase) requireAccount(ctx context.Context, accountID string) error {
	exists, err := uc.store.AccountExists(ctx, accountID)
	if err != nil {
		return err
	}

	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
	}

	return nil
}

// balanceGeneration snapshots the write counter for an account.
func (uc *PostingUseCase) balanceGeneration(accountID string) uint64 {
	uc.genMu.Lock()
	defer uc.genMu.Unlock()
	return uc.balanceGens[accountID]
}

// bumpBalanceGenerations marks the accounts as written. Runs after the
// upsert commits and before the cache keys are deleted.
func (uc *PostingUseCase) bumpBalanceGenerations(accountIDs []string) {
	uc.genMu.Lock()
	defer uc.genMu.Unlock()
	for _, id := range accountIDs {
		uc.balanceGens[id]++
	}
}

// fillBalanceCache publishes a store-derived balance unless a write landed
// since the snapshot. The check and the set hold the lock the bump takes,
// so a fill cannot slip in between a bump and its key deletion.
func (uc *PostingUseCase) fillBalanceCache(ctx context.Context, accountID string, gen uint64, balance decimal.Decimal) {
	if uc.cache == nil {
		return
	}

	uc.genMu.Lock()
	defer uc.genMu.Unlock()

	if uc.balanceGens[accountID] != gen {
		return
	}

	uc.cacheSet(ctx, balanceKey(accountID), []byte(balance.String()), uc.balanceTTL)
}

func (uc *PostingUseCase) invalidateBalances(ctx context.Context, accountIDs []string) {
	if uc.cache == nil {
		return
	}

	keys := make([]string, len(accountIDs))
	for i, id := range accountIDs {
		keys[i] = balanceKey(id)
	}

	if err := uc.cache.Delete(ctx, keys...); err != nil {
		uc.logger.Warn().Err(err).Strs("keys", keys).Msg("balance cache invalidation failed")
	}
}

func (uc *PostingUseCase) populatePostingCache(ctx context.Context, posting *domain.Posting) {
	if uc.cache == nil {
		return
	}

	payload, err := json.Marshal(posting)
	if err != nil {
		return
	}

	uc.cacheSet(ctx, postingKey(posting.ContentHash), payload, uc.postingTTL)
}

// cacheGet swallows cache failures: a dead cache costs latency, never
// correctness.
func (uc *PostingUseCase) cacheGet(ctx context.Context, kind, key string) ([]byte, bool) {
	if uc.cache == nil {
		return nil, false
	}

	value, err := uc.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			uc.logger.Warn().Str("key", key).Err(err).Msg("cache read failed, falling through to store")
		}
		if uc.metrics != nil {
			uc.metrics.CacheMisses.WithLabelValues(kind).Inc()
		}
		return nil, false
	}

	if uc.metrics != nil {
		uc.metrics.CacheHits.WithLabelValues(kind).Inc()
	}

	return value, true
}

func (uc *PostingUseCase) cacheSet(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if uc.cache == nil {
		return
	}

	if err := uc.cache.Set(ctx, key, value, ttl); err != nil {
		uc.logger.Warn().Str("key", key).Err(err).Msg("cache write failed")
	}
}

func (uc *PostingUseCase) recordRejection(err error) {
	if uc.metrics == nil {
		return
	}

	var reason string
	switch {
	case errors.Is(err, domain.ErrUnbalanced):
		reason = "unbalanced"
	case errors.Is(err, domain.ErrCurrencyMismatch):
		reason = "currency_mismatch"
	case errors.Is(err, domain.ErrAccountNotFound):
		reason = "account_not_found"
	default:
		reason = "structural"
	}

	uc.metrics.PostingsRejected.WithLabelValues(reason).Inc()
}

func (uc *PostingUseCase) recordStoreError(err error) {
	if uc.metrics == nil {
		return
	}

	var storageErr *domain.StorageError
	if errors.As(err, &storageErr) {
		uc.metrics.DBErrors.WithLabelValues(string(storageErr.Kind)).Inc()
	}
}

func balanceKey(accountID string) string {
	return "balance:" + accountID
}

func postingKey(hash domain.ContentHash) string {
	return "posting:" + hash.String()
}
