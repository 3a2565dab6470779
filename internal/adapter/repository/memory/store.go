// Package memory provides an in-memory Store for tests and for running the
// core without a database. It honors the full storage-port contract,
// including idempotent upserts, so the conformance suite runs against it.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/postings/internal/domain"
	"github.com/iho/postings/internal/usecase"
)

var _ usecase.Store = (*Store)(nil)

// Store keeps all state behind one mutex; the critical section is the
// transactional unit, so readers never observe a half-applied posting.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	postings map[string]*domain.Posting
	byHash   map[domain.ContentHash]string
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[string]*domain.Account),
		postings: make(map[string]*domain.Posting),
		byHash:   make(map[domain.ContentHash]string),
	}
}

func (s *Store) UpsertPosting(ctx context.Context, posting *domain.Posting) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.byHash[posting.ContentHash]; ok {
		return existingID, false, nil
	}

	stored := clonePosting(posting)
	s.postings[stored.ID] = stored
	s.byHash[stored.ContentHash] = stored.ID

	return stored.ID, true, nil
}

func (s *Store) GetPostingByHash(ctx context.Context, hash domain.ContentHash) (*domain.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return nil, domain.ErrPostingNotFound
	}

	return clonePosting(s.postings[id]), nil
}

func (s *Store) GetBalance(ctx context.Context, accountID string, asOf time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balance := decimal.Zero
	for _, posting := range s.postings {
		if !asOf.IsZero() && posting.EventAt.After(asOf) {
			continue
		}

		for _, entry := range posting.Entries {
			if entry.AccountID == accountID {
				balance = balance.Add(entry.Signed())
			}
		}
	}

	return balance, nil
}

func (s *Store) GetStatement(ctx context.Context, accountID string, asOf time.Time) (decimal.Decimal, decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totalDebit, totalCredit := decimal.Zero, decimal.Zero
	for _, posting := range s.postings {
		if !asOf.IsZero() && posting.EventAt.After(asOf) {
			continue
		}

		for _, entry := range posting.Entries {
			if entry.AccountID != accountID {
				continue
			}

			if entry.Side == domain.Debit {
				totalDebit = totalDebit.Add(entry.Amount)
			} else {
				totalCredit = totalCredit.Add(entry.Amount)
			}
		}
	}

	return totalDebit, totalCredit, nil
}

func (s *Store) AccountExists(ctx context.Context, accountID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.accounts[accountID]
	return ok, nil
}

func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; ok {
		return domain.ErrAccountExists
	}

	cloned := *account
	s.accounts[account.ID] = &cloned

	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	cloned := *account
	return &cloned, nil
}

func (s *Store) ListAccounts(ctx context.Context, limit, offset int) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if offset >= len(ids) {
		return nil, nil
	}

	ids = ids[offset:]
	if limit < len(ids) {
		ids = ids[:limit]
	}

	accounts := make([]*domain.Account, 0, len(ids))
	for _, id := range ids {
		cloned := *s.accounts[id]
		accounts = append(accounts, &cloned)
	}

	return accounts, nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func clonePosting(p *domain.Posting) *domain.Posting {
	cloned := *p
	cloned.Entries = make([]domain.Entry, len(p.Entries))
	copy(cloned.Entries, p.Entries)

	if p.Metadata != nil {
		cloned.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			cloned.Metadata[k] = v
		}
	}

	return &cloned
}
