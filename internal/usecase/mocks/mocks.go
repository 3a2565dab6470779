package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/postings/internal/domain"
)

// MockStore is a mock implementation of usecase.Store. Default behavior is
// map-backed; individual operations can be overridden via the Func fields.
type MockStore struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	postings map[domain.ContentHash]*domain.Posting

	UpsertPostingFunc    func(ctx context.Context, posting *domain.Posting) (string, bool, error)
	GetPostingByHashFunc func(ctx context.Context, hash domain.ContentHash) (*domain.Posting, error)
	GetBalanceFunc       func(ctx context.Context, accountID string, asOf time.Time) (decimal.Decimal, error)
	GetStatementFunc     func(ctx context.Context, accountID string, asOf time.Time) (decimal.Decimal, decimal.Decimal, error)
	AccountExistsFunc    func(ctx context.Context, accountID string) (bool, error)
	CreateAccountFunc    func(ctx context.Context, account *domain.Account) error
	GetAccountFunc       func(ctx context.Context, id string) (*domain.Account, error)
	ListAccountsFunc     func(ctx context.Context, limit, offset int) ([]*domain.Account, error)
}

func NewMockStore() *MockStore {
	return &MockStore{
		accounts: make(map[string]*domain.Account),
		postings: make(map[domain.ContentHash]*domain.Posting),
	}
}

// AddAccount seeds an account into the mock.
func (m *MockStore) AddAccount(account *domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
}

// PostingCount returns the number of stored postings.
func (m *MockStore) PostingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.postings)
}

func (m *MockStore) UpsertPosting(ctx context.Context, posting *domain.Posting) (string, bool, error) {
	if m.UpsertPostingFunc != nil {
		return m.UpsertPostingFunc(ctx, posting)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.postings[posting.ContentHash]; ok {
		return existing.ID, false, nil
	}
	m.postings[posting.ContentHash] = posting
	return posting.ID, true, nil
}

func (m *MockStore) GetPostingByHash(ctx context.Context, hash domain.ContentHash) (*domain.Posting, error) {
	if m.GetPostingByHashFunc != nil {
		return m.GetPostingByHashFunc(ctx, hash)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if posting, ok := m.postings[hash]; ok {
		return posting, nil
	}
	return nil, domain.ErrPostingNotFound
}

func (m *MockStore) GetBalance(ctx context.Context, accountID string, asOf time.Time) (decimal.Decimal, error) {
	if m.GetBalanceFunc != nil {
		return m.GetBalanceFunc(ctx, accountID, asOf)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	balance := decimal.Zero
	for _, posting := range m.postings {
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

func (m *MockStore) GetStatement(ctx context.Context, accountID string, asOf time.Time) (decimal.Decimal, decimal.Decimal, error) {
	if m.GetStatementFunc != nil {
		return m.GetStatementFunc(ctx, accountID, asOf)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	totalDebit, totalCredit := decimal.Zero, decimal.Zero
	for _, posting := range m.postings {
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

func (m *MockStore) AccountExists(ctx context.Context, accountID string) (bool, error) {
	if m.AccountExistsFunc != nil {
		return m.AccountExistsFunc(ctx, accountID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.accounts[accountID]
	return ok, nil
}

func (m *MockStore) CreateAccount(ctx context.Context, account *domain.Account) error {
	if m.CreateAccountFunc != nil {
		return m.CreateAccountFunc(ctx, account)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.ID]; ok {
		return domain.ErrAccountExists
	}
	m.accounts[account.ID] = account
	return nil
}

func (m *MockStore) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	if m.GetAccountFunc != nil {
		return m.GetAccountFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if account, ok := m.accounts[id]; ok {
		return account, nil
	}
	return nil, domain.ErrAccountNotFound
}

func (m *MockStore) ListAccounts(ctx context.Context, limit, offset int) ([]*domain.Account, error) {
	if m.ListAccountsFunc != nil {
		return m.ListAccountsFunc(ctx, limit, offset)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var accounts []*domain.Account
	for _, account := range m.accounts {
		accounts = append(accounts, account)
	}
	if offset >= len(accounts) {
		return nil, nil
	}
	accounts = accounts[offset:]
	if limit < len(accounts) {
		accounts = accounts[:limit]
	}
	return accounts, nil
}

func (m *MockStore) Ping(ctx context.Context) error { return nil }

func (m *MockStore) Close() error { return nil }

// MockIDGenerator generates sequential IDs for deterministic tests.
type MockIDGenerator struct {
	mu      sync.Mutex
	counter int

	GenerateFunc func() string
}

func NewMockIDGenerator() *MockIDGenerator {
	return &MockIDGenerator{}
}

func (m *MockIDGenerator) Generate() string {
	if m.GenerateFunc != nil {
		return m.GenerateFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return fmt.Sprintf("id-%04d", m.counter)
}
