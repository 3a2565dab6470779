package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iho/postings/internal/domain"
)

// AccountUseCase handles account lifecycle.
type AccountUseCase struct {
	store Store
	idGen IDGenerator
}

// NewAccountUseCase creates a new AccountUseCase.
func NewAccountUseCase(store Store, idGen IDGenerator) *AccountUseCase {
	return &AccountUseCase{store: store, idGen: idGen}
}

// CreateAccountInput represents input for creating an account.
type CreateAccountInput struct {
	Name          string
	CurrencyCode  string
	CurrencyScale int32
}

// CreateAccount creates a new account with a generated ID.
func (uc *AccountUseCase) CreateAccount(ctx context.Context, input CreateAccountInput) (*domain.Account, error) {
	code := strings.ToUpper(strings.TrimSpace(input.CurrencyCode))
	if code == "" {
		return nil, fmt.Errorf("%w: currency code is required", domain.ErrStructuralInvalid)
	}

	if input.CurrencyScale < 0 {
		return nil, fmt.Errorf("%w: currency scale must be non-negative", domain.ErrStructuralInvalid)
	}

	account := &domain.Account{
		ID:        uc.idGen.Generate(),
		Name:      input.Name,
		Currency:  domain.Currency{Code: code, Scale: input.CurrencyScale},
		CreatedAt: time.Now().UTC(),
	}

	if err := uc.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	return account, nil
}

// GetAccount retrieves an account by ID.
func (uc *AccountUseCase) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return uc.store.GetAccount(ctx, id)
}

// ListAccountsInput represents input for listing accounts.
type ListAccountsInput struct {
	Limit  int
	Offset int
}

// ListAccounts lists accounts with pagination.
func (uc *AccountUseCase) ListAccounts(ctx context.Context, input ListAccountsInput) ([]*domain.Account, error) {
	if input.Limit <= 0 {
		input.Limit = 20
	}

	if input.Limit > 100 {
		input.Limit = 100
	}

	if input.Offset < 0 {
		input.Offset = 0
	}

	return uc.store.ListAccounts(ctx, input.Limit, input.Offset)
}
