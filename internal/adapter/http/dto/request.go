package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/postings/internal/domain"
	"github.com/iho/postings/internal/usecase"
)

// CreateAccountRequest represents a request to create an account.
type CreateAccountRequest struct {
	Name          string `json:"name"`
	CurrencyCode  string `json:"currency_code"`
	CurrencyScale int32  `json:"currency_scale"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateAccountRequest) ToUseCaseInput() usecase.CreateAccountInput {
	return usecase.CreateAccountInput{
		Name:          r.Name,
		CurrencyCode:  r.CurrencyCode,
		CurrencyScale: r.CurrencyScale,
	}
}

// EntryRequest represents a single entry within a posting submission.
type EntryRequest struct {
	AccountID     string          `json:"account_id"`
	Side          string          `json:"side"`
	Amount        decimal.Decimal `json:"amount"`
	CurrencyCode  string          `json:"currency_code"`
	CurrencyScale int32           `json:"currency_scale"`
}

// SubmitPostingRequest represents a posting submission.
type SubmitPostingRequest struct {
	Entries  []EntryRequest    `json:"entries"`
	EventAt  *time.Time        `json:"event_at,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ToDraft converts the request to a domain draft.
func (r *SubmitPostingRequest) ToDraft() domain.PostingDraft {
	draft := domain.PostingDraft{
		Entries:  make([]domain.Entry, 0, len(r.Entries)),
		Metadata: r.Metadata,
	}

	if r.EventAt != nil {
		draft.EventAt = *r.EventAt
	}

	for _, e := range r.Entries {
		draft.Entries = append(draft.Entries, domain.Entry{
			AccountID: e.AccountID,
			Side:      domain.Side(e.Side),
			Amount:    e.Amount,
			Currency: domain.Currency{
				Code:  e.CurrencyCode,
				Scale: e.CurrencyScale,
			},
		})
	}

	return draft
}
