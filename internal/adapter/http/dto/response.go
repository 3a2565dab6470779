package dto

import (
	"time"

	"github.com/iho/postings/internal/domain"
	"github.com/iho/postings/internal/usecase"
)

// ErrorResponse is the common error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// AccountResponse represents an account.
type AccountResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	CurrencyCode  string    `json:"currency_code"`
	CurrencyScale int32     `json:"currency_scale"`
	CreatedAt     time.Time `json:"created_at"`
}

// AccountFromDomain converts a domain account.
func AccountFromDomain(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:            a.ID,
		Name:          a.Name,
		CurrencyCode:  a.Currency.Code,
		CurrencyScale: a.Currency.Scale,
		CreatedAt:     a.CreatedAt,
	}
}

// AccountsFromDomain converts a slice of domain accounts.
func AccountsFromDomain(accounts []*domain.Account) []AccountResponse {
	out := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, AccountFromDomain(a))
	}

	return out
}

// SubmitResponse is the outcome of a posting submission.
type SubmitResponse struct {
	PostingID   string `json:"posting_id"`
	ContentHash string `json:"content_hash"`
	Outcome     string `json:"outcome"` // accepted or already_existed
}

// SubmitFromResult converts a use case submit result.
func SubmitFromResult(r *usecase.SubmitResult) SubmitResponse {
	outcome := "accepted"
	if r.AlreadyExisted {
		outcome = "already_existed"
	}

	return SubmitResponse{
		PostingID:   r.PostingID,
		ContentHash: r.ContentHash.String(),
		Outcome:     outcome,
	}
}

// EntryResponse represents a stored entry.
type EntryResponse struct {
	AccountID     string `json:"account_id"`
	Side          string `json:"side"`
	Amount        string `json:"amount"`
	CurrencyCode  string `json:"currency_code"`
	CurrencyScale int32  `json:"currency_scale"`
}

// PostingResponse represents a stored posting.
type PostingResponse struct {
	ID          string            `json:"id"`
	ContentHash string            `json:"content_hash"`
	Entries     []EntryResponse   `json:"entries"`
	EventAt     time.Time         `json:"event_at"`
	CreatedAt   time.Time         `json:"created_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PostingFromDomain converts a domain posting.
func PostingFromDomain(p *domain.Posting) PostingResponse {
	entries := make([]EntryResponse, 0, len(p.Entries))
	for _, e := range p.Entries {
		entries = append(entries, EntryResponse{
			AccountID:     e.AccountID,
			Side:          string(e.Side),
			Amount:        e.Amount.String(),
			CurrencyCode:  e.Currency.Code,
			CurrencyScale: e.Currency.Scale,
		})
	}

	return PostingResponse{
		ID:          p.ID,
		ContentHash: p.ContentHash.String(),
		Entries:     entries,
		EventAt:     p.EventAt,
		CreatedAt:   p.CreatedAt,
		Metadata:    p.Metadata,
	}
}

// BalanceResponse represents an account balance.
type BalanceResponse struct {
	AccountID string     `json:"account_id"`
	Balance   string     `json:"balance"`
	AsOf      *time.Time `json:"as_of,omitempty"`
}

// StatementResponse represents an account statement.
type StatementResponse struct {
	AccountID   string    `json:"account_id"`
	AsOf        time.Time `json:"as_of"`
	TotalDebit  string    `json:"total_debit"`
	TotalCredit string    `json:"total_credit"`
	Balance     string    `json:"balance"`
}

// StatementFromDomain converts a domain statement.
func StatementFromDomain(s *domain.Statement) StatementResponse {
	return StatementResponse{
		AccountID:   s.AccountID,
		AsOf:        s.AsOf,
		TotalDebit:  s.TotalDebit.String(),
		TotalCredit: s.TotalCredit.String(),
		Balance:     s.Balance.String(),
	}
}
