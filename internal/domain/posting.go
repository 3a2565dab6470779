package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side marks an entry as a debit or a credit.
type Side string

const (
	Debit  Side = "debit"
	Credit Side = "credit"
)

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool {
	return s == Debit || s == Credit
}

// Entry is a single debit or credit against one account within a posting.
// Amounts are always positive; the direction is carried by Side.
type Entry struct {
	AccountID string
	Side      Side
	Amount    decimal.Decimal
	Currency  Currency
}

// Signed returns the entry amount with its balance sign applied: credits
// increase an account balance, debits decrease it.
func (e Entry) Signed() decimal.Decimal {
	if e.Side == Debit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// PostingDraft is a candidate posting as submitted by a caller, before
// validation and identity assignment.
type PostingDraft struct {
	Entries  []Entry
	EventAt  time.Time
	Metadata map[string]string
}

// AccountIDs returns the distinct account IDs referenced by the draft.
func (d *PostingDraft) AccountIDs() []string {
	seen := make(map[string]bool, len(d.Entries))

	var ids []string
	for _, e := range d.Entries {
		if !seen[e.AccountID] {
			seen[e.AccountID] = true
			ids = append(ids, e.AccountID)
		}
	}

	return ids
}

// ValidatedPosting is a draft that passed the validation engine. It carries
// the per-currency totals computed during validation.
type ValidatedPosting struct {
	Draft  PostingDraft
	Totals map[Currency]decimal.Decimal // debit total per currency group
}

// Posting is an accepted, immutable set of balanced entries. ContentHash is
// its idempotency key: resubmitting identical content maps to this record.
type Posting struct {
	ID          string
	ContentHash ContentHash
	Entries     []Entry
	EventAt     time.Time
	CreatedAt   time.Time
	Metadata    map[string]string
}

// AccountIDs returns the distinct account IDs touched by the posting.
func (p *Posting) AccountIDs() []string {
	d := PostingDraft{Entries: p.Entries}
	return d.AccountIDs()
}
