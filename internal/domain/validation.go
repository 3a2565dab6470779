package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidateDraft runs the structural and balance rules against a draft.
// It is pure and deterministic: identical input always yields the same
// verdict. Account existence is the storage port's concern and is checked
// by the posting service, not here.
//
// Rules, in order:
//  1. at least two entries
//  2. every entry has a valid side and a strictly positive amount
//  3. currency groups are well-formed (same code implies same scale)
//  4. each currency group balances exactly: sum(debits) == sum(credits)
func ValidateDraft(draft PostingDraft) (*ValidatedPosting, error) {
	if len(draft.Entries) < 2 {
		return nil, ErrTooFewEntries
	}

	scaleByCode := make(map[string]int32)
	debits := make(map[Currency]decimal.Decimal)
	credits := make(map[Currency]decimal.Decimal)

	for i, e := range draft.Entries {
		if e.AccountID == "" {
			return nil, fmt.Errorf("%w: entry %d has no account", ErrStructuralInvalid, i)
		}

		if !e.Side.Valid() {
			return nil, fmt.Errorf("%w: entry %d has side %q", ErrStructuralInvalid, i, e.Side)
		}

		if e.Amount.LessThanOrEqual(decimal.Zero) {
			return nil, ErrZeroAmountEntry
		}

		if e.Currency.Code == "" {
			return nil, fmt.Errorf("%w: entry %d has no currency", ErrStructuralInvalid, i)
		}

		if err := e.Currency.ValidateAmount(e.Amount); err != nil {
			return nil, err
		}

		if scale, ok := scaleByCode[e.Currency.Code]; ok {
			if scale != e.Currency.Scale {
				return nil, fmt.Errorf("%w: %s seen with scales %d and %d",
					ErrCurrencyMismatch, e.Currency.Code, scale, e.Currency.Scale)
			}
		} else {
			scaleByCode[e.Currency.Code] = e.Currency.Scale
		}

		if e.Side == Debit {
			debits[e.Currency] = debits[e.Currency].Add(e.Amount)
		} else {
			credits[e.Currency] = credits[e.Currency].Add(e.Amount)
		}
	}

	// Every currency group must balance independently. Exact decimal
	// equality, never an epsilon comparison.
	totals := make(map[Currency]decimal.Decimal, len(debits))
	for currency, debitTotal := range debits {
		if !debitTotal.Equal(credits[currency]) {
			return nil, fmt.Errorf("%w: %s debits %s, credits %s",
				ErrUnbalanced, currency, debitTotal, credits[currency])
		}
		totals[currency] = debitTotal
	}

	for currency, creditTotal := range credits {
		if _, ok := debits[currency]; !ok {
			return nil, fmt.Errorf("%w: %s credits %s with no debits",
				ErrUnbalanced, currency, creditTotal)
		}
	}

	return &ValidatedPosting{Draft: draft, Totals: totals}, nil
}
