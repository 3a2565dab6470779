package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Statement is a point-in-time summary of one account's activity: gross
// debit and credit totals plus the derived balance as of a reference time.
// Like balances, statements are derived state and never stored.
type Statement struct {
	AccountID   string
	AsOf        time.Time
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Balance     decimal.Decimal
}
