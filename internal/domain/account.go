package domain

import (
	"time"
)

// Account represents a ledger account that entries are posted against.
// Identity is immutable; the balance is always derived from entries and is
// never stored on the account itself.
type Account struct {
	ID        string
	Name      string
	Currency  Currency
	CreatedAt time.Time
}
