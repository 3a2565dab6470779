package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency identifies the unit and precision of an amount. Two amounts are
// comparable only when their currencies are equal, code and scale both.
type Currency struct {
	Code  string
	Scale int32
}

// Equal reports whether two currencies have the same code and scale.
func (c Currency) Equal(other Currency) bool {
	return c.Code == other.Code && c.Scale == other.Scale
}

// String returns a display form like "USD/2".
func (c Currency) String() string {
	return fmt.Sprintf("%s/%d", c.Code, c.Scale)
}

// ValidateAmount checks that amount fits the currency scale.
func (c Currency) ValidateAmount(amount decimal.Decimal) error {
	if amount.Exponent() < -c.Scale {
		return fmt.Errorf("%w: amount %s exceeds scale of %s", ErrStructuralInvalid, amount, c)
	}
	return nil
}
