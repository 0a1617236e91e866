package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultCurrencyScale is the number of minor-unit digits (cents).
const DefaultCurrencyScale int32 = 2

// ValidateAmount accepts strictly positive amounts with no more than scale
// significant fractional digits. Trailing zeros are not excess precision.
func ValidateAmount(amount decimal.Decimal, scale int32) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s must be greater than zero", ErrInvalidAmount, amount.String())
	}
	if !amount.Equal(amount.Truncate(scale)) {
		return fmt.Errorf("%w: %s has more than %d fractional digits", ErrInvalidAmount, amount.String(), scale)
	}
	return nil
}

// ValidateOpeningBalance is ValidateAmount that also accepts zero.
func ValidateOpeningBalance(amount decimal.Decimal, scale int32) error {
	if amount.IsZero() {
		return nil
	}
	return ValidateAmount(amount, scale)
}

// ParseAmount parses user input into a validated amount.
func ParseAmount(s string, scale int32) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}
	if err := ValidateAmount(amount, scale); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}
