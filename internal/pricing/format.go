package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Display rounds to two places for presentation only.
func Display(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// Format renders an amount with its ISO 4217 code, e.g. "USD 110.00".
func Format(amount decimal.Decimal, code string) string {
	return strings.ToUpper(strings.TrimSpace(code)) + " " + Display(amount)
}

// ParseCurrency validates an ISO 4217 code and returns its canonical form.
func ParseCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return unit.String(), nil
}
