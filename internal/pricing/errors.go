package pricing

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedPrice  = errors.New("malformed price")
	ErrInvalidCurrency = errors.New("invalid currency")
)

// MalformedPriceError blocks an item from being priced or shown in a cart.
type MalformedPriceError struct {
	ItemID string
	Field  string
	Raw    string
	Reason string
}

func (e *MalformedPriceError) Error() string {
	return fmt.Sprintf("item %s: %s %q: %s", e.ItemID, e.Field, e.Raw, e.Reason)
}

func (e *MalformedPriceError) Is(target error) bool {
	return target == ErrMalformedPrice
}
