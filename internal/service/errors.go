package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrItemNotFound       = errors.New("item is not in the catalog")
	ErrItemIneligible     = errors.New("item cannot be booked right now")
	ErrEmptyCart          = errors.New("add at least one item before booking")
	ErrRateLimited        = errors.New("too many booking attempts, please wait a minute")
	ErrCartChanged        = errors.New("cart changed")
	ErrInvalidTimezone    = errors.New("invalid timezone")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAction      = errors.New("invalid staff action")
	ErrCatalogUnavailable = errors.New("catalog is unavailable")
	ErrWrongStep          = errors.New("choose a date and time before booking")
	ErrSlotInPast         = errors.New("the selected time has already passed")
)

// IneligibleError carries the evaluator's customer-facing reason.
type IneligibleError struct {
	ItemID string
	Reason string
}

func (e *IneligibleError) Error() string {
	return e.Reason
}

func (e *IneligibleError) Is(target error) bool {
	return target == ErrItemIneligible
}

// CartChangedError lists items dropped from the cart because the latest
// catalog no longer offers them.
type CartChangedError struct {
	Removed []string
}

func (e *CartChangedError) Error() string {
	return fmt.Sprintf("Some items are no longer available and were removed from your cart: %s.",
		strings.Join(e.Removed, ", "))
}

func (e *CartChangedError) Is(target error) bool {
	return target == ErrCartChanged
}
