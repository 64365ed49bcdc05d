package models

import "time"

type ItemKind string

const (
	ItemKindProgram ItemKind = "program"
	ItemKindService ItemKind = "service"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// BookableItem is a program or service as supplied by the catalog. Seat
// counts are a read-only snapshot; nil AvailableSeats means unlimited.
type BookableItem struct {
	ID          string   `json:"id" yaml:"id"`
	Kind        ItemKind `json:"kind" yaml:"kind"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description"`
	SortOrder   int64    `json:"sort_order" yaml:"sort_order"`

	FullPrice           Amount `json:"full_price" yaml:"full_price"`
	AllowDeposits       bool   `json:"allow_deposits" yaml:"allow_deposits"`
	DepositAmount       Amount `json:"deposit_amount,omitempty" yaml:"deposit_amount"`
	AbsorbServiceCharge bool   `json:"absorb_service_charge" yaml:"absorb_service_charge"`

	Capacity        *int `json:"capacity,omitempty" yaml:"capacity"`
	AvailableSeats  *int `json:"available_seats,omitempty" yaml:"available_seats"`
	DurationMinutes int  `json:"duration_minutes,omitempty" yaml:"duration_minutes"`

	StartBookingImmediately bool       `json:"start_booking_immediately" yaml:"start_booking_immediately"`
	StartBookingDate        *time.Time `json:"start_booking_date,omitempty" yaml:"start_booking_date"`
	EndBookingWhenItemEnds  bool       `json:"end_booking_when_item_ends" yaml:"end_booking_when_item_ends"`
	EndBookingDate          *time.Time `json:"end_booking_date,omitempty" yaml:"end_booking_date"`
	ItemEndDate             *time.Time `json:"item_end_date,omitempty" yaml:"item_end_date"`

	EarlyBirdDeadline      *time.Time   `json:"early_bird_deadline,omitempty" yaml:"early_bird_deadline"`
	EarlyBirdDiscountType  DiscountType `json:"early_bird_discount_type,omitempty" yaml:"early_bird_discount_type"`
	EarlyBirdDiscountValue Amount       `json:"early_bird_discount_value,omitempty" yaml:"early_bird_discount_value"`

	// Refund policy is shown to customers but never computed here.
	AllowRefunds        bool `json:"allow_refunds" yaml:"allow_refunds"`
	RefundPercentage    *int `json:"refund_percentage,omitempty" yaml:"refund_percentage"`
	RefundDeadlineHours *int `json:"refund_deadline_hours,omitempty" yaml:"refund_deadline_hours"`
}

// HasSeatLimit reports whether the catalog supplied a seat snapshot.
func (i *BookableItem) HasSeatLimit() bool {
	return i.AvailableSeats != nil
}

// SeatsExhausted is true only for a defined snapshot below one seat.
func (i *BookableItem) SeatsExhausted() bool {
	return i.HasSeatLimit() && *i.AvailableSeats < 1
}

func (i *BookableItem) HasEarlyBird() bool {
	return i.EarlyBirdDeadline != nil && i.EarlyBirdDiscountType != "" && !i.EarlyBirdDiscountValue.IsZero()
}
