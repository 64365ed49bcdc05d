// Package availability decides whether a bookable item can be added to a cart
// at a given instant.
package availability

import (
	"fmt"
	"time"

	"bookfront/internal/models"
)

// OpensFormat is used for the "Booking opens" reason.
const OpensFormat = "Jan 2, 2006 3:04 PM"

// Result is a normal evaluator outcome, not an error: an ineligible item
// carries a customer-facing reason.
type Result struct {
	Eligible bool   `json:"eligible"`
	Code     string `json:"code,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

const (
	CodeNoSeats        = "no_seats"
	CodeNotOpen        = "not_open"
	CodeDeadlinePassed = "deadline_passed"
)

// Clock abstracts wall-clock reads so callers never evaluate against hidden
// global time.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads time.Now.
var SystemClock Clock = ClockFunc(time.Now)

// Evaluator formats reasons in the business reference location. All
// comparisons are between absolute instants.
type Evaluator struct {
	loc *time.Location
}

func NewEvaluator(loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{loc: loc}
}

// Evaluate runs the checks in a fixed order and reports the first failure.
// Seat exhaustion always wins over booking-window problems.
func (e *Evaluator) Evaluate(item *models.BookableItem, now time.Time) Result {
	if item.SeatsExhausted() {
		return Result{Code: CodeNoSeats, Reason: models.ReasonNoSeats}
	}

	if !item.StartBookingImmediately && item.StartBookingDate != nil && now.Before(*item.StartBookingDate) {
		opens := item.StartBookingDate.In(e.loc).Format(OpensFormat)
		return Result{Code: CodeNotOpen, Reason: fmt.Sprintf(models.ReasonBookingOpens, opens)}
	}

	if !item.EndBookingWhenItemEnds {
		if item.EndBookingDate != nil && now.After(*item.EndBookingDate) {
			return Result{Code: CodeDeadlinePassed, Reason: models.ReasonDeadlinePassed}
		}
	} else if item.ItemEndDate != nil && now.After(*item.ItemEndDate) {
		return Result{Code: CodeDeadlinePassed, Reason: models.ReasonDeadlinePassed}
	}

	return Result{Eligible: true}
}

// Labeled pairs an item with its evaluation.
type Labeled struct {
	Item   models.BookableItem
	Result Result
}

// Label evaluates a catalog snapshot in order.
func (e *Evaluator) Label(items []models.BookableItem, now time.Time) []Labeled {
	out := make([]Labeled, 0, len(items))
	for i := range items {
		out = append(out, Labeled{Item: items[i], Result: e.Evaluate(&items[i], now)})
	}
	return out
}

// Eligible keeps only the items that can be booked at now.
func (e *Evaluator) Eligible(items []models.BookableItem, now time.Time) []models.BookableItem {
	out := make([]models.BookableItem, 0, len(items))
	for i := range items {
		if e.Evaluate(&items[i], now).Eligible {
			out = append(out, items[i])
		}
	}
	return out
}
