package pricing

import (
	"time"

	"bookfront/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// EarlyBird is shown next to a listing only. It is never subtracted from unit
// prices or cart totals.
type EarlyBird struct {
	Active          bool
	Deadline        time.Time
	Type            models.DiscountType
	Value           decimal.Decimal
	Discount        decimal.Decimal
	DiscountedPrice decimal.Decimal
	Percent         decimal.Decimal
}

// EarlyBird returns nil when the item has no early-bird offer. The offer is
// active up to and including the deadline.
func (e *Engine) EarlyBird(item *models.BookableItem, now time.Time) (*EarlyBird, error) {
	if !item.HasEarlyBird() {
		return nil, nil
	}
	full, err := e.FullPrice(item)
	if err != nil {
		return nil, err
	}
	value, err := parseAmount(item.ID, "early_bird_discount_value", item.EarlyBirdDiscountValue)
	if err != nil {
		return nil, err
	}

	var discount decimal.Decimal
	switch item.EarlyBirdDiscountType {
	case models.DiscountPercentage:
		discount = full.Mul(decimal.Min(value, hundred)).Div(hundred)
	case models.DiscountFixed:
		discount = decimal.Min(value, full)
	default:
		return nil, &MalformedPriceError{
			ItemID: item.ID,
			Field:  "early_bird_discount_type",
			Raw:    string(item.EarlyBirdDiscountType),
			Reason: "unknown discount type",
		}
	}

	percent := decimal.Zero
	if full.IsPositive() {
		percent = discount.Mul(hundred).Div(full)
	}

	return &EarlyBird{
		Active:          !now.After(*item.EarlyBirdDeadline),
		Deadline:        *item.EarlyBirdDeadline,
		Type:            item.EarlyBirdDiscountType,
		Value:           value,
		Discount:        discount,
		DiscountedPrice: full.Sub(discount),
		Percent:         percent,
	}, nil
}
