// Package pricing computes what a customer owes for bookable items. Values
// are kept at full precision and only rounded for display.
package pricing

import (
	"fmt"

	"bookfront/internal/config"
	"bookfront/internal/models"

	"github.com/shopspring/decimal"
)

const (
	FieldFullPrice = "full_price"
	FieldDeposit   = "deposit_amount"
)

var (
	DefaultServiceFeeRate    = decimal.RequireFromString("0.10")
	DefaultServiceFeeMinimum = decimal.RequireFromString("1.00")
)

type Engine struct {
	feeRate    decimal.Decimal
	feeMinimum decimal.Decimal
}

func NewEngine(feeRate, feeMinimum decimal.Decimal) *Engine {
	return &Engine{feeRate: feeRate, feeMinimum: feeMinimum}
}

func DefaultEngine() *Engine {
	return NewEngine(DefaultServiceFeeRate, DefaultServiceFeeMinimum)
}

func NewEngineFromConfig(cfg config.PricingConfig) (*Engine, error) {
	rate, err := decimal.NewFromString(cfg.ServiceFeeRate)
	if err != nil {
		return nil, fmt.Errorf("pricing.service_fee_rate: %w", err)
	}
	minimum, err := decimal.NewFromString(cfg.ServiceFeeMinimum)
	if err != nil {
		return nil, fmt.Errorf("pricing.service_fee_minimum: %w", err)
	}
	if rate.IsNegative() || minimum.IsNegative() {
		return nil, fmt.Errorf("pricing: service fee rate and minimum must be non-negative")
	}
	return NewEngine(rate, minimum), nil
}

// FullPrice parses the item's headline price.
func (e *Engine) FullPrice(item *models.BookableItem) (decimal.Decimal, error) {
	return parseAmount(item.ID, FieldFullPrice, item.FullPrice)
}

// UnitPrice is the deposit when deposits are allowed and the deposit is
// positive, otherwise the full price.
func (e *Engine) UnitPrice(item *models.BookableItem) (decimal.Decimal, error) {
	full, err := e.FullPrice(item)
	if err != nil {
		return decimal.Zero, err
	}
	if !item.AllowDeposits || item.DepositAmount.IsZero() {
		return full, nil
	}

	deposit, err := parseAmount(item.ID, FieldDeposit, item.DepositAmount)
	if err != nil {
		return decimal.Zero, err
	}
	if deposit.GreaterThan(full) {
		return decimal.Zero, &MalformedPriceError{
			ItemID: item.ID,
			Field:  FieldDeposit,
			Raw:    item.DepositAmount.String(),
			Reason: "deposit exceeds full price",
		}
	}
	if deposit.IsPositive() {
		return deposit, nil
	}
	return full, nil
}

// ServiceFee is zero when the provider absorbs it, otherwise the configured
// rate of the unit price floored at the configured minimum.
func (e *Engine) ServiceFee(item *models.BookableItem) (decimal.Decimal, error) {
	unit, err := e.UnitPrice(item)
	if err != nil {
		return decimal.Zero, err
	}
	return e.feeFor(item, unit), nil
}

func (e *Engine) feeFor(item *models.BookableItem, unit decimal.Decimal) decimal.Decimal {
	if item.AbsorbServiceCharge {
		return decimal.Zero
	}
	return decimal.Max(e.feeMinimum, unit.Mul(e.feeRate))
}

func (e *Engine) LineTotal(item *models.BookableItem) (decimal.Decimal, error) {
	line, err := e.Line(item)
	if err != nil {
		return decimal.Zero, err
	}
	return line.Total, nil
}

// CartTotal sums line totals in cart order. Any malformed item fails the
// whole total; use Summarize to price around blocked items.
func (e *Engine) CartTotal(items []models.BookableItem) (decimal.Decimal, error) {
	total := decimal.Zero
	for i := range items {
		line, err := e.LineTotal(&items[i])
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(line)
	}
	return total, nil
}

// Validate checks every price field the engine would read.
func (e *Engine) Validate(item *models.BookableItem) error {
	_, err := e.UnitPrice(item)
	return err
}

func parseAmount(itemID, field string, raw models.Amount) (decimal.Decimal, error) {
	if raw.IsZero() {
		return decimal.Zero, &MalformedPriceError{ItemID: itemID, Field: field, Reason: "missing"}
	}
	d, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, &MalformedPriceError{ItemID: itemID, Field: field, Raw: raw.String(), Reason: "not a number"}
	}
	if d.IsNegative() {
		return decimal.Zero, &MalformedPriceError{ItemID: itemID, Field: field, Raw: raw.String(), Reason: "negative"}
	}
	return d, nil
}
