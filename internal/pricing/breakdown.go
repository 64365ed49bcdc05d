package pricing

import (
	"errors"

	"bookfront/internal/models"

	"github.com/shopspring/decimal"
)

// Line is the priced view of one cart entry.
type Line struct {
	ItemID    string
	Name      string
	FullPrice decimal.Decimal
	Unit      decimal.Decimal
	Fee       decimal.Decimal
	Total     decimal.Decimal
	IsDeposit bool
}

func (e *Engine) Line(item *models.BookableItem) (Line, error) {
	full, err := e.FullPrice(item)
	if err != nil {
		return Line{}, err
	}
	unit, err := e.UnitPrice(item)
	if err != nil {
		return Line{}, err
	}
	fee := e.feeFor(item, unit)
	return Line{
		ItemID:    item.ID,
		Name:      item.Name,
		FullPrice: full,
		Unit:      unit,
		Fee:       fee,
		Total:     unit.Add(fee),
		IsDeposit: !unit.Equal(full),
	}, nil
}

// Summary prices a cart. Malformed items are listed in Blocked and left out
// of Lines and totals instead of producing garbage amounts.
type Summary struct {
	Lines    []Line
	Blocked  []*MalformedPriceError
	Subtotal decimal.Decimal
	Fees     decimal.Decimal
	Total    decimal.Decimal
}

func (e *Engine) Summarize(items []models.BookableItem) Summary {
	s := Summary{Subtotal: decimal.Zero, Fees: decimal.Zero, Total: decimal.Zero}
	for i := range items {
		line, err := e.Line(&items[i])
		if err != nil {
			var mpe *MalformedPriceError
			if errors.As(err, &mpe) {
				s.Blocked = append(s.Blocked, mpe)
				continue
			}
			s.Blocked = append(s.Blocked, &MalformedPriceError{ItemID: items[i].ID, Reason: err.Error()})
			continue
		}
		s.Lines = append(s.Lines, line)
		s.Subtotal = s.Subtotal.Add(line.Unit)
		s.Fees = s.Fees.Add(line.Fee)
		s.Total = s.Total.Add(line.Total)
	}
	return s
}
