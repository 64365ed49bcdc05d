package service

import (
	"time"

	"bookfront/internal/models"
	"bookfront/internal/pricing"
)

// LineView is a priced cart line with amounts rounded for display.
type LineView struct {
	ItemID     string `json:"item_id"`
	Name       string `json:"name"`
	FullPrice  string `json:"full_price"`
	UnitPrice  string `json:"unit_price"`
	ServiceFee string `json:"service_fee"`
	LineTotal  string `json:"line_total"`
	IsDeposit  bool   `json:"is_deposit"`
}

type BlockedLine struct {
	ItemID string `json:"item_id"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

type CartView struct {
	Currency     string        `json:"currency"`
	Lines        []LineView    `json:"lines"`
	Blocked      []BlockedLine `json:"blocked,omitempty"`
	Subtotal     string        `json:"subtotal"`
	Fees         string        `json:"fees"`
	Total        string        `json:"total"`
	TotalDisplay string        `json:"total_display"`
}

type EarlyBirdView struct {
	Active          bool      `json:"active"`
	Deadline        time.Time `json:"deadline"`
	Type            string    `json:"type"`
	Discount        string    `json:"discount"`
	DiscountedPrice string    `json:"discounted_price"`
	Percent         string    `json:"percent"`
	// DisplayOnly is always true: the discount is not taken off the total.
	DisplayOnly bool `json:"display_only"`
}

// ListingEntry is one catalog item as shown on the services step. Bookable
// requires both eligibility and a well-formed price.
type ListingEntry struct {
	Item       models.BookableItem `json:"item"`
	Eligible   bool                `json:"eligible"`
	Code       string              `json:"code,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	Bookable   bool                `json:"bookable"`
	Price      *LineView           `json:"price,omitempty"`
	PriceError string              `json:"price_error,omitempty"`
	EarlyBird  *EarlyBirdView      `json:"early_bird,omitempty"`
	InCart     bool                `json:"in_cart"`
}

type CatalogView struct {
	TenantID    string         `json:"tenant_id"`
	TenantName  string         `json:"tenant_name"`
	Currency    string         `json:"currency"`
	Timezone    string         `json:"timezone"`
	EvaluatedAt time.Time      `json:"evaluated_at"`
	Entries     []ListingEntry `json:"entries"`
	Disclaimer  string         `json:"disclaimer"`
}

type SessionView struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenant_id"`
	Step          string            `json:"step"`
	StepIndex     int               `json:"step_index"`
	Cart          CartView          `json:"cart"`
	SelectedDate  string            `json:"selected_date,omitempty"`
	SelectedTime  string            `json:"selected_time,omitempty"`
	Customer      models.Customer   `json:"customer"`
	AgreedToTerms bool              `json:"agreed_to_terms"`
	Submission    models.Submission `json:"submission"`
	CanAdvance    bool              `json:"can_advance"`
	Notices       []string          `json:"notices,omitempty"`
	Disclaimer    string            `json:"disclaimer"`
}

func lineView(l pricing.Line) LineView {
	return LineView{
		ItemID:     l.ItemID,
		Name:       l.Name,
		FullPrice:  pricing.Display(l.FullPrice),
		UnitPrice:  pricing.Display(l.Unit),
		ServiceFee: pricing.Display(l.Fee),
		LineTotal:  pricing.Display(l.Total),
		IsDeposit:  l.IsDeposit,
	}
}

func earlyBirdView(eb *pricing.EarlyBird) *EarlyBirdView {
	if eb == nil {
		return nil
	}
	return &EarlyBirdView{
		Active:          eb.Active,
		Deadline:        eb.Deadline,
		Type:            string(eb.Type),
		Discount:        pricing.Display(eb.Discount),
		DiscountedPrice: pricing.Display(eb.DiscountedPrice),
		Percent:         eb.Percent.Round(0).String(),
		DisplayOnly:     true,
	}
}

func cartView(engine *pricing.Engine, currency string, items []models.BookableItem) CartView {
	summary := engine.Summarize(items)
	names := make(map[string]string, len(items))
	for _, item := range items {
		names[item.ID] = item.Name
	}

	view := CartView{
		Currency:     currency,
		Lines:        make([]LineView, 0, len(summary.Lines)),
		Subtotal:     pricing.Display(summary.Subtotal),
		Fees:         pricing.Display(summary.Fees),
		Total:        pricing.Display(summary.Total),
		TotalDisplay: pricing.Format(summary.Total, currency),
	}
	for _, l := range summary.Lines {
		view.Lines = append(view.Lines, lineView(l))
	}
	for _, b := range summary.Blocked {
		view.Blocked = append(view.Blocked, BlockedLine{ItemID: b.ItemID, Name: names[b.ItemID], Reason: b.Error()})
	}
	return view
}
