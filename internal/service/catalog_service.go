package service

import (
	"context"
	"fmt"
	"time"

	"bookfront/internal/availability"
	"bookfront/internal/domain"
	"bookfront/internal/metrics"
	"bookfront/internal/models"
	"bookfront/internal/pricing"

	"github.com/rs/zerolog"
)

type invalidator interface {
	Invalidate(ctx context.Context, tenantID string)
}

// CatalogService evaluates and prices a fresh catalog snapshot on every call.
type CatalogService struct {
	source  domain.CatalogSource
	tenants *TenantDirectory
	pricing *pricing.Engine
	clock   availability.Clock
	logger  *zerolog.Logger
}

func NewCatalogService(
	source domain.CatalogSource,
	tenants *TenantDirectory,
	engine *pricing.Engine,
	clock availability.Clock,
	logger *zerolog.Logger,
) *CatalogService {
	if clock == nil {
		clock = availability.SystemClock
	}
	return &CatalogService{
		source:  source,
		tenants: tenants,
		pricing: engine,
		clock:   clock,
		logger:  logger,
	}
}

func (s *CatalogService) Tenants() *TenantDirectory { return s.tenants }

func (s *CatalogService) Pricing() *pricing.Engine { return s.pricing }

func (s *CatalogService) Snapshot(ctx context.Context, tenantID string) (*Tenant, []models.BookableItem, error) {
	tenant, err := s.tenants.Get(tenantID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.source.FetchCatalog(ctx, tenantID)
	if err != nil {
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("failed to fetch catalog")
		return nil, nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	return tenant, items, nil
}

// Listing labels every item of the latest snapshot. cart may be nil.
func (s *CatalogService) Listing(ctx context.Context, tenantID string, cart *models.Cart) (*CatalogView, error) {
	tenant, items, err := s.Snapshot(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	eval := availability.NewEvaluator(tenant.Location)
	view := &CatalogView{
		TenantID:    tenant.ID,
		TenantName:  tenant.Name,
		Currency:    tenant.Currency,
		Timezone:    tenant.Location.String(),
		EvaluatedAt: now,
		Entries:     make([]ListingEntry, 0, len(items)),
		Disclaimer:  models.AvailabilityDisclaimer,
	}

	for _, labeled := range eval.Label(items, now) {
		entry := s.entry(labeled, now, cart.Contains(labeled.Item.ID))
		if !entry.Eligible {
			metrics.IncEligibilityBlocked(entry.Code)
		}
		view.Entries = append(view.Entries, entry)
	}
	return view, nil
}

func (s *CatalogService) entry(labeled availability.Labeled, now time.Time, inCart bool) ListingEntry {
	item := labeled.Item
	entry := ListingEntry{
		Item:     item,
		Eligible: labeled.Result.Eligible,
		Code:     labeled.Result.Code,
		Reason:   labeled.Result.Reason,
		InCart:   inCart,
	}

	line, err := s.pricing.Line(&item)
	if err != nil {
		s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("catalog item has malformed price")
		entry.PriceError = err.Error()
		return entry
	}
	lv := lineView(line)
	entry.Price = &lv
	entry.Bookable = entry.Eligible

	eb, err := s.pricing.EarlyBird(&item, now)
	if err != nil {
		s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("ignoring malformed early-bird offer")
	}
	entry.EarlyBird = earlyBirdView(eb)
	return entry
}

// Invalidate drops any cached snapshot so the next read sees fresh seats.
func (s *CatalogService) Invalidate(ctx context.Context, tenantID string) {
	if inv, ok := s.source.(invalidator); ok {
		inv.Invalidate(ctx, tenantID)
	}
}
