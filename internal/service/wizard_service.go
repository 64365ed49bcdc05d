package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"bookfront/internal/availability"
	"bookfront/internal/config"
	"bookfront/internal/domain"
	"bookfront/internal/events"
	"bookfront/internal/metrics"
	"bookfront/internal/models"
	"bookfront/internal/pricing"
	"bookfront/internal/timegrid"
	"bookfront/internal/upstream"
	"bookfront/internal/wizard"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const lockStripes = 64

const (
	NoticeCartReconciled = "Some items are no longer offered and were removed from your cart: %s."
	NoticePricesStale    = "Prices could not be refreshed and will be confirmed when you submit."
)

var errSubmitStep = errors.New("submit step")

// stripedLocks serialises work on one session across requests.
type stripedLocks [lockStripes]sync.Mutex

func (l *stripedLocks) forID(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &l[h.Sum32()%lockStripes]
}

type WizardService struct {
	repo       domain.SessionRepository
	catalog    *CatalogService
	booking    domain.BookingSubmitter
	eventBus   domain.EventPublisher
	machine    *wizard.Machine
	locks      stripedLocks
	rateLimit  int
	rateWindow time.Duration
	timeout    time.Duration
	logger     *zerolog.Logger
}

func NewWizardService(
	repo domain.SessionRepository,
	catalog *CatalogService,
	booking domain.BookingSubmitter,
	eventBus domain.EventPublisher,
	cfg config.WizardConfig,
	logger *zerolog.Logger,
) *WizardService {
	s := &WizardService{
		repo:       repo,
		catalog:    catalog,
		booking:    booking,
		eventBus:   eventBus,
		machine:    wizard.NewMachine(catalog.clock.Now),
		rateLimit:  cfg.SubmitRateLimit,
		rateWindow: time.Duration(cfg.SubmitRateWindow) * time.Second,
		timeout:    time.Duration(cfg.SubmitTimeout) * time.Second,
		logger:     logger,
	}
	if s.rateLimit <= 0 {
		s.rateLimit = models.SubmitRateLimit
	}
	if s.rateWindow <= 0 {
		s.rateWindow = models.SubmitRateWindow * time.Second
	}
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}
	return s
}

func (s *WizardService) Start(ctx context.Context, tenantID string) (*SessionView, error) {
	tenant, err := s.catalog.tenants.Get(tenantID)
	if err != nil {
		return nil, err
	}

	session := models.NewWizardSession(uuid.NewString(), tenant.ID, s.catalog.clock.Now())
	if err := s.repo.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.publishEvent(events.EventSessionStarted, session, nil)
	s.logger.Info().Str("session_id", session.ID).Str("tenant_id", tenant.ID).Msg("wizard session started")
	return s.render(tenant, session, nil), nil
}

// Get reconciles the cart against the latest catalog and re-prices it.
func (s *WizardService) Get(ctx context.Context, id string) (*SessionView, error) {
	var notices []string
	session, err := s.withSession(ctx, id, func(sess *models.WizardSession) error {
		if sess.IsSubmitting() || sess.Step == models.StepConfirmation || sess.Cart.Len() == 0 {
			return nil
		}
		_, items, err := s.catalog.Snapshot(ctx, sess.TenantID)
		if err != nil {
			notices = append(notices, NoticePricesStale)
			return nil
		}
		if n := s.reconcile(sess, items); n != "" {
			notices = append(notices, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, session, notices)
}

// Catalog lists the tenant catalog with the session cart marked.
func (s *WizardService) Catalog(ctx context.Context, id string) (*CatalogView, error) {
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return s.catalog.Listing(ctx, session.TenantID, session.Cart)
}

// Advance moves forward one step. From DateTime it submits the booking.
func (s *WizardService) Advance(ctx context.Context, id string) (*SessionView, error) {
	session, err := s.withSession(ctx, id, func(sess *models.WizardSession) error {
		if sess.Step == models.StepDateTime && !sess.IsSubmitting() {
			return errSubmitStep
		}
		return s.machine.Advance(sess)
	})
	if errors.Is(err, errSubmitStep) {
		return s.Submit(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventStepChanged, session, nil)
	return s.view(ctx, session, nil)
}

func (s *WizardService) Back(ctx context.Context, id string) (*SessionView, error) {
	var abandoned string
	session, err := s.withSession(ctx, id, func(sess *models.WizardSession) error {
		if sess.IsSubmitting() {
			abandoned = sess.Submission.AttemptID
		}
		return s.machine.Back(sess)
	})
	if err != nil {
		return nil, err
	}

	if abandoned != "" {
		s.logger.Info().Str("session_id", id).Str("attempt_id", abandoned).Msg("submission abandoned")
	}
	s.publishEvent(events.EventStepChanged, session, nil)
	return s.view(ctx, session, nil)
}

func (s *WizardService) Cancel(ctx context.Context, id string) (*SessionView, error) {
	session, err := s.withSession(ctx, id, func(sess *models.WizardSession) error {
		s.machine.Cancel(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventSessionReset, session, nil)
	return s.view(ctx, session, nil)
}

func (s *WizardService) ReturnHome(ctx context.Context, id string) (*SessionView, error) {
	session, err := s.withSession(ctx, id, func(sess *models.WizardSession) error {
		return s.machine.ReturnHome(sess)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventSessionReset, session, nil)
	return s.view(ctx, session, nil)
}

// AddItem admits an item from the latest snapshot only if it is eligible
// right now and its price is well formed.
func (s *WizardService) AddItem(ctx context.Context, id, itemID string) (*SessionView, error) {
	var notices []string
	session, err := s.withSession(ctx, id, func(sess *models.WizardSession) error {
		if sess.IsSubmitting() {
			return wizard.ErrSubmissionInFlight
		}
		tenant, items, err := s.catalog.Snapshot(ctx, sess.TenantID)
		if err != nil {
			return err
		}
		if n := s.reconcile(sess, items); n != "" {
			notices = append(notices, n)
		}

		item, ok := findItem(items, itemID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
		}
		res := availability.NewEvaluator(tenant.Location).Evaluate(&item, s.catalog.clock.Now())
		if !res.Eligible {
			metrics.IncEligibilityBlocked(res.Code)
			return &IneligibleError{ItemID: item.ID, Reason: res.Reason}
		}
		if err := s.catalog.pricing.Validate(&item); err != nil {
			return err
		}
		return s.machine.AddItem(sess, item)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventCartItemAdded, session, nil)
	return s.view(ctx, session, notices)
}

func (s *WizardService) RemoveItem(ctx context.Context, id, itemID string) (*SessionView, error) {
	session, err := s.withSession(ctx, id, func(sess *models.WizardSession) error {
		return s.machine.RemoveItem(sess, itemID)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventCartItemRemoved, session, nil)
	return s.view(ctx, session, nil)
}

// SelectSlot takes a calendar date and an HH:MM time in the tenant zone.
func (s *WizardService) SelectSlot(ctx context.Context, id, date, clock string) (*SessionView, error) {
	minutes, err := timegrid.ParseClock(clock)
	if err != nil {
		return nil, wizard.ErrInvalidSlot
	}

	session, err := s.withSession(ctx, id, func(sess *models.WizardSession) error {
		tenant, err := s.catalog.tenants.Get(sess.TenantID)
		if err != nil {
			return err
		}
		candidate := models.WizardSession{SelectedDate: date, SelectedTime: &minutes}
		start, err := candidate.SlotStart(tenant.Location)
		if err != nil {
			return wizard.ErrInvalidSlot
		}
		if start.Before(s.catalog.clock.Now()) {
			return ErrSlotInPast
		}
		return s.machine.SelectSlot(sess, date, minutes)
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, session, nil)
}

func (s *WizardService) ClearSlot(ctx context.Context, id string) (*SessionView, error) {
	session, err := s.withSession(ctx, id, func(sess *models.WizardSession) error {
		return s.machine.ClearSlot(sess)
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, session, nil)
}

func (s *WizardService) SetCustomer(ctx context.Context, id string, customer models.Customer, agreed bool) (*SessionView, error) {
	session, err := s.withSession(ctx, id, func(sess *models.WizardSession) error {
		return s.machine.SetCustomer(sess, customer, agreed)
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, session, nil)
}

// Submit sends exactly one booking request for a fresh attempt. The session
// lock is released while the request is in flight, so Back and Cancel stay
// responsive; a result for an abandoned attempt is dropped.
func (s *WizardService) Submit(ctx context.Context, id string) (*SessionView, error) {
	var (
		req    *models.BookingRequest
		tenant *Tenant
	)

	session, err := s.withSession(ctx, id, func(sess *models.WizardSession) error {
		if sess.IsSubmitting() {
			return wizard.ErrSubmissionInFlight
		}
		if sess.Step != models.StepDateTime {
			return ErrWrongStep
		}
		if !sess.HasSlot() {
			return wizard.ErrSlotNotSelected
		}
		if sess.Cart.Len() == 0 {
			return ErrEmptyCart
		}

		t, items, err := s.catalog.Snapshot(ctx, sess.TenantID)
		if err != nil {
			return err
		}
		tenant = t

		if removed := sess.Cart.Reconcile(items); len(removed) > 0 {
			s.publishEvent(events.EventCartReconciled, sess, nil)
			return &CartChangedError{Removed: itemNames(removed)}
		}

		now := s.catalog.clock.Now()
		eval := availability.NewEvaluator(tenant.Location)
		for _, item := range sess.Cart.Items() {
			res := eval.Evaluate(&item, now)
			if !res.Eligible {
				metrics.IncEligibilityBlocked(res.Code)
				return &IneligibleError{ItemID: item.ID, Reason: fmt.Sprintf("%s: %s", item.Name, res.Reason)}
			}
		}

		summary := s.catalog.pricing.Summarize(sess.Cart.Items())
		if len(summary.Blocked) > 0 {
			return summary.Blocked[0]
		}

		allowed, err := s.repo.CheckRateLimit(ctx, "submit:"+sess.ID, s.rateLimit, s.rateWindow)
		if err != nil {
			return fmt.Errorf("check rate limit: %w", err)
		}
		if !allowed {
			return ErrRateLimited
		}

		if err := s.machine.Advance(sess); err != nil {
			return err
		}
		req = bookingRequest(sess, tenant, summary)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncSubmission("started")
	s.publishEvent(events.EventSubmissionStarted, session, func(p *events.WizardEventPayload) {
		p.Total = req.Total
	})

	claimed, err := s.repo.ClaimAttempt(ctx, req.AttemptID, s.timeout+time.Minute)
	switch {
	case err != nil:
		s.logger.Error().Err(err).Str("attempt_id", req.AttemptID).Msg("failed to claim submission attempt")
		return s.finish(ctx, tenant, req, nil, &upstream.SubmissionError{Kind: models.FailureNetwork, Err: err})
	case !claimed:
		s.logger.Warn().Str("attempt_id", req.AttemptID).Msg("submission attempt already claimed")
		return s.view(ctx, session, nil)
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	resp, sendErr := s.booking.SubmitBooking(sendCtx, tenant.ID, req)
	cancel()

	return s.finish(ctx, tenant, req, resp, sendErr)
}

func (s *WizardService) finish(
	ctx context.Context,
	tenant *Tenant,
	req *models.BookingRequest,
	resp *models.BookingResponse,
	sendErr error,
) (*SessionView, error) {
	var failure *upstream.SubmissionError
	if sendErr == nil && resp == nil {
		resp = &models.BookingResponse{Success: true}
	}
	if sendErr != nil {
		failure = upstream.ClassifySubmission(sendErr)
		if failure.Kind == models.FailureSeatLoss {
			s.catalog.Invalidate(context.WithoutCancel(ctx), tenant.ID)
		}
	}

	stale := false
	session, err := s.withSession(context.WithoutCancel(ctx), req.SessionID, func(sess *models.WizardSession) error {
		var err error
		if failure == nil {
			err = s.machine.Complete(sess, req.AttemptID, resp.Reference, resp.Message, req.Total)
		} else {
			err = s.machine.Fail(sess, req.AttemptID, failure.Kind, failure.UserMessage())
		}
		if errors.Is(err, wizard.ErrStaleAttempt) {
			stale = true
			return nil
		}
		return err
	})
	if err != nil {
		s.logger.Error().Err(err).Str("attempt_id", req.AttemptID).Msg("failed to record submission result")
		return nil, err
	}

	log := s.logger.With().Str("session_id", req.SessionID).Str("attempt_id", req.AttemptID).Logger()
	switch {
	case stale:
		metrics.IncSubmission("stale")
		log.Info().Bool("succeeded", failure == nil).Msg("dropping result of abandoned submission")
	case failure == nil:
		metrics.IncSubmission("succeeded")
		log.Info().Str("reference", resp.Reference).Str("total", req.Total).Msg("booking confirmed")
		s.publishEvent(events.EventBookingConfirmed, session, nil)
	default:
		metrics.IncSubmission(string(failure.Kind))
		log.Warn().Err(sendErr).Str("kind", string(failure.Kind)).Msg("booking failed")
		s.publishEvent(events.EventBookingFailed, session, func(p *events.WizardEventPayload) {
			p.AttemptID = req.AttemptID
		})
	}
	return s.render(tenant, session, nil), nil
}

func (s *WizardService) withSession(ctx context.Context, id string, fn func(*models.WizardSession) error) (*models.WizardSession, error) {
	mu := s.locks.forID(id)
	mu.Lock()
	defer mu.Unlock()

	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	session.EnsureCart()

	// refused transitions leave the session untouched, saving still refreshes the TTL
	fnErr := fn(session)
	if err := s.repo.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	if fnErr != nil {
		return nil, fnErr
	}
	return session, nil
}

func (s *WizardService) reconcile(sess *models.WizardSession, items []models.BookableItem) string {
	removed := sess.Cart.Reconcile(items)
	if len(removed) == 0 {
		return ""
	}
	s.publishEvent(events.EventCartReconciled, sess, nil)
	s.logger.Info().Str("session_id", sess.ID).Strs("removed", itemIDs(removed)).Msg("cart reconciled")
	return fmt.Sprintf(NoticeCartReconciled, strings.Join(itemNames(removed), ", "))
}

func (s *WizardService) view(ctx context.Context, session *models.WizardSession, notices []string) (*SessionView, error) {
	tenant, err := s.catalog.tenants.Get(session.TenantID)
	if err != nil {
		return nil, err
	}
	return s.render(tenant, session, notices), nil
}

func (s *WizardService) render(tenant *Tenant, session *models.WizardSession, notices []string) *SessionView {
	cart := cartView(s.catalog.pricing, tenant.Currency, session.Cart.Items())
	return &SessionView{
		ID:            session.ID,
		TenantID:      session.TenantID,
		Step:          session.Step.String(),
		StepIndex:     int(session.Step),
		Cart:          cart,
		SelectedDate:  session.SelectedDate,
		SelectedTime:  session.SlotLabel(),
		Customer:      session.Customer,
		AgreedToTerms: session.AgreedToTerms,
		Submission:    session.Submission,
		CanAdvance:    canAdvance(session, cart),
		Notices:       notices,
		Disclaimer:    models.AvailabilityDisclaimer,
	}
}

func canAdvance(session *models.WizardSession, cart CartView) bool {
	if session.IsSubmitting() {
		return false
	}
	switch session.Step {
	case models.StepLanding, models.StepServices:
		return true
	case models.StepDateTime:
		return session.HasSlot() && len(cart.Lines) > 0 && len(cart.Blocked) == 0
	}
	return false
}

func (s *WizardService) publishEvent(eventType string, session *models.WizardSession, mutate func(*events.WizardEventPayload)) {
	if s.eventBus == nil {
		return
	}

	payload := events.WizardEventPayload{
		SessionID:   session.ID,
		TenantID:    session.TenantID,
		Step:        session.Step.String(),
		ItemIDs:     session.Cart.IDs(),
		AttemptID:   session.Submission.AttemptID,
		Reference:   session.Submission.Reference,
		FailureKind: string(session.Submission.FailureKind),
		Message:     session.Submission.Message,
		Total:       session.Submission.Total,
	}
	if mutate != nil {
		mutate(&payload)
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("session_id", session.ID).Msg("publish event error")
	}
}

func bookingRequest(sess *models.WizardSession, tenant *Tenant, summary pricing.Summary) *models.BookingRequest {
	return &models.BookingRequest{
		AttemptID:     sess.Submission.AttemptID,
		SessionID:     sess.ID,
		Customer:      sess.Customer,
		AgreedToTerms: sess.AgreedToTerms,
		ItemIDs:       sess.Cart.IDs(),
		Date:          sess.SelectedDate,
		Time:          sess.SlotLabel(),
		Timezone:      tenant.Location.String(),
		Total:         pricing.Display(summary.Total),
		Currency:      tenant.Currency,
	}
}

func findItem(items []models.BookableItem, id string) (models.BookableItem, bool) {
	for _, item := range items {
		if item.ID == id {
			return item, true
		}
	}
	return models.BookableItem{}, false
}

func itemIDs(items []models.BookableItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func itemNames(items []models.BookableItem) []string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		if item.Name != "" {
			names = append(names, item.Name)
		} else {
			names = append(names, item.ID)
		}
	}
	return names
}
