package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"bookfront/internal/config"
	"bookfront/internal/events"
	"bookfront/internal/models"
	"bookfront/internal/pricing"
	"bookfront/internal/repository"
	"bookfront/internal/upstream"
	"bookfront/internal/wizard"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	yoga    = models.BookableItem{ID: "a", Name: "Yoga", FullPrice: "100"}
	pilates = models.BookableItem{ID: "b", Name: "Pilates", FullPrice: "40", AllowDeposits: true, DepositAmount: "10"}
	soldOut = models.BookableItem{ID: "c", Name: "Camp", FullPrice: "50", AvailableSeats: seats(0)}
	broken  = models.BookableItem{ID: "d", Name: "Broken", FullPrice: "-5"}
)

type wizardFixture struct {
	svc     *WizardService
	repo    *repository.MemorySessionRepository
	catalog *mockCatalog
	booking *mockBooking
	events  *recorder
}

func newWizardFixture(t *testing.T, cfg config.WizardConfig) *wizardFixture {
	t.Helper()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	f := &wizardFixture{
		repo:    repository.NewMemorySessionRepository(time.Hour),
		catalog: new(mockCatalog),
		booking: new(mockBooking),
		events:  &recorder{},
	}
	bus := events.NewEventBus()
	bus.Subscribe(events.AllEvents, f.events.handler)

	catalog := NewCatalogService(f.catalog, testTenants(t), pricing.DefaultEngine(), fixedClock(now), testLogger())
	f.svc = NewWizardService(f.repo, catalog, f.booking, bus, cfg, testLogger())
	return f
}

// readyToSubmit walks a new session to DateTime with the given cart.
func (f *wizardFixture) readyToSubmit(t *testing.T, items ...models.BookableItem) string {
	t.Helper()
	ctx := context.Background()

	view, err := f.svc.Start(ctx, "t1")
	require.NoError(t, err)
	_, err = f.svc.Advance(ctx, view.ID)
	require.NoError(t, err)
	for _, item := range items {
		_, err = f.svc.AddItem(ctx, view.ID, item.ID)
		require.NoError(t, err)
	}
	_, err = f.svc.Advance(ctx, view.ID)
	require.NoError(t, err)
	_, err = f.svc.SelectSlot(ctx, view.ID, "2025-03-10", "10:00")
	require.NoError(t, err)
	_, err = f.svc.SetCustomer(ctx, view.ID, models.Customer{FirstName: "Ann", Email: "ann@example.com"}, true)
	require.NoError(t, err)
	return view.ID
}

func TestWizardService_HappyPath(t *testing.T) {
	f := newWizardFixture(t, config.WizardConfig{})
	f.catalog.On("FetchCatalog", mock.Anything, "t1").Return([]models.BookableItem{yoga, pilates}, nil)

	var sent *models.BookingRequest
	f.booking.On("SubmitBooking", mock.Anything, "t1", mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(2).(*models.BookingRequest) }).
		Return(&models.BookingResponse{Success: true, Message: "See you soon", Reference: "pay-1"}, nil).
		Once()

	id := f.readyToSubmit(t, yoga, pilates)
	ctx := context.Background()

	view, err := f.svc.Advance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "confirmation", view.Step)
	assert.Equal(t, models.SubmissionSucceeded, view.Submission.State)
	assert.Equal(t, "pay-1", view.Submission.Reference)
	assert.Equal(t, "121.00", view.Submission.Total)

	require.NotNil(t, sent)
	assert.NotEmpty(t, sent.AttemptID)
	assert.Equal(t, id, sent.SessionID)
	assert.Equal(t, []string{"a", "b"}, sent.ItemIDs)
	assert.Equal(t, "2025-03-10", sent.Date)
	assert.Equal(t, "10:00", sent.Time)
	assert.Equal(t, "Europe/Berlin", sent.Timezone)
	assert.Equal(t, "EUR", sent.Currency)
	assert.Equal(t, "121.00", sent.Total)
	assert.True(t, sent.AgreedToTerms)

	// на экране подтверждения корзина не меняется
	_, err = f.svc.AddItem(ctx, id, "a")
	assert.ErrorIs(t, err, wizard.ErrTerminalStep)

	view, err = f.svc.ReturnHome(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "landing", view.Step)
	assert.Empty(t, view.Cart.Lines)
	assert.Equal(t, id, view.ID)

	assert.Contains(t, f.events.seen(), events.EventBookingConfirmed)
	assert.Contains(t, f.events.seen(), events.EventSubmissionStarted)
	f.booking.AssertExpectations(t)
}

func TestWizardService_CartView(t *testing.T) {
	f := newWizardFixture(t, config.WizardConfig{})
	f.catalog.On("FetchCatalog", mock.Anything, "t1").Return([]models.BookableItem{yoga, pilates}, nil)
	ctx := context.Background()

	view, err := f.svc.Start(ctx, "t1")
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, view.ID, "b")
	require.NoError(t, err)
	view, err = f.svc.AddItem(ctx, view.ID, "a")
	require.NoError(t, err)

	require.Len(t, view.Cart.Lines, 2)
	assert.Equal(t, "b", view.Cart.Lines[0].ItemID)
	assert.True(t, view.Cart.Lines[0].IsDeposit)
	assert.Equal(t, "10.00", view.Cart.Lines[0].UnitPrice)
	assert.Equal(t, "1.00", view.Cart.Lines[0].ServiceFee)
	assert.Equal(t, "110.00", view.Cart.Subtotal)
	assert.Equal(t, "11.00", view.Cart.Fees)
	assert.Equal(t, "EUR 121.00", view.Cart.TotalDisplay)

	_, err = f.svc.AddItem(ctx, view.ID, "a")
	assert.ErrorIs(t, err, wizard.ErrAlreadyInCart)

	view, err = f.svc.RemoveItem(ctx, view.ID, "b")
	require.NoError(t, err)
	assert.Equal(t, "110.00", view.Cart.Total)
}

func TestWizardService_AddItemRefused(t *testing.T) {
	f := newWizardFixture(t, config.WizardConfig{})
	f.catalog.On("FetchCatalog", mock.Anything, "t1").Return([]models.BookableItem{yoga, soldOut, broken}, nil)
	ctx := context.Background()

	view, err := f.svc.Start(ctx, "t1")
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, view.ID, "c")
	require.ErrorIs(t, err, ErrItemIneligible)
	var ie *IneligibleError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, models.ReasonNoSeats, ie.Reason)

	_, err = f.svc.AddItem(ctx, view.ID, "d")
	assert.ErrorIs(t, err, pricing.ErrMalformedPrice)

	_, err = f.svc.AddItem(ctx, view.ID, "zzz")
	assert.ErrorIs(t, err, ErrItemNotFound)

	view, err = f.svc.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Cart.Lines)
}

func TestWizardService_SubmitGuards(t *testing.T) {
	f := newWizardFixture(t, config.WizardConfig{})
	f.catalog.On("FetchCatalog", mock.Anything, "t1").Return([]models.BookableItem{yoga}, nil)
	ctx := context.Background()

	view, err := f.svc.Start(ctx, "t1")
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, view.ID)
	assert.ErrorIs(t, err, ErrWrongStep)

	_, err = f.svc.Advance(ctx, view.ID)
	require.NoError(t, err)
	_, err = f.svc.Advance(ctx, view.ID)
	require.NoError(t, err)

	_, err = f.svc.Advance(ctx, view.ID)
	assert.ErrorIs(t, err, wizard.ErrSlotNotSelected)

	_, err = f.svc.SelectSlot(ctx, view.ID, "2025-03-10", "10:00")
	require.NoError(t, err)
	_, err = f.svc.Advance(ctx, view.ID)
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = f.svc.SelectSlot(ctx, view.ID, "2025-03-10", "10:07")
	assert.ErrorIs(t, err, wizard.ErrInvalidSlot)
	_, err = f.svc.SelectSlot(ctx, view.ID, "2025-02-28", "10:00")
	assert.ErrorIs(t, err, ErrSlotInPast)

	_, err = f.svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	f.booking.AssertNotCalled(t, "SubmitBooking", mock.Anything, mock.Anything, mock.Anything)
}

func TestWizardService_SeatLoss(t *testing.T) {
	f := newWizardFixture(t, config.WizardConfig{})
	f.catalog.On("FetchCatalog", mock.Anything, "t1").Return([]models.BookableItem{yoga}, nil)
	f.catalog.On("Invalidate", mock.Anything, "t1").Return()
	f.booking.On("SubmitBooking", mock.Anything, "t1", mock.Anything).
		Return(nil, &upstream.HTTPError{StatusCode: 409, Code: upstream.CodeSeatUnavailable}).
		Once()

	id := f.readyToSubmit(t, yoga)
	view, err := f.svc.Advance(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, "date_time", view.Step)
	assert.Equal(t, models.SubmissionFailed, view.Submission.State)
	assert.Equal(t, models.FailureSeatLoss, view.Submission.FailureKind)
	assert.Equal(t, upstream.MessageSeatLoss, view.Submission.Message)
	assert.Equal(t, "2025-03-10", view.SelectedDate)
	assert.Equal(t, "10:00", view.SelectedTime)
	require.Len(t, view.Cart.Lines, 1)
	assert.True(t, view.CanAdvance)

	f.catalog.AssertCalled(t, "Invalidate", mock.Anything, "t1")
	assert.Contains(t, f.events.seen(), events.EventBookingFailed)
}

func TestWizardService_NetworkFailureThenRetry(t *testing.T) {
	f := newWizardFixture(t, config.WizardConfig{})
	f.catalog.On("FetchCatalog", mock.Anything, "t1").Return([]models.BookableItem{yoga}, nil)

	var attempts []string
	record := func(args mock.Arguments) {
		attempts = append(attempts, args.Get(2).(*models.BookingRequest).AttemptID)
	}
	f.booking.On("SubmitBooking", mock.Anything, "t1", mock.Anything).
		Run(record).Return(nil, context.DeadlineExceeded).Once()
	f.booking.On("SubmitBooking", mock.Anything, "t1", mock.Anything).
		Run(record).Return(&models.BookingResponse{Success: true}, nil).Once()

	id := f.readyToSubmit(t, yoga)
	ctx := context.Background()

	view, err := f.svc.Advance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.FailureNetwork, view.Submission.FailureKind)
	assert.Equal(t, upstream.MessageNetwork, view.Submission.Message)

	view, err = f.svc.Advance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "confirmation", view.Step)

	require.Len(t, attempts, 2)
	assert.NotEqual(t, attempts[0], attempts[1])
}

func TestWizardService_StaleResultIgnored(t *testing.T) {
	f := newWizardFixture(t, config.WizardConfig{})
	f.catalog.On("FetchCatalog", mock.Anything, "t1").Return([]models.BookableItem{yoga}, nil)

	id := f.readyToSubmit(t, yoga)
	ctx := context.Background()

	f.booking.On("SubmitBooking", mock.Anything, "t1", mock.Anything).
		Run(func(mock.Arguments) {
			// пользователь ушёл назад, пока запрос в пути
			_, err := f.svc.Back(ctx, id)
			require.NoError(t, err)
		}).
		Return(&models.BookingResponse{Success: true, Reference: "late"}, nil).
		Once()

	view, err := f.svc.Advance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "services", view.Step)
	assert.Equal(t, models.SubmissionIdle, view.Submission.State)
	assert.Empty(t, view.Submission.Reference)
	assert.Len(t, view.Cart.Lines, 1)
	assert.NotContains(t, f.events.seen(), events.EventBookingConfirmed)
}

func TestWizardService_CartChangedBeforeSubmit(t *testing.T) {
	f := newWizardFixture(t, config.WizardConfig{})
	f.catalog.On("FetchCatalog", mock.Anything, "t1").Return([]models.BookableItem{yoga, pilates}, nil).Times(2)

	id := f.readyToSubmit(t, yoga, pilates)
	f.catalog.On("FetchCatalog", mock.Anything, "t1").Return([]models.BookableItem{yoga}, nil)

	_, err := f.svc.Advance(context.Background(), id)
	require.ErrorIs(t, err, ErrCartChanged)
	var cce *CartChangedError
	require.True(t, errors.As(err, &cce))
	assert.Equal(t, []string{"Pilates"}, cce.Removed)

	session, err := f.repo.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, session.Cart.IDs())
	assert.Equal(t, models.SubmissionIdle, session.Submission.State)
	f.booking.AssertNotCalled(t, "SubmitBooking", mock.Anything, mock.Anything, mock.Anything)
}

func TestWizardService_SeatsGoneBeforeSubmit(t *testing.T) {
	f := newWizardFixture(t, config.WizardConfig{})
	f.catalog.On("FetchCatalog", mock.Anything, "t1").Return([]models.BookableItem{yoga}, nil).Once()

	id := f.readyToSubmit(t, yoga)
	gone := yoga
	gone.AvailableSeats = seats(0)
	f.catalog.On("FetchCatalog", mock.Anything, "t1").Return([]models.BookableItem{gone}, nil)

	_, err := f.svc.Advance(context.Background(), id)
	assert.ErrorIs(t, err, ErrItemIneligible)
	f.booking.AssertNotCalled(t, "SubmitBooking", mock.Anything, mock.Anything, mock.Anything)
}

func TestWizardService_RateLimited(t *testing.T) {
	f := newWizardFixture(t, config.WizardConfig{SubmitRateLimit: 1, SubmitRateWindow: 60})
	f.catalog.On("FetchCatalog", mock.Anything, "t1").Return([]models.BookableItem{yoga}, nil)
	f.booking.On("SubmitBooking", mock.Anything, "t1", mock.Anything).
		Return(nil, &upstream.HTTPError{StatusCode: 503}).Once()

	id := f.readyToSubmit(t, yoga)
	ctx := context.Background()

	view, err := f.svc.Advance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionFailed, view.Submission.State)

	_, err = f.svc.Advance(ctx, id)
	assert.ErrorIs(t, err, ErrRateLimited)
	f.booking.AssertNumberOfCalls(t, "SubmitBooking", 1)
}

func TestWizardService_GetReconciles(t *testing.T) {
	f := newWizardFixture(t, config.WizardConfig{})
	f.catalog.On("FetchCatalog", mock.Anything, "t1").Return([]models.BookableItem{yoga, pilates}, nil).Times(2)
	ctx := context.Background()

	view, err := f.svc.Start(ctx, "t1")
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, view.ID, "a")
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, view.ID, "b")
	require.NoError(t, err)

	f.catalog.On("FetchCatalog", mock.Anything, "t1").Return([]models.BookableItem{pilates}, nil).Once()
	view, err = f.svc.Get(ctx, view.ID)
	require.NoError(t, err)
	require.Len(t, view.Cart.Lines, 1)
	assert.Equal(t, "b", view.Cart.Lines[0].ItemID)
	require.Len(t, view.Notices, 1)
	assert.Contains(t, view.Notices[0], "Yoga")
	assert.Contains(t, f.events.seen(), events.EventCartReconciled)

	f.catalog.On("FetchCatalog", mock.Anything, "t1").Return(nil, errors.New("down")).Once()
	view, err = f.svc.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{NoticePricesStale}, view.Notices)
}

func TestWizardService_Cancel(t *testing.T) {
	f := newWizardFixture(t, config.WizardConfig{})
	f.catalog.On("FetchCatalog", mock.Anything, "t1").Return([]models.BookableItem{yoga}, nil)

	id := f.readyToSubmit(t, yoga)
	view, err := f.svc.Cancel(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "landing", view.Step)
	assert.Empty(t, view.Cart.Lines)
	assert.Empty(t, view.SelectedDate)
	assert.Empty(t, view.Customer.Email)
	assert.Contains(t, f.events.seen(), events.EventSessionReset)

	_, err = f.svc.Start(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestWizardService_SelectSlotTenantTime(t *testing.T) {
	// 12:00 UTC is 13:00 in Berlin
	tests := []struct {
		name    string
		date    string
		clock   string
		wantErr error
	}{
		{"earlier the same day", "2025-03-01", "12:45", ErrSlotInPast},
		{"exactly now", "2025-03-01", "13:00", nil},
		{"later the same day", "2025-03-01", "13:15", nil},
		{"no such date", "2025-02-30", "10:00", wizard.ErrInvalidSlot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWizardFixture(t, config.WizardConfig{})
			ctx := context.Background()
			view, err := f.svc.Start(ctx, "t1")
			require.NoError(t, err)

			_, err = f.svc.SelectSlot(ctx, view.ID, tt.date, tt.clock)
			stored, getErr := f.repo.GetSession(ctx, view.ID)
			require.NoError(t, getErr)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, stored.HasSlot())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.clock, stored.SlotLabel())
		})
	}
}
