package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"bookfront/internal/availability"
	"bookfront/internal/config"
	"bookfront/internal/events"
	"bookfront/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) FetchCatalog(ctx context.Context, tenantID string) ([]models.BookableItem, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BookableItem), args.Error(1)
}

func (m *mockCatalog) Invalidate(ctx context.Context, tenantID string) {
	m.Called(ctx, tenantID)
}

type mockBooking struct {
	mock.Mock
}

func (m *mockBooking) SubmitBooking(ctx context.Context, tenantID string, req *models.BookingRequest) (*models.BookingResponse, error) {
	args := m.Called(ctx, tenantID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BookingResponse), args.Error(1)
}

type mockCalendar struct {
	mock.Mock
}

func (m *mockCalendar) FetchAppointments(ctx context.Context, tenantID string, from, to time.Time, tz string) ([]models.Appointment, error) {
	args := m.Called(ctx, tenantID, from, to, tz)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Appointment), args.Error(1)
}

func (m *mockCalendar) SendStaffAction(ctx context.Context, tenantID string, req *models.StaffActionRequest) error {
	return m.Called(ctx, tenantID, req).Error(0)
}

// recorder collects published event types.
type recorder struct {
	mu    sync.Mutex
	types []string
}

func (r *recorder) handler(e *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, e.Type)
	return nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types...)
}

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func testTenants(t *testing.T) *TenantDirectory {
	t.Helper()
	dir, err := NewTenantDirectory([]config.TenantConfig{
		{ID: "t1", Name: "Studio", Timezone: "Europe/Berlin", Currency: "EUR", DayStart: "08:00", DayEnd: "20:00"},
	})
	require.NoError(t, err)
	return dir
}

func fixedClock(now time.Time) availability.Clock {
	return availability.ClockFunc(func() time.Time { return now })
}

func seats(n int) *int { return &n }
