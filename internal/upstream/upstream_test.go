package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"bookfront/internal/config"
	"bookfront/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, service, baseURL string) *Client {
	t.Helper()
	c := NewClient(service, baseURL, config.UpstreamConfig{APIKey: "key", APIExtra: "extra", Timeout: 2, MaxRetries: 2}, nil)
	c.SetRetryPolicy(RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	return c
}

func TestCatalogClient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/tenants/studio-1/items", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, "extra", r.Header.Get("x-api-extra"))
		_, _ = w.Write([]byte(`{"items":[{"id":"b","full_price":40},{"id":"a","full_price":"12.50","available_seats":0}]}`))
	}))
	defer srv.Close()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	client := NewCatalogClient(newTestClient(t, "catalog", srv.URL+"/"))
	client.UseRedisCache(rdb, time.Minute)
	ctx := context.Background()

	items, err := client.FetchCatalog(ctx, "studio-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].ID)
	assert.Equal(t, models.Amount("40"), items[0].FullPrice)
	require.NotNil(t, items[1].AvailableSeats)
	assert.Equal(t, 0, *items[1].AvailableSeats)

	// served from cache
	items, err = client.FetchCatalog(ctx, "studio-1")
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, mr.Exists("catalog:studio-1"))

	client.Invalidate(ctx, "studio-1")
	assert.False(t, mr.Exists("catalog:studio-1"))
	_, err = client.FetchCatalog(ctx, "studio-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCatalogClient_Retries(t *testing.T) {
	t.Run("RecoversAfter5xx", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"items":[]}`))
		}))
		defer srv.Close()

		items, err := NewCatalogClient(newTestClient(t, "catalog", srv.URL)).FetchCatalog(context.Background(), "t")
		require.NoError(t, err)
		assert.Empty(t, items)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("GivesUp", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := NewCatalogClient(newTestClient(t, "catalog", srv.URL)).FetchCatalog(context.Background(), "t")
		var he *HTTPError
		require.True(t, errors.As(err, &he))
		assert.Equal(t, http.StatusBadGateway, he.StatusCode)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("NoRetryOn4xx", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"tenant not found","code":"not_found"}`))
		}))
		defer srv.Close()

		_, err := NewCatalogClient(newTestClient(t, "catalog", srv.URL)).FetchCatalog(context.Background(), "t")
		var he *HTTPError
		require.True(t, errors.As(err, &he))
		assert.Equal(t, "not_found", he.Code)
		assert.Equal(t, "tenant not found", he.Message)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestBookingClient(t *testing.T) {
	req := &models.BookingRequest{
		AttemptID: "att-1",
		ItemIDs:   []string{"a", "b"},
		Date:      "2025-04-10",
		Time:      "09:30",
		Total:     "110.00",
	}

	tests := []struct {
		name     string
		status   int
		body     string
		wantKind models.FailureKind
		wantMsg  string
	}{
		{"seat code", http.StatusBadRequest, `{"error":"Camp is full","code":"seat_unavailable"}`, models.FailureSeatLoss, "Camp is full"},
		{"conflict", http.StatusConflict, ``, models.FailureSeatLoss, MessageSeatLoss},
		{"validation", http.StatusUnprocessableEntity, `{"error":"Email is invalid"}`, models.FailureValidation, "Email is invalid"},
		{"unavailable", http.StatusServiceUnavailable, `oops`, models.FailureNetwork, MessageNetwork},
		{"server error", http.StatusInternalServerError, `{}`, models.FailureUnknown, MessageUnknown},
		{"soft failure", http.StatusOK, `{"success":false,"message":"Terms must be accepted"}`, models.FailureValidation, "Terms must be accepted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewBookingClient(newTestClient(t, "booking", srv.URL)).SubmitBooking(context.Background(), "t", req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSubmissionFailed)

			var se *SubmissionError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.wantKind, se.Kind)
			assert.Equal(t, tt.wantMsg, se.UserMessage())
			assert.Equal(t, tt.wantKind == models.FailureSeatLoss, errors.Is(err, ErrConcurrentSeatLoss))
			// the booking write is never retried
			assert.Equal(t, int32(1), calls.Load())
		})
	}

	t.Run("Success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/tenants/t/bookings", r.URL.Path)
			assert.Equal(t, "att-1", r.Header.Get("Idempotency-Key"))

			var got models.BookingRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			assert.Equal(t, []string{"a", "b"}, got.ItemIDs)
			assert.Equal(t, "110.00", got.Total)

			_, _ = w.Write([]byte(`{"success":true,"message":"Booked","reference":"PAY-9"}`))
		}))
		defer srv.Close()

		resp, err := NewBookingClient(newTestClient(t, "booking", srv.URL)).SubmitBooking(context.Background(), "t", req)
		require.NoError(t, err)
		assert.Equal(t, "PAY-9", resp.Reference)
	})

	t.Run("NetworkFailure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := srv.URL
		srv.Close()

		_, err := NewBookingClient(newTestClient(t, "booking", url)).SubmitBooking(context.Background(), "t", req)
		var se *SubmissionError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, models.FailureNetwork, se.Kind)
		assert.Equal(t, MessageNetwork, se.UserMessage())
	})
}

func TestCalendarClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var gets, posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			gets.Add(1)
			assert.Equal(t, "/tenants/t/appointments", r.URL.Path)
			assert.Equal(t, "2025-06-02T00:00:00Z", r.URL.Query().Get("from"))
			assert.Equal(t, "Europe/Berlin", r.URL.Query().Get("tz"))
			_, _ = w.Write([]byte(`{"appointments":[{"id":"ap-1","event_date":"2025-06-02T07:00:00Z","event_duration":45,"service_ids":["s1","s2"]}]}`))
		case http.MethodPost:
			posts.Add(1)
			assert.Equal(t, "/tenants/t/appointments/ap-1/actions", r.URL.Path)
			assert.Equal(t, "req-1", r.Header.Get("Idempotency-Key"))
			var got models.StaffActionRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			assert.Equal(t, models.StaffActionCancel, got.Action)
			w.WriteHeader(http.StatusAccepted)
		}
	}))
	defer srv.Close()

	client := NewCalendarClient(newTestClient(t, "calendar", srv.URL))
	client.UseRedisCache(rdb, time.Minute)
	ctx := context.Background()
	from := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	appts, err := client.FetchAppointments(ctx, "t", from, from.AddDate(0, 0, 7), "Europe/Berlin")
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, []string{"s1", "s2"}, appts[0].ServiceIDs)
	assert.Equal(t, 45, appts[0].EventDuration)
	assert.True(t, appts[0].EventDate.Equal(from.Add(7*time.Hour)))

	_, err = client.FetchAppointments(ctx, "t", from, from.AddDate(0, 0, 7), "Europe/Berlin")
	require.NoError(t, err)
	assert.Equal(t, int32(1), gets.Load())

	err = client.SendStaffAction(ctx, "t", &models.StaffActionRequest{
		AppointmentID: "ap-1",
		Action:        models.StaffActionCancel,
		RequestID:     "req-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), posts.Load())

	// cached reads are dropped after a staff action
	_, err = client.FetchAppointments(ctx, "t", from, from.AddDate(0, 0, 7), "Europe/Berlin")
	require.NoError(t, err)
	assert.Equal(t, int32(2), gets.Load())
}

func TestStaticCatalog(t *testing.T) {
	data := []byte(`
tenants:
  studio-1:
    - id: yoga
      name: Morning Yoga
      kind: service
      full_price: 25
      duration_minutes: 60
    - id: camp
      name: Summer Camp
      kind: program
      full_price: "300.00"
      allow_deposits: true
      deposit_amount: 50
      available_seats: 3
`)
	catalog, err := ParseStaticCatalog(data)
	require.NoError(t, err)

	items, err := catalog.FetchCatalog(context.Background(), "studio-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "yoga", items[0].ID)
	assert.Equal(t, models.Amount("300.00"), items[1].FullPrice)
	assert.Equal(t, models.Amount("50"), items[1].DepositAmount)
	assert.Equal(t, 3, *items[1].AvailableSeats)

	items[0].Name = "changed"
	again, _ := catalog.FetchCatalog(context.Background(), "studio-1")
	assert.Equal(t, "Morning Yoga", again[0].Name)

	_, err = catalog.FetchCatalog(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownTenant)

	_, err = ParseStaticCatalog([]byte("tenants:\n  a:\n    - id: x\n    - id: x\n"))
	assert.Error(t, err)
}

func TestRetryPolicy(t *testing.T) {
	p := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, BackoffFactor: 2}
	assert.Equal(t, 100*time.Millisecond, p.NextDelay(0))
	assert.Equal(t, 200*time.Millisecond, p.NextDelay(2))
	assert.Equal(t, 300*time.Millisecond, p.NextDelay(5))
	assert.Equal(t, time.Second, RetryPolicy{}.NextDelay(1))

	t.Run("StopsOnContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := RetryPolicy{MaxRetries: 5, InitialDelay: time.Hour}.Do(ctx, func() error {
			calls++
			cancel()
			return &HTTPError{StatusCode: http.StatusServiceUnavailable}
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}
