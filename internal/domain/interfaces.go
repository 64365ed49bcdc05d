package domain

import (
	"context"
	"time"

	"bookfront/internal/models"
)

// SessionRepository stores wizard sessions between requests. GetSession
// returns nil, nil for an unknown or expired session.
type SessionRepository interface {
	GetSession(ctx context.Context, id string) (*models.WizardSession, error)
	SaveSession(ctx context.Context, session *models.WizardSession) error
	DeleteSession(ctx context.Context, id string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// ClaimAttempt returns true only for the first caller of an attempt id.
	ClaimAttempt(ctx context.Context, attemptID string, ttl time.Duration) (bool, error)
}

// CatalogSource returns the ordered catalog snapshot of a tenant.
type CatalogSource interface {
	FetchCatalog(ctx context.Context, tenantID string) ([]models.BookableItem, error)
}

type BookingSubmitter interface {
	SubmitBooking(ctx context.Context, tenantID string, req *models.BookingRequest) (*models.BookingResponse, error)
}

type CalendarSource interface {
	FetchAppointments(ctx context.Context, tenantID string, from, to time.Time, tz string) ([]models.Appointment, error)
	SendStaffAction(ctx context.Context, tenantID string, req *models.StaffActionRequest) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
