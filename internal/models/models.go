package models

import (
	"fmt"
	"time"
)

type WizardStep int

const (
	StepLanding WizardStep = iota
	StepServices
	StepDateTime
	StepConfirmation
)

func (s WizardStep) String() string {
	switch s {
	case StepLanding:
		return "landing"
	case StepServices:
		return "services"
	case StepDateTime:
		return "date_time"
	case StepConfirmation:
		return "confirmation"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

type SubmissionState string

const (
	SubmissionIdle      SubmissionState = "idle"
	SubmissionPending   SubmissionState = "pending"
	SubmissionSucceeded SubmissionState = "succeeded"
	SubmissionFailed    SubmissionState = "failed"
)

type FailureKind string

const (
	FailureValidation FailureKind = "validation"
	FailureSeatLoss   FailureKind = "seat_loss"
	FailureNetwork    FailureKind = "network"
	FailureUnknown    FailureKind = "unknown"
)

type Customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Notes     string `json:"notes,omitempty"`
}

// Submission tracks the single booking attempt a session may have in flight.
// AttemptID changes on every attempt; results for any other id are stale.
type Submission struct {
	State       SubmissionState `json:"state"`
	AttemptID   string          `json:"attempt_id,omitempty"`
	Message     string          `json:"message,omitempty"`
	FailureKind FailureKind     `json:"failure_kind,omitempty"`
	Reference   string          `json:"reference,omitempty"`
	Total       string          `json:"total,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
}

// WizardSession is the in-progress state of one customer's booking flow.
type WizardSession struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	Step          WizardStep `json:"step"`
	Cart          *Cart      `json:"cart"`
	SelectedDate  string     `json:"selected_date,omitempty"`
	SelectedTime  *int       `json:"selected_time,omitempty"`
	Customer      Customer   `json:"customer"`
	AgreedToTerms bool       `json:"agreed_to_terms"`
	Submission    Submission `json:"submission"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func NewWizardSession(id, tenantID string, now time.Time) *WizardSession {
	return &WizardSession{
		ID:         id,
		TenantID:   tenantID,
		Step:       StepLanding,
		Cart:       NewCart(),
		Submission: Submission{State: SubmissionIdle},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// EnsureCart guards sessions decoded from storage with a null cart.
func (s *WizardSession) EnsureCart() {
	if s.Cart == nil {
		s.Cart = NewCart()
	}
}

func (s *WizardSession) IsSubmitting() bool {
	return s.Submission.State == SubmissionPending
}

func (s *WizardSession) HasSlot() bool {
	return s.SelectedDate != "" && s.SelectedTime != nil
}

// SlotLabel renders the selected time of day as HH:MM.
func (s *WizardSession) SlotLabel() string {
	if s.SelectedTime == nil {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", *s.SelectedTime/60, *s.SelectedTime%60)
}

// SlotStart resolves the selected date and time in loc.
func (s *WizardSession) SlotStart(loc *time.Location) (time.Time, error) {
	if !s.HasSlot() {
		return time.Time{}, fmt.Errorf("no slot selected")
	}
	day, err := time.ParseInLocation(DateFormat, s.SelectedDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse selected date: %w", err)
	}
	// wall-clock minutes, so DST days resolve to the selected label
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, *s.SelectedTime, 0, 0, loc), nil
}
