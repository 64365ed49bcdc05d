// Package wizard sequences the customer booking flow:
// Landing → Services → DateTime → (Submitting) → Confirmation.
package wizard

import (
	"errors"
	"time"

	"bookfront/internal/models"

	"github.com/google/uuid"
)

var (
	ErrSlotNotSelected    = errors.New("select a date and time to continue")
	ErrSubmissionInFlight = errors.New("a booking request is already in progress")
	ErrTerminalStep       = errors.New("booking is already confirmed")
	ErrNoPreviousStep     = errors.New("already at the first step")
	ErrNotConfirmed       = errors.New("booking is not confirmed yet")
	ErrStaleAttempt       = errors.New("submission attempt is no longer current")
	ErrAlreadyInCart      = errors.New("item is already in the cart")
	ErrNotInCart          = errors.New("item is not in the cart")
	ErrInvalidSlot        = errors.New("invalid date or time")
)

// Machine applies transitions to a WizardSession in place. A refused
// transition leaves the session untouched.
type Machine struct {
	now   func() time.Time
	newID func() string
}

func NewMachine(now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{now: now, newID: uuid.NewString}
}

// Advance moves one step forward. From DateTime it enters the Submitting
// sub-state and issues a fresh attempt id; the caller sends exactly one
// booking request for it.
func (m *Machine) Advance(s *models.WizardSession) error {
	if s.IsSubmitting() {
		return ErrSubmissionInFlight
	}

	switch s.Step {
	case models.StepLanding:
		s.Step = models.StepServices
	case models.StepServices:
		s.Step = models.StepDateTime
	case models.StepDateTime:
		if !s.HasSlot() {
			return ErrSlotNotSelected
		}
		started := m.now()
		s.Submission = models.Submission{
			State:     models.SubmissionPending,
			AttemptID: m.newID(),
			StartedAt: &started,
		}
	default:
		return ErrTerminalStep
	}

	s.UpdatedAt = m.now()
	return nil
}

// Complete records a successful response. Results for an attempt the user
// already navigated away from are refused with ErrStaleAttempt.
func (m *Machine) Complete(s *models.WizardSession, attemptID, reference, message, total string) error {
	if !m.current(s, attemptID) {
		return ErrStaleAttempt
	}

	s.Step = models.StepConfirmation
	s.Submission.State = models.SubmissionSucceeded
	s.Submission.Reference = reference
	s.Submission.Message = message
	s.Submission.Total = total
	s.Submission.FailureKind = ""
	s.UpdatedAt = m.now()
	return nil
}

// Fail returns to DateTime keeping the cart and selections so the user can
// retry.
func (m *Machine) Fail(s *models.WizardSession, attemptID string, kind models.FailureKind, message string) error {
	if !m.current(s, attemptID) {
		return ErrStaleAttempt
	}

	s.Step = models.StepDateTime
	s.Submission = models.Submission{
		State:       models.SubmissionFailed,
		FailureKind: kind,
		Message:     message,
	}
	s.UpdatedAt = m.now()
	return nil
}

// Back never clears selections. Leaving Submitting abandons the attempt; its
// eventual result is ignored.
func (m *Machine) Back(s *models.WizardSession) error {
	switch s.Step {
	case models.StepLanding:
		return ErrNoPreviousStep
	case models.StepConfirmation:
		return ErrTerminalStep
	}

	if s.IsSubmitting() {
		s.Submission = models.Submission{State: models.SubmissionIdle}
	}
	s.Step--
	s.UpdatedAt = m.now()
	return nil
}

// ReturnHome is the terminal reset after a confirmed booking.
func (m *Machine) ReturnHome(s *models.WizardSession) error {
	if s.Step != models.StepConfirmation {
		return ErrNotConfirmed
	}
	m.reset(s)
	return nil
}

// Cancel resets the session from any step.
func (m *Machine) Cancel(s *models.WizardSession) {
	m.reset(s)
}

func (m *Machine) AddItem(s *models.WizardSession, item models.BookableItem) error {
	if err := m.mutable(s); err != nil {
		return err
	}
	s.EnsureCart()
	if !s.Cart.Add(item) {
		return ErrAlreadyInCart
	}
	s.UpdatedAt = m.now()
	return nil
}

func (m *Machine) RemoveItem(s *models.WizardSession, itemID string) error {
	if err := m.mutable(s); err != nil {
		return err
	}
	s.EnsureCart()
	if !s.Cart.Remove(itemID) {
		return ErrNotInCart
	}
	s.UpdatedAt = m.now()
	return nil
}

// SelectSlot stores a calendar date and a time of day on the 15-minute grid.
func (m *Machine) SelectSlot(s *models.WizardSession, date string, minutes int) error {
	if err := m.mutable(s); err != nil {
		return err
	}
	if _, err := time.Parse(models.DateFormat, date); err != nil {
		return ErrInvalidSlot
	}
	if minutes < 0 || minutes >= models.MinutesPerDay || minutes%models.SlotStepMinutes != 0 {
		return ErrInvalidSlot
	}

	s.SelectedDate = date
	s.SelectedTime = &minutes
	s.UpdatedAt = m.now()
	return nil
}

func (m *Machine) ClearSlot(s *models.WizardSession) error {
	if err := m.mutable(s); err != nil {
		return err
	}
	s.SelectedDate = ""
	s.SelectedTime = nil
	s.UpdatedAt = m.now()
	return nil
}

func (m *Machine) SetCustomer(s *models.WizardSession, customer models.Customer, agreedToTerms bool) error {
	if err := m.mutable(s); err != nil {
		return err
	}
	s.Customer = customer
	s.AgreedToTerms = agreedToTerms
	s.UpdatedAt = m.now()
	return nil
}

func (m *Machine) current(s *models.WizardSession, attemptID string) bool {
	return s.IsSubmitting() && attemptID != "" && s.Submission.AttemptID == attemptID
}

func (m *Machine) mutable(s *models.WizardSession) error {
	if s.IsSubmitting() {
		return ErrSubmissionInFlight
	}
	if s.Step == models.StepConfirmation {
		return ErrTerminalStep
	}
	return nil
}

func (m *Machine) reset(s *models.WizardSession) {
	s.Step = models.StepLanding
	s.Cart = models.NewCart()
	s.SelectedDate = ""
	s.SelectedTime = nil
	s.Customer = models.Customer{}
	s.AgreedToTerms = false
	s.Submission = models.Submission{State: models.SubmissionIdle}
	s.UpdatedAt = m.now()
}
