package wizard

import (
	"testing"
	"time"

	"bookfront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMachine() (*Machine, *time.Time) {
	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	m := NewMachine(func() time.Time { return now })
	ids := 0
	m.newID = func() string {
		ids++
		return "attempt-" + string(rune('0'+ids))
	}
	return m, &now
}

func sessionAt(step models.WizardStep) *models.WizardSession {
	s := models.NewWizardSession("s1", "t1", time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))
	s.Step = step
	return s
}

func TestMachine_Advance(t *testing.T) {
	m, _ := newTestMachine()

	t.Run("LandingToServices", func(t *testing.T) {
		s := sessionAt(models.StepLanding)
		require.NoError(t, m.Advance(s))
		assert.Equal(t, models.StepServices, s.Step)
	})

	t.Run("ServicesToDateTimeWithEmptyCart", func(t *testing.T) {
		s := sessionAt(models.StepServices)
		require.NoError(t, m.Advance(s))
		assert.Equal(t, models.StepDateTime, s.Step)
		assert.Equal(t, 0, s.Cart.Len())
	})

	t.Run("DateTimeWithoutTimeStaysPut", func(t *testing.T) {
		s := sessionAt(models.StepDateTime)
		s.SelectedDate = "2025-04-10"
		before := *s

		err := m.Advance(s)
		assert.ErrorIs(t, err, ErrSlotNotSelected)
		assert.Equal(t, before, *s)
		assert.Equal(t, models.StepDateTime, s.Step)
		assert.Equal(t, models.SubmissionIdle, s.Submission.State)
	})

	t.Run("DateTimeStartsSubmission", func(t *testing.T) {
		s := sessionAt(models.StepDateTime)
		require.NoError(t, m.SelectSlot(s, "2025-04-10", 9*60))
		require.NoError(t, m.Advance(s))

		assert.Equal(t, models.StepDateTime, s.Step)
		assert.True(t, s.IsSubmitting())
		assert.NotEmpty(t, s.Submission.AttemptID)
		require.NotNil(t, s.Submission.StartedAt)

		// at most one request in flight
		attempt := s.Submission.AttemptID
		assert.ErrorIs(t, m.Advance(s), ErrSubmissionInFlight)
		assert.Equal(t, attempt, s.Submission.AttemptID)
	})

	t.Run("ConfirmationIsTerminal", func(t *testing.T) {
		s := sessionAt(models.StepConfirmation)
		assert.ErrorIs(t, m.Advance(s), ErrTerminalStep)
	})
}

func TestMachine_Submission(t *testing.T) {
	m, now := newTestMachine()

	pending := func(t *testing.T) *models.WizardSession {
		s := sessionAt(models.StepDateTime)
		require.NoError(t, m.AddItem(s, models.BookableItem{ID: "a"}))
		require.NoError(t, m.SelectSlot(s, "2025-04-10", 10*60+30))
		require.NoError(t, m.Advance(s))
		return s
	}

	t.Run("Complete", func(t *testing.T) {
		s := pending(t)
		*now = now.Add(time.Minute)
		require.NoError(t, m.Complete(s, s.Submission.AttemptID, "PAY-1", "Booked", "110.00"))

		assert.Equal(t, models.StepConfirmation, s.Step)
		assert.Equal(t, models.SubmissionSucceeded, s.Submission.State)
		assert.Equal(t, "PAY-1", s.Submission.Reference)
		assert.Equal(t, "110.00", s.Submission.Total)
		assert.Equal(t, *now, s.UpdatedAt)
	})

	t.Run("FailPreservesSelections", func(t *testing.T) {
		s := pending(t)
		require.NoError(t, m.Fail(s, s.Submission.AttemptID, models.FailureSeatLoss, "Sold out"))

		assert.Equal(t, models.StepDateTime, s.Step)
		assert.Equal(t, models.SubmissionFailed, s.Submission.State)
		assert.Equal(t, models.FailureSeatLoss, s.Submission.FailureKind)
		assert.Equal(t, "Sold out", s.Submission.Message)
		assert.Equal(t, []string{"a"}, s.Cart.IDs())
		assert.Equal(t, "2025-04-10", s.SelectedDate)
		assert.Equal(t, "10:30", s.SlotLabel())

		// manual retry issues a new attempt
		require.NoError(t, m.Advance(s))
		assert.True(t, s.IsSubmitting())
	})

	t.Run("StaleAttemptIgnored", func(t *testing.T) {
		s := pending(t)
		old := s.Submission.AttemptID
		require.NoError(t, m.Back(s))
		assert.Equal(t, models.StepServices, s.Step)
		assert.False(t, s.IsSubmitting())

		assert.ErrorIs(t, m.Complete(s, old, "PAY", "", ""), ErrStaleAttempt)
		assert.ErrorIs(t, m.Fail(s, old, models.FailureNetwork, ""), ErrStaleAttempt)
		assert.Equal(t, models.StepServices, s.Step)

		require.NoError(t, m.Advance(s))
		require.NoError(t, m.Advance(s))
		assert.NotEqual(t, old, s.Submission.AttemptID)
		assert.ErrorIs(t, m.Complete(s, old, "PAY", "", ""), ErrStaleAttempt)
		assert.True(t, s.IsSubmitting())
	})

	t.Run("NotSubmitting", func(t *testing.T) {
		s := sessionAt(models.StepDateTime)
		assert.ErrorIs(t, m.Complete(s, "", "", "", ""), ErrStaleAttempt)
	})

	t.Run("MutationsLockedWhilePending", func(t *testing.T) {
		s := pending(t)
		assert.ErrorIs(t, m.AddItem(s, models.BookableItem{ID: "b"}), ErrSubmissionInFlight)
		assert.ErrorIs(t, m.RemoveItem(s, "a"), ErrSubmissionInFlight)
		assert.ErrorIs(t, m.SelectSlot(s, "2025-04-11", 0), ErrSubmissionInFlight)
		assert.ErrorIs(t, m.ClearSlot(s), ErrSubmissionInFlight)
		assert.ErrorIs(t, m.SetCustomer(s, models.Customer{}, true), ErrSubmissionInFlight)
		assert.Equal(t, []string{"a"}, s.Cart.IDs())
	})
}

func TestMachine_Back(t *testing.T) {
	m, _ := newTestMachine()

	s := sessionAt(models.StepDateTime)
	require.NoError(t, m.AddItem(s, models.BookableItem{ID: "a"}))
	require.NoError(t, m.SelectSlot(s, "2025-04-10", 0))

	require.NoError(t, m.Back(s))
	assert.Equal(t, models.StepServices, s.Step)
	require.NoError(t, m.Back(s))
	assert.Equal(t, models.StepLanding, s.Step)
	assert.ErrorIs(t, m.Back(s), ErrNoPreviousStep)

	assert.Equal(t, []string{"a"}, s.Cart.IDs())
	assert.True(t, s.HasSlot())

	assert.ErrorIs(t, m.Back(sessionAt(models.StepConfirmation)), ErrTerminalStep)
}

func TestMachine_Reset(t *testing.T) {
	m, _ := newTestMachine()

	filled := func() *models.WizardSession {
		s := sessionAt(models.StepDateTime)
		_ = m.AddItem(s, models.BookableItem{ID: "a"})
		_ = m.SelectSlot(s, "2025-04-10", 60)
		_ = m.SetCustomer(s, models.Customer{FirstName: "Ada"}, true)
		return s
	}

	assertReset := func(t *testing.T, s *models.WizardSession) {
		assert.Equal(t, models.StepLanding, s.Step)
		assert.Equal(t, 0, s.Cart.Len())
		assert.False(t, s.HasSlot())
		assert.Empty(t, s.Customer.FirstName)
		assert.False(t, s.AgreedToTerms)
		assert.Equal(t, models.Submission{State: models.SubmissionIdle}, s.Submission)
		assert.Equal(t, "s1", s.ID)
		assert.Equal(t, "t1", s.TenantID)
	}

	t.Run("ReturnHome", func(t *testing.T) {
		s := filled()
		assert.ErrorIs(t, m.ReturnHome(s), ErrNotConfirmed)

		require.NoError(t, m.Advance(s))
		require.NoError(t, m.Complete(s, s.Submission.AttemptID, "ref", "", ""))
		assert.ErrorIs(t, m.AddItem(s, models.BookableItem{ID: "b"}), ErrTerminalStep)

		require.NoError(t, m.ReturnHome(s))
		assertReset(t, s)
	})

	t.Run("CancelWhilePending", func(t *testing.T) {
		s := filled()
		require.NoError(t, m.Advance(s))
		attempt := s.Submission.AttemptID

		m.Cancel(s)
		assertReset(t, s)
		assert.ErrorIs(t, m.Complete(s, attempt, "ref", "", ""), ErrStaleAttempt)
	})
}

func TestMachine_Cart(t *testing.T) {
	m, _ := newTestMachine()
	s := sessionAt(models.StepServices)
	s.Cart = nil

	require.NoError(t, m.AddItem(s, models.BookableItem{ID: "b"}))
	require.NoError(t, m.AddItem(s, models.BookableItem{ID: "a"}))
	assert.ErrorIs(t, m.AddItem(s, models.BookableItem{ID: "b"}), ErrAlreadyInCart)
	assert.Equal(t, []string{"b", "a"}, s.Cart.IDs())

	require.NoError(t, m.RemoveItem(s, "b"))
	assert.ErrorIs(t, m.RemoveItem(s, "b"), ErrNotInCart)
	assert.Equal(t, []string{"a"}, s.Cart.IDs())
}

func TestMachine_SelectSlot(t *testing.T) {
	m, _ := newTestMachine()
	tests := []struct {
		name    string
		date    string
		minutes int
		wantErr bool
	}{
		{"midnight", "2025-04-10", 0, false},
		{"last slot", "2025-04-10", 23*60 + 45, false},
		{"off grid", "2025-04-10", 9*60 + 7, true},
		{"negative", "2025-04-10", -15, true},
		{"end of day", "2025-04-10", 24 * 60, true},
		{"bad date", "10/04/2025", 60, true},
		{"impossible date", "2025-02-30", 60, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sessionAt(models.StepDateTime)
			err := m.SelectSlot(s, tt.date, tt.minutes)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSlot)
				assert.False(t, s.HasSlot())
				return
			}
			require.NoError(t, err)
			assert.True(t, s.HasSlot())
		})
	}

	s := sessionAt(models.StepDateTime)
	require.NoError(t, m.SelectSlot(s, "2025-04-10", 60))
	require.NoError(t, m.ClearSlot(s))
	assert.False(t, s.HasSlot())
}
