package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"bookfront/internal/models"
)

var (
	ErrUnknownTenant      = errors.New("unknown tenant")
	ErrSubmissionFailed   = errors.New("booking submission failed")
	ErrConcurrentSeatLoss = errors.New("seat no longer available")
)

// CodeSeatUnavailable is the booking service error code for a lost seat race.
const CodeSeatUnavailable = "seat_unavailable"

const (
	MessageSeatLoss   = "One of the selected items just sold out. Your cart is saved; please review it and try again."
	MessageValidation = "Please check your booking details and try again."
	MessageNetwork    = "We could not reach the booking service. Your selections are saved; please try again."
	MessageUnknown    = "Something went wrong while booking. Please try again."
)

// HTTPError is a non-2xx reply. Code and Message come from a structured
// {"error", "code"} body when the server sent one.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

// SubmissionError classifies a failed booking write.
type SubmissionError struct {
	Kind    models.FailureKind
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrSubmissionFailed, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrSubmissionFailed, e.Kind)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

func (e *SubmissionError) Is(target error) bool {
	switch target {
	case ErrSubmissionFailed:
		return true
	case ErrConcurrentSeatLoss:
		return e.Kind == models.FailureSeatLoss
	}
	return false
}

// UserMessage prefers the server-provided text and falls back to a generic
// message per failure kind.
func (e *SubmissionError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Kind {
	case models.FailureSeatLoss:
		return MessageSeatLoss
	case models.FailureValidation:
		return MessageValidation
	case models.FailureNetwork:
		return MessageNetwork
	}
	return MessageUnknown
}

// ClassifySubmission turns any booking client error into a SubmissionError.
func ClassifySubmission(err error) *SubmissionError {
	var se *SubmissionError
	if errors.As(err, &se) {
		return se
	}

	var he *HTTPError
	if errors.As(err, &he) {
		kind := models.FailureUnknown
		switch {
		case he.Code == CodeSeatUnavailable || he.StatusCode == http.StatusConflict:
			kind = models.FailureSeatLoss
		case he.StatusCode == http.StatusBadRequest || he.StatusCode == http.StatusUnprocessableEntity:
			kind = models.FailureValidation
		case he.StatusCode == http.StatusBadGateway || he.StatusCode == http.StatusServiceUnavailable ||
			he.StatusCode == http.StatusGatewayTimeout:
			kind = models.FailureNetwork
		}
		return &SubmissionError{Kind: kind, Message: he.Message, Err: err}
	}

	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &ne) {
		return &SubmissionError{Kind: models.FailureNetwork, Err: err}
	}
	return &SubmissionError{Kind: models.FailureUnknown, Err: err}
}

// retryable reports transport failures, 429 and 5xx replies.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusTooManyRequests || he.StatusCode >= 500
	}
	var ne net.Error
	return errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded)
}
