package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EventSessionStarted     = "session_started"
	EventStepChanged        = "step_changed"
	EventCartItemAdded      = "cart_item_added"
	EventCartItemRemoved    = "cart_item_removed"
	EventCartReconciled     = "cart_reconciled"
	EventSubmissionStarted  = "submission_started"
	EventBookingConfirmed   = "booking_confirmed"
	EventBookingFailed      = "booking_failed"
	EventSessionReset       = "session_reset"
	EventStaffActionRequest = "staff_action_requested"

	// AllEvents subscribes a handler to every event type.
	AllEvents = "*"
)

// WizardEventPayload is a session snapshot for event consumers.
type WizardEventPayload struct {
	SessionID   string   `json:"session_id"`
	TenantID    string   `json:"tenant_id"`
	Step        string   `json:"step"`
	ItemIDs     []string `json:"item_ids,omitempty"`
	AttemptID   string   `json:"attempt_id,omitempty"`
	Reference   string   `json:"reference,omitempty"`
	FailureKind string   `json:"failure_kind,omitempty"`
	Message     string   `json:"message,omitempty"`
	Total       string   `json:"total,omitempty"`
}

type StaffActionPayload struct {
	TenantID      string    `json:"tenant_id"`
	AppointmentID string    `json:"appointment_id"`
	Action        string    `json:"action"`
	RequestID     string    `json:"request_id"`
	RequestedBy   string    `json:"requested_by,omitempty"`
	At            time.Time `json:"at"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	if event.Type != AllEvents {
		handlers = append(handlers, b.subscribers[AllEvents]...)
	}
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}

// LogHandler writes every event to the logger at debug level.
func LogHandler(logger *zerolog.Logger) EventHandler {
	return func(event *Event) error {
		logger.Debug().
			Str("event", event.Type).
			RawJSON("payload", event.Payload).
			Msg("event published")
		return nil
	}
}
