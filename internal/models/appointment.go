package models

import "time"

type AppointmentStatus string

const (
	AppointmentBooked      AppointmentStatus = "booked"
	AppointmentCompleted   AppointmentStatus = "completed"
	AppointmentCancelled   AppointmentStatus = "cancelled"
	AppointmentRescheduled AppointmentStatus = "rescheduled"
)

// Appointment is read-only to this service. EventDate is an absolute instant
// (UTC on the wire); Timezone is the IANA zone the booking was made in, if known.
type Appointment struct {
	ID            string            `json:"id"`
	CustomerID    string            `json:"customer_id"`
	CustomerName  string            `json:"customer_name,omitempty"`
	ServiceIDs    []string          `json:"service_ids"`
	EventDate     time.Time         `json:"event_date"`
	EventDuration int               `json:"event_duration"`
	DidNotShow    bool              `json:"did_not_show"`
	Status        AppointmentStatus `json:"status"`
	Timezone      string            `json:"timezone,omitempty"`
}

func (a *Appointment) End() time.Time {
	return a.EventDate.Add(time.Duration(a.EventDuration) * time.Minute)
}

type StaffAction string

const (
	StaffActionCancel     StaffAction = "cancel"
	StaffActionReschedule StaffAction = "reschedule"
	StaffActionMarkNoShow StaffAction = "mark_did_not_show"
)

// StaffActionRequest is sent to the calendar service; the mutation is applied
// there, never locally.
type StaffActionRequest struct {
	AppointmentID string      `json:"appointment_id"`
	Action        StaffAction `json:"action"`
	NewEventDate  *time.Time  `json:"new_event_date,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	RequestedBy   string      `json:"requested_by,omitempty"`
	RequestID     string      `json:"request_id"`
}

func (a StaffAction) Valid() bool {
	switch a {
	case StaffActionCancel, StaffActionReschedule, StaffActionMarkNoShow:
		return true
	}
	return false
}
