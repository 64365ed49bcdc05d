package models

// BookingRequest is the single write sent to the booking service when a
// session enters Submitting.
type BookingRequest struct {
	AttemptID     string   `json:"attempt_id"`
	SessionID     string   `json:"session_id"`
	Customer      Customer `json:"customer"`
	AgreedToTerms bool     `json:"agreed_to_terms"`
	ItemIDs       []string `json:"item_ids"`
	Date          string   `json:"date"`
	Time          string   `json:"time"`
	Timezone      string   `json:"timezone"`
	Total         string   `json:"total"`
	Currency      string   `json:"currency"`
}

// BookingResponse is the successful reply. Reference is the payment or
// redirect reference, when the booking service issues one.
type BookingResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Reference string `json:"reference,omitempty"`
}
