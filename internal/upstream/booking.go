package upstream

import (
	"context"
	"fmt"
	"net/url"

	"bookfront/internal/models"
)

// BookingClient sends booking requests. It never retries.
type BookingClient struct {
	*Client
}

func NewBookingClient(c *Client) *BookingClient {
	return &BookingClient{Client: c}
}

// SubmitBooking returns the reply on success and a *SubmissionError
// otherwise. A 2xx reply with success=false is a validation failure.
func (c *BookingClient) SubmitBooking(ctx context.Context, tenantID string, req *models.BookingRequest) (*models.BookingResponse, error) {
	endpoint := fmt.Sprintf("%s/tenants/%s/bookings", c.baseURL, url.PathEscape(tenantID))
	headers := map[string]string{"Idempotency-Key": req.AttemptID}

	var resp models.BookingResponse
	if err := c.postJSON(ctx, endpoint, req, &resp, headers); err != nil {
		return nil, ClassifySubmission(err)
	}
	if !resp.Success {
		return nil, &SubmissionError{Kind: models.FailureValidation, Message: resp.Message}
	}
	return &resp, nil
}
