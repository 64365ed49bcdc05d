package upstream

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"bookfront/internal/models"
)

const keyAppointments = "appointments:%s:%s:%s:%s"

type CalendarClient struct {
	*Client
}

func NewCalendarClient(c *Client) *CalendarClient {
	return &CalendarClient{Client: c}
}

// FetchAppointments reads appointments starting in [from, to).
func (c *CalendarClient) FetchAppointments(ctx context.Context, tenantID string, from, to time.Time, tz string) ([]models.Appointment, error) {
	q := url.Values{}
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))
	q.Set("tz", tz)
	endpoint := fmt.Sprintf("%s/tenants/%s/appointments?%s", c.baseURL, url.PathEscape(tenantID), q.Encode())
	cacheKey := fmt.Sprintf(keyAppointments, tenantID, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339), tz)

	var wrap struct {
		Appointments []models.Appointment `json:"appointments"`
	}
	if c.readCache(ctx, cacheKey, &wrap) {
		return wrap.Appointments, nil
	}

	if err := c.getJSON(ctx, endpoint, &wrap); err != nil {
		return nil, fmt.Errorf("fetch appointments for %s: %w", tenantID, err)
	}
	c.writeCache(ctx, cacheKey, wrap)
	return wrap.Appointments, nil
}

// SendStaffAction forwards the request to the calendar service and drops the
// tenant's cached appointment reads. Nothing is applied locally.
func (c *CalendarClient) SendStaffAction(ctx context.Context, tenantID string, req *models.StaffActionRequest) error {
	endpoint := fmt.Sprintf("%s/tenants/%s/appointments/%s/actions",
		c.baseURL, url.PathEscape(tenantID), url.PathEscape(req.AppointmentID))
	headers := map[string]string{"Idempotency-Key": req.RequestID}

	if err := c.postJSON(ctx, endpoint, req, nil, headers); err != nil {
		return fmt.Errorf("staff action %s on %s: %w", req.Action, req.AppointmentID, err)
	}
	c.dropCache(ctx, fmt.Sprintf("appointments:%s:*", tenantID))
	return nil
}
