package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"bookfront/internal/availability"
	"bookfront/internal/config"
	"bookfront/internal/domain"
	"bookfront/internal/events"
	"bookfront/internal/export"
	"bookfront/internal/metrics"
	"bookfront/internal/models"
	"bookfront/internal/timegrid"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StaffActionInput is a staff request before it gets a request id.
type StaffActionInput struct {
	AppointmentID string
	Action        models.StaffAction
	NewEventDate  *time.Time
	Reason        string
	RequestedBy   string
}

// CalendarService renders appointment grids. It never mutates appointments;
// staff actions are forwarded to the calendar service.
type CalendarService struct {
	source    domain.CalendarSource
	tenants   *TenantDirectory
	eventBus  domain.EventPublisher
	rowHeight int
	exportDir string
	clock     availability.Clock
	logger    *zerolog.Logger
}

func NewCalendarService(
	source domain.CalendarSource,
	tenants *TenantDirectory,
	eventBus domain.EventPublisher,
	cfg config.CalendarConfig,
	exportDir string,
	clock availability.Clock,
	logger *zerolog.Logger,
) *CalendarService {
	if clock == nil {
		clock = availability.SystemClock
	}
	rowHeight := cfg.RowHeight
	if rowHeight <= 0 {
		rowHeight = models.DefaultRowHeight
	}
	return &CalendarService{
		source:    source,
		tenants:   tenants,
		eventBus:  eventBus,
		rowHeight: rowHeight,
		exportDir: exportDir,
		clock:     clock,
		logger:    logger,
	}
}

// Day lays out one calendar date. date is YYYY-MM-DD (empty means today) and
// tz overrides the tenant zone for the view.
func (s *CalendarService) Day(ctx context.Context, tenantID, date, tz string) (*timegrid.Layout, error) {
	tenant, loc, err := s.resolve(tenantID, tz)
	if err != nil {
		return nil, err
	}
	day, err := s.parseDate(date, loc, false)
	if err != nil {
		return nil, err
	}

	appts, err := s.fetch(ctx, tenant.ID, day, 1, loc)
	if err != nil {
		return nil, err
	}
	layout := s.grid(tenant).Day(day, appts, loc)
	return &layout, nil
}

// Week lays out seven columns starting at date; empty date means the Monday
// of the current week.
func (s *CalendarService) Week(ctx context.Context, tenantID, date, tz string) (*timegrid.Layout, error) {
	tenant, loc, err := s.resolve(tenantID, tz)
	if err != nil {
		return nil, err
	}
	start, err := s.parseDate(date, loc, true)
	if err != nil {
		return nil, err
	}

	appts, err := s.fetch(ctx, tenant.ID, start, 7, loc)
	if err != nil {
		return nil, err
	}
	layout := s.grid(tenant).Week(start, appts, loc)
	return &layout, nil
}

// WriteWeek streams the week grid as an XLSX workbook.
func (s *CalendarService) WriteWeek(ctx context.Context, w io.Writer, tenantID, date, tz string) error {
	layout, err := s.Week(ctx, tenantID, date, tz)
	if err != nil {
		return err
	}
	return export.Write(w, layout, s.exportTitle(tenantID, layout))
}

// ExportWeek saves the week grid under the export directory and returns the
// file path.
func (s *CalendarService) ExportWeek(ctx context.Context, tenantID, date, tz string) (string, error) {
	layout, err := s.Week(ctx, tenantID, date, tz)
	if err != nil {
		return "", err
	}

	fileName := fmt.Sprintf("calendar_%s_%s.xlsx", tenantID, layout.Days[0].Date)
	path, err := export.Save(s.exportDir, fileName, layout, s.exportTitle(tenantID, layout))
	if err != nil {
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("failed to export calendar")
		return "", err
	}
	s.logger.Info().Str("tenant_id", tenantID).Str("path", path).Msg("calendar exported")
	return path, nil
}

// RequestAction sends a staff action to the calendar service. Local state is
// untouched; the next read shows the outcome.
func (s *CalendarService) RequestAction(ctx context.Context, tenantID string, in StaffActionInput) (*models.StaffActionRequest, error) {
	if _, err := s.tenants.Get(tenantID); err != nil {
		return nil, err
	}
	if in.AppointmentID == "" || !in.Action.Valid() {
		return nil, ErrInvalidAction
	}
	if in.Action == models.StaffActionReschedule {
		if in.NewEventDate == nil {
			return nil, fmt.Errorf("%w: reschedule needs a new event date", ErrInvalidAction)
		}
		d := in.NewEventDate.UTC()
		if d.Second() != 0 || d.Nanosecond() != 0 || d.Minute()%models.SlotStepMinutes != 0 {
			return nil, fmt.Errorf("%w: new event date must be on the %d-minute grid", ErrInvalidAction, models.SlotStepMinutes)
		}
		in.NewEventDate = &d
	} else {
		in.NewEventDate = nil
	}

	req := &models.StaffActionRequest{
		AppointmentID: in.AppointmentID,
		Action:        in.Action,
		NewEventDate:  in.NewEventDate,
		Reason:        in.Reason,
		RequestedBy:   in.RequestedBy,
		RequestID:     uuid.NewString(),
	}
	if err := s.source.SendStaffAction(ctx, tenantID, req); err != nil {
		s.logger.Error().Err(err).
			Str("tenant_id", tenantID).
			Str("appointment_id", req.AppointmentID).
			Str("action", string(req.Action)).
			Msg("staff action failed")
		return nil, err
	}

	s.publishEvent(events.StaffActionPayload{
		TenantID:      tenantID,
		AppointmentID: req.AppointmentID,
		Action:        string(req.Action),
		RequestID:     req.RequestID,
		RequestedBy:   req.RequestedBy,
		At:            s.clock.Now(),
	})
	return req, nil
}

func (s *CalendarService) grid(tenant *Tenant) *timegrid.Grid {
	logger := s.logger.With().Str("tenant_id", tenant.ID).Logger()
	return timegrid.NewGrid(tenant.Axis, s.rowHeight, &logger, metrics.IncPlacementFailure)
}

// fetch widens the range by a day on each side: appointments placed in their
// own zone can land on a neighbouring civil day of the view zone.
func (s *CalendarService) fetch(ctx context.Context, tenantID string, start time.Time, days int, loc *time.Location) ([]models.Appointment, error) {
	from := start.AddDate(0, 0, -1)
	to := start.AddDate(0, 0, days+1)
	appts, err := s.source.FetchAppointments(ctx, tenantID, from, to, loc.String())
	if err != nil {
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("failed to fetch appointments")
		return nil, err
	}
	return appts, nil
}

func (s *CalendarService) resolve(tenantID, tz string) (*Tenant, *time.Location, error) {
	tenant, err := s.tenants.Get(tenantID)
	if err != nil {
		return nil, nil, err
	}
	if tz == "" {
		return tenant, tenant.Location, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidTimezone, tz)
	}
	return tenant, loc, nil
}

func (s *CalendarService) parseDate(date string, loc *time.Location, weekStart bool) (time.Time, error) {
	if date != "" {
		day, err := time.ParseInLocation(models.DateFormat, date, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidDate, date)
		}
		return day, nil
	}

	now := s.clock.Now().In(loc)
	y, m, d := now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	if weekStart {
		// неделя начинается с понедельника
		offset := (int(day.Weekday()) + 6) % 7
		day = day.AddDate(0, 0, -offset)
	}
	return day, nil
}

func (s *CalendarService) exportTitle(tenantID string, layout *timegrid.Layout) string {
	name := tenantID
	if t, err := s.tenants.Get(tenantID); err == nil && t.Name != "" {
		name = t.Name
	}
	return fmt.Sprintf("%s: %s - %s (%s)", name, layout.Days[0].Date, layout.Days[len(layout.Days)-1].Date, layout.Timezone)
}

func (s *CalendarService) publishEvent(payload events.StaffActionPayload) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(events.EventStaffActionRequest, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", events.EventStaffActionRequest).Msg("publish event error")
	}
}
