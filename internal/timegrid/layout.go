package timegrid

import (
	"errors"
	"sort"
	"time"

	"bookfront/internal/models"

	"github.com/rs/zerolog"
)

type PlacedAppointment struct {
	Appointment models.Appointment `json:"appointment"`
	Placement   Placement          `json:"placement"`
	Geometry    Geometry           `json:"geometry"`
	LocalStart  time.Time          `json:"local_start"`
	Timezone    string             `json:"timezone"`
}

type UnplacedAppointment struct {
	Appointment models.Appointment `json:"appointment"`
	Date        string             `json:"date"`
	Label       string             `json:"label"`
	Code        string             `json:"code"`
	Reason      string             `json:"reason"`
}

type DayColumn struct {
	Date     string                `json:"date"`
	Weekday  string                `json:"weekday"`
	Placed   []PlacedAppointment   `json:"placed"`
	Unplaced []UnplacedAppointment `json:"unplaced"`
}

type Layout struct {
	Labels    []string    `json:"labels"`
	RowHeight int         `json:"row_height"`
	Timezone  string      `json:"timezone"`
	Days      []DayColumn `json:"days"`
}

// Unplaced collects the failures of every column.
func (l *Layout) Unplaced() []UnplacedAppointment {
	var out []UnplacedAppointment
	for _, d := range l.Days {
		out = append(out, d.Unplaced...)
	}
	return out
}

// FailureObserver is told the code of every appointment that could not be
// placed.
type FailureObserver func(code string)

// Grid renders day and week views on one axis.
type Grid struct {
	axis      *Axis
	rowHeight int
	logger    *zerolog.Logger
	observe   FailureObserver
}

func NewGrid(axis *Axis, rowHeight int, logger *zerolog.Logger, observe FailureObserver) *Grid {
	if rowHeight <= 0 {
		rowHeight = models.DefaultRowHeight
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Grid{axis: axis, rowHeight: rowHeight, logger: logger, observe: observe}
}

func (g *Grid) Axis() *Axis { return g.axis }

// Day lays out the appointments that start on date's calendar day. date's
// year, month and day are read as-is and interpreted in loc.
func (g *Grid) Day(date time.Time, appts []models.Appointment, loc *time.Location) Layout {
	if loc == nil {
		loc = time.UTC
	}
	return Layout{
		Labels:    g.axis.Labels(),
		RowHeight: g.rowHeight,
		Timezone:  loc.String(),
		Days:      []DayColumn{g.column(civilDay(date, loc, 0), appts, loc)},
	}
}

// Week lays out seven independent day columns starting at weekStart. Each
// appointment is placed in its own timezone when it has one.
func (g *Grid) Week(weekStart time.Time, appts []models.Appointment, loc *time.Location) Layout {
	if loc == nil {
		loc = time.UTC
	}
	days := make([]DayColumn, 0, 7)
	for i := 0; i < 7; i++ {
		days = append(days, g.column(civilDay(weekStart, loc, i), appts, loc))
	}
	return Layout{
		Labels:    g.axis.Labels(),
		RowHeight: g.rowHeight,
		Timezone:  loc.String(),
		Days:      days,
	}
}

func (g *Grid) column(day time.Time, appts []models.Appointment, viewLoc *time.Location) DayColumn {
	col := DayColumn{
		Date:     day.Format(models.DateFormat),
		Weekday:  day.Weekday().String(),
		Placed:   []PlacedAppointment{},
		Unplaced: []UnplacedAppointment{},
	}
	y, m, d := day.Date()

	for i := range appts {
		appt := appts[i]
		loc := g.zoneFor(&appt, viewLoc)
		local := appt.EventDate.In(loc)
		ly, lm, ld := local.Date()
		if ly != y || lm != m || ld != d {
			continue
		}

		placement, err := Place(&appt, g.axis, loc)
		if err != nil {
			var pe *PlacementError
			if !errors.As(err, &pe) {
				pe = &PlacementError{AppointmentID: appt.ID, Reason: err.Error()}
			}
			g.logger.Warn().
				Str("appointment_id", appt.ID).
				Str("date", col.Date).
				Str("label", local.Format(models.TimeFormat)).
				Str("timezone", loc.String()).
				Str("code", pe.Code).
				Msg("appointment not placed on calendar grid")
			if g.observe != nil {
				g.observe(pe.Code)
			}
			col.Unplaced = append(col.Unplaced, UnplacedAppointment{
				Appointment: appt,
				Date:        col.Date,
				Label:       local.Format(models.TimeFormat),
				Code:        pe.Code,
				Reason:      pe.Reason,
			})
			continue
		}

		col.Placed = append(col.Placed, PlacedAppointment{
			Appointment: appt,
			Placement:   placement,
			Geometry:    placement.Geometry(g.rowHeight),
			LocalStart:  local,
			Timezone:    loc.String(),
		})
	}

	sort.SliceStable(col.Placed, func(i, j int) bool {
		if col.Placed[i].Placement.RowIndex == col.Placed[j].Placement.RowIndex {
			return col.Placed[i].Appointment.ID < col.Placed[j].Appointment.ID
		}
		return col.Placed[i].Placement.RowIndex < col.Placed[j].Placement.RowIndex
	})
	return col
}

func (g *Grid) zoneFor(appt *models.Appointment, viewLoc *time.Location) *time.Location {
	if appt.Timezone == "" {
		return viewLoc
	}
	loc, err := time.LoadLocation(appt.Timezone)
	if err != nil {
		g.logger.Warn().Err(err).Str("appointment_id", appt.ID).Str("timezone", appt.Timezone).
			Msg("unknown appointment timezone, using view timezone")
		return viewLoc
	}
	return loc
}

func civilDay(date time.Time, loc *time.Location, offset int) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d+offset, 0, 0, 0, 0, loc)
}
