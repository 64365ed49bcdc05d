package timegrid

import (
	"errors"
	"fmt"
	"time"

	"bookfront/internal/models"
)

var ErrPlacementFailed = errors.New("placement failed")

const (
	CodeOffGrid     = "off_grid"
	CodeOutOfRange  = "out_of_range"
	CodeBadDuration = "bad_duration"
	CodeNoAxis      = "no_axis"

	ReasonOffGrid     = "start time is not on the 15-minute grid"
	ReasonOutOfRange  = "start time is outside the calendar day"
	ReasonBadDuration = "duration is not a positive multiple of 15 minutes"
	ReasonNoAxis      = "no calendar axis"
)

var reasons = map[string]string{
	CodeOffGrid:     ReasonOffGrid,
	CodeOutOfRange:  ReasonOutOfRange,
	CodeBadDuration: ReasonBadDuration,
	CodeNoAxis:      ReasonNoAxis,
}

func failure(appointmentID, label, code string) *PlacementError {
	return &PlacementError{AppointmentID: appointmentID, Label: label, Code: code, Reason: reasons[code]}
}

// PlacementError means the appointment is not rendered on the grid. Callers
// surface it in an unplaced list instead of dropping it.
type PlacementError struct {
	AppointmentID string
	Label         string
	Code          string
	Reason        string
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("appointment %s at %s: %s", e.AppointmentID, e.Label, e.Reason)
}

func (e *PlacementError) Is(target error) bool {
	return target == ErrPlacementFailed
}

type Placement struct {
	RowIndex int `json:"row_index"`
	RowSpan  int `json:"row_span"`
}

// Geometry is in pixels except WidthPercent. Overlapping appointments share
// the same horizontal position.
type Geometry struct {
	Top          int `json:"top"`
	Height       int `json:"height"`
	Left         int `json:"left"`
	WidthPercent int `json:"width_percent"`
}

// Geometry adds one buffer row to the height so adjacent appointments do not
// touch.
func (p Placement) Geometry(rowHeight int) Geometry {
	return Geometry{
		Top:          p.RowIndex * rowHeight,
		Height:       rowHeight * (p.RowSpan + 1),
		Left:         0,
		WidthPercent: 100,
	}
}

// Place converts the appointment start into loc and finds its row by exact
// label match.
func Place(appt *models.Appointment, axis *Axis, loc *time.Location) (Placement, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := appt.EventDate.In(loc)
	label := local.Format(models.TimeFormat)

	if axis == nil {
		return Placement{}, failure(appt.ID, label, CodeNoAxis)
	}
	if appt.EventDuration <= 0 || appt.EventDuration%StepMinutes != 0 {
		return Placement{}, failure(appt.ID, label, CodeBadDuration)
	}

	idx, ok := axis.IndexOf(label)
	if !ok || local.Second() != 0 || local.Nanosecond() != 0 {
		code := CodeOffGrid
		if !axis.Covers(local.Hour()*60 + local.Minute()) {
			code = CodeOutOfRange
		}
		return Placement{}, failure(appt.ID, label, code)
	}

	return Placement{RowIndex: idx, RowSpan: appt.EventDuration / StepMinutes}, nil
}
