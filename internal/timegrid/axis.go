// Package timegrid lays appointments onto a fixed 15-minute calendar axis.
package timegrid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bookfront/internal/models"
)

const StepMinutes = models.SlotStepMinutes

var ErrInvalidAxis = errors.New("invalid axis")

// AxisConfig bounds the calendar day as "HH:MM". End is exclusive and may be
// "24:00".
type AxisConfig struct {
	Start string
	End   string
}

// Axis is the ordered list of row labels. It is built once per view and only
// used for geometry.
type Axis struct {
	labels []string
	index  map[string]int
	start  int
	end    int
}

func BuildAxis(cfg AxisConfig) (*Axis, error) {
	start, err := ParseClock(cfg.Start)
	if err != nil {
		return nil, fmt.Errorf("%w: start: %v", ErrInvalidAxis, err)
	}
	end, err := ParseClock(cfg.End)
	if err != nil {
		return nil, fmt.Errorf("%w: end: %v", ErrInvalidAxis, err)
	}
	if end <= start {
		return nil, fmt.Errorf("%w: end %s is not after start %s", ErrInvalidAxis, cfg.End, cfg.Start)
	}
	if start%StepMinutes != 0 || end%StepMinutes != 0 {
		return nil, fmt.Errorf("%w: bounds %s-%s are not on the %d-minute grid", ErrInvalidAxis, cfg.Start, cfg.End, StepMinutes)
	}

	a := &Axis{index: make(map[string]int), start: start, end: end}
	for m := start; m < end; m += StepMinutes {
		label := FormatClock(m)
		a.index[label] = len(a.labels)
		a.labels = append(a.labels, label)
	}
	return a, nil
}

func (a *Axis) Len() int { return len(a.labels) }

func (a *Axis) Labels() []string {
	out := make([]string, len(a.labels))
	copy(out, a.labels)
	return out
}

func (a *Axis) Label(i int) string {
	if i < 0 || i >= len(a.labels) {
		return ""
	}
	return a.labels[i]
}

// IndexOf is an exact label lookup.
func (a *Axis) IndexOf(label string) (int, bool) {
	i, ok := a.index[label]
	return i, ok
}

// Covers reports whether a minute-of-day falls inside the axis range.
func (a *Axis) Covers(minute int) bool {
	return minute >= a.start && minute < a.end
}

// ParseClock converts "HH:MM" into minutes since midnight. "24:00" is allowed.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time out of range: %q", s)
	}
	return h*60 + m, nil
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
