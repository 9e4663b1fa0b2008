// Package calendar holds the business-time rules: the configured timezone, the daily slot grid
// and the cancellation lead time. All values are fixed at startup.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// Hours describes the daily grid: slots start at StartHour and step by SlotDuration while a
// whole slot still fits before EndHour.
type Hours struct {
	StartHour    int
	EndHour      int
	SlotDuration time.Duration
}

func (h Hours) Validate() error {
	if h.StartHour < 0 || h.EndHour > 24 || h.StartHour >= h.EndHour {
		return fmt.Errorf("business hours must satisfy 0 <= start < end <= 24 (got %d-%d)", h.StartHour, h.EndHour)
	}
	if h.SlotDuration <= 0 {
		return errors.New("slot duration must be positive")
	}
	span := time.Duration(h.EndHour-h.StartHour) * time.Hour
	if span%h.SlotDuration != 0 {
		return fmt.Errorf("slot duration %s does not divide business day of %s", h.SlotDuration, span)
	}
	return nil
}

// SlotsPerDay is the size of the grid.
func (h Hours) SlotsPerDay() int {
	return int(time.Duration(h.EndHour-h.StartHour) * time.Hour / h.SlotDuration)
}

type Options struct {
	Location             *time.Location
	Hours                Hours
	CancellationLeadTime time.Duration
	Clock                Clock
}

type Calendar struct {
	loc      *time.Location
	hours    Hours
	leadTime time.Duration
	clock    Clock
}

func New(opts Options) (*Calendar, error) {
	if err := opts.Hours.Validate(); err != nil {
		return nil, err
	}
	if opts.CancellationLeadTime < 0 {
		return nil, errors.New("cancellation lead time must not be negative")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	return &Calendar{
		loc:      opts.Location,
		hours:    opts.Hours,
		leadTime: opts.CancellationLeadTime,
		clock:    opts.Clock,
	}, nil
}

// Now is the current instant in the business timezone.
func (c *Calendar) Now() time.Time {
	return c.clock.Now().In(c.loc)
}

func (c *Calendar) Location() *time.Location { return c.loc }

func (c *Calendar) BusinessHours() Hours { return c.hours }

func (c *Calendar) CancellationLeadTime() time.Duration { return c.leadTime }

// ParseDate parses YYYY-MM-DD as midnight in the business timezone.
func (c *Calendar) ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return d, nil
}

// Day truncates t to midnight of its calendar day in the business timezone.
func (c *Calendar) Day(t time.Time) time.Time {
	y, m, d := t.In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

// DayBounds returns [midnight, next midnight) of the day containing t.
func (c *Calendar) DayBounds(t time.Time) (time.Time, time.Time) {
	start := c.Day(t)
	y, m, d := start.Date()
	return start, time.Date(y, m, d+1, 0, 0, 0, 0, c.loc)
}

// Grid returns the ordered slot start times of the day containing day.
func (c *Calendar) Grid(day time.Time) []time.Time {
	y, m, d := day.In(c.loc).Date()
	start := time.Date(y, m, d, c.hours.StartHour, 0, 0, 0, c.loc)
	end := time.Date(y, m, d, c.hours.EndHour, 0, 0, 0, c.loc)

	slots := make([]time.Time, 0, c.hours.SlotsPerDay())
	for t := start; !t.Add(c.hours.SlotDuration).After(end); t = t.Add(c.hours.SlotDuration) {
		slots = append(slots, t)
	}
	return slots
}

// OnGrid reports whether t is exactly one of the slot start times of its day.
func (c *Calendar) OnGrid(t time.Time) bool {
	for _, slot := range c.Grid(t) {
		if slot.Equal(t) {
			return true
		}
	}
	return false
}
