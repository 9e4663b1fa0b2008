// Package availability computes which grid slots of a provider's day can still be booked.
package availability

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

// AppointmentLister is the read side of the appointment store the calculator needs.
type AppointmentLister interface {
	ListByProvider(ctx context.Context, providerID string, q storage.ListQuery) ([]model.Appointment, error)
}

type Calculator struct {
	cal   *calendar.Calendar
	appts AppointmentLister
}

func NewCalculator(cal *calendar.Calendar, appts AppointmentLister) *Calculator {
	return &Calculator{cal: cal, appts: appts}
}

// AvailableSlots returns the full grid for date, ascending. Past dates yield an all-unavailable grid.
// Results are computed on every call.
func (c *Calculator) AvailableSlots(ctx context.Context, providerID string, date time.Time) ([]model.Slot, error) {
	from, to := c.cal.DayBounds(date)
	booked, err := c.appts.ListByProvider(ctx, providerID, storage.ListQuery{From: from, To: to})
	if err != nil {
		return nil, apperr.Storage("list provider appointments", err)
	}

	duration := c.cal.BusinessHours().SlotDuration
	busy := make([]Interval, 0, len(booked))
	for _, a := range booked {
		if !a.Active() {
			continue
		}
		busy = append(busy, Interval{Start: a.ScheduledAt, End: a.ScheduledAt.Add(duration)})
	}
	return MarkSlots(c.cal.Grid(from), duration, busy, c.cal.Now()), nil
}

// AvailableSlotsOn parses a YYYY-MM-DD date before computing availability.
func (c *Calculator) AvailableSlotsOn(ctx context.Context, providerID, date string) ([]model.Slot, error) {
	day, err := c.cal.ParseDate(date)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	return c.AvailableSlots(ctx, providerID, day)
}
