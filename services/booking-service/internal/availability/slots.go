package availability

import (
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// MarkSlots flags each grid point: a slot is available when it starts strictly after now and the
// half-open interval [slot, slot+duration) overlaps none of the busy intervals.
// Output order follows grid order.
func MarkSlots(grid []time.Time, duration time.Duration, busy []Interval, now time.Time) []model.Slot {
	slots := make([]model.Slot, 0, len(grid))
	for _, t := range grid {
		slots = append(slots, model.Slot{
			Time:      t,
			Available: t.After(now) && !overlapsAny(t, t.Add(duration), busy),
		})
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
