package notify

import (
	"fmt"
	"time"
)

type Event string

const (
	EventBooked    Event = "booked"
	EventCancelled Event = "cancelled"
)

const whenLayout = "Monday, January 2 at 15:04"

// DedupeKey identifies the notification emitted for one appointment event.
func DedupeKey(appointmentID string, ev Event) string {
	return appointmentID + ":" + string(ev)
}

// Content renders the provider-facing text. at is shown in its own location.
func Content(ev Event, requesterName string, at time.Time) string {
	switch ev {
	case EventCancelled:
		return fmt.Sprintf("%s cancelled the appointment on %s", requesterName, at.Format(whenLayout))
	default:
		return fmt.Sprintf("New appointment with %s on %s", requesterName, at.Format(whenLayout))
	}
}
