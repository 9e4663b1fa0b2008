package model

import "time"

type AppointmentStatus string

const (
	StatusActive    AppointmentStatus = "active"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Appointment reserves one slot of a provider for a requester. It is never deleted;
// cancellation only sets CancelledAt.
type Appointment struct {
	ID          string
	ProviderID  string
	RequesterID string
	ScheduledAt time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time
}

func (a Appointment) Status() AppointmentStatus {
	if a.CancelledAt != nil {
		return StatusCancelled
	}
	return StatusActive
}

func (a Appointment) Active() bool {
	return a.CancelledAt == nil
}

// Slot is a computed grid point; it is never persisted.
type Slot struct {
	Time      time.Time
	Available bool
}

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

const DefaultPageSize = 20

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > 100 {
		p.Size = 100
	}
	return p
}

func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Number - 1) * p.Size
}
