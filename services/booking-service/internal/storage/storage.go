// Package storage declares the persistence contracts of the booking core. Implementations live in
// the postgres and memory subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

var (
	// ErrConflict means an active appointment already holds the (provider, scheduled_at) pair.
	ErrConflict         = errors.New("storage: slot already booked")
	ErrNotFound         = errors.New("storage: not found")
	ErrAlreadyCancelled = errors.New("storage: already cancelled")
	ErrEmailTaken       = errors.New("storage: email already registered")
)

// NewAppointment is the insert payload; the store assigns CreatedAt.
type NewAppointment struct {
	ID          string
	ProviderID  string
	RequesterID string
	ScheduledAt time.Time
}

// ListQuery filters appointment listings. Zero From/To are unbounded; Limit 0 means no limit.
type ListQuery struct {
	From             time.Time
	To               time.Time
	IncludeCancelled bool
	Limit            int
	Offset           int
}

func QueryForPage(p model.Page, includeCancelled bool) ListQuery {
	p = p.Normalize()
	return ListQuery{IncludeCancelled: includeCancelled, Limit: p.Size, Offset: p.Offset()}
}

type AppointmentStore interface {
	// InsertIfAbsent atomically inserts an active appointment unless one already exists for the same
	// provider and time, in which case it returns ErrConflict.
	InsertIfAbsent(ctx context.Context, a NewAppointment) (model.Appointment, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	// SetCancelled cancels an active appointment. It returns ErrAlreadyCancelled when the row was
	// cancelled concurrently and ErrNotFound when it does not exist.
	SetCancelled(ctx context.Context, id string, at time.Time) (model.Appointment, error)
	// ListByProvider orders by scheduled_at ascending.
	ListByProvider(ctx context.Context, providerID string, q ListQuery) ([]model.Appointment, error)
	// ListByRequester orders by created_at descending.
	ListByRequester(ctx context.Context, requesterID string, q ListQuery) ([]model.Appointment, error)
}

type NotificationStore interface {
	// Insert stores n. When n.DedupeKey is set and already present, the existing row is returned
	// with created=false.
	Insert(ctx context.Context, n model.Notification) (stored model.Notification, created bool, err error)
	// ListByProvider orders newest first.
	ListByProvider(ctx context.Context, providerID string, p model.Page) ([]model.Notification, error)
	// SetRead marks the provider's notification read. Returns ErrNotFound for unknown ids and for
	// notifications addressed to another provider.
	SetRead(ctx context.Context, providerID, id string) (model.Notification, error)
}

type UserStore interface {
	// CreateUser stores a new user. Emails are unique regardless of case; a taken email returns
	// ErrEmailTaken.
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	GetUser(ctx context.Context, id string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	ListProviders(ctx context.Context, p model.Page) ([]model.User, error)
}
