// Package memory is an in-process implementation of the storage contracts, used by tests and by
// single-instance development runs (store.driver=memory).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

type slotKey struct {
	provider string
	at       int64
}

// Appointments keeps an index of active (provider, time) pairs, the in-memory equivalent of the
// partial unique index used in Postgres.
type Appointments struct {
	mu     sync.RWMutex
	now    func() time.Time
	rows   map[string]model.Appointment
	active map[slotKey]string
}

var _ storage.AppointmentStore = (*Appointments)(nil)

// NewAppointments stamps created_at with now (time.Now when nil).
func NewAppointments(now func() time.Time) *Appointments {
	if now == nil {
		now = time.Now
	}
	return &Appointments{
		now:    now,
		rows:   map[string]model.Appointment{},
		active: map[slotKey]string{},
	}
}

func (s *Appointments) InsertIfAbsent(_ context.Context, a storage.NewAppointment) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := slotKey{provider: a.ProviderID, at: a.ScheduledAt.UnixNano()}
	if _, taken := s.active[key]; taken {
		return model.Appointment{}, storage.ErrConflict
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	appt := model.Appointment{
		ID:          a.ID,
		ProviderID:  a.ProviderID,
		RequesterID: a.RequesterID,
		ScheduledAt: a.ScheduledAt,
		CreatedAt:   s.now(),
	}
	s.rows[appt.ID] = appt
	s.active[key] = appt.ID
	return appt, nil
}

func (s *Appointments) Get(_ context.Context, id string) (model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	appt, ok := s.rows[id]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	return appt, nil
}

func (s *Appointments) SetCancelled(_ context.Context, id string, at time.Time) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.rows[id]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	if !appt.Active() {
		return model.Appointment{}, storage.ErrAlreadyCancelled
	}
	appt.CancelledAt = &at
	s.rows[id] = appt
	delete(s.active, slotKey{provider: appt.ProviderID, at: appt.ScheduledAt.UnixNano()})
	return appt, nil
}

func (s *Appointments) ListByProvider(_ context.Context, providerID string, q storage.ListQuery) ([]model.Appointment, error) {
	out := s.filter(func(a model.Appointment) bool { return a.ProviderID == providerID }, q)
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return paginate(out, q.Offset, q.Limit), nil
}

func (s *Appointments) ListByRequester(_ context.Context, requesterID string, q storage.ListQuery) ([]model.Appointment, error) {
	out := s.filter(func(a model.Appointment) bool { return a.RequesterID == requesterID }, q)
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, q.Offset, q.Limit), nil
}

func (s *Appointments) filter(match func(model.Appointment) bool, q storage.ListQuery) []model.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Appointment
	for _, a := range s.rows {
		if !match(a) {
			continue
		}
		if !q.IncludeCancelled && !a.Active() {
			continue
		}
		if !q.From.IsZero() && a.ScheduledAt.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && !a.ScheduledAt.Before(q.To) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
