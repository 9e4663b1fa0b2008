package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

type Notifications struct {
	mu     sync.Mutex
	now    func() time.Time
	rows   []model.Notification
	dedupe map[string]int
}

var _ storage.NotificationStore = (*Notifications)(nil)

func NewNotifications(now func() time.Time) *Notifications {
	if now == nil {
		now = time.Now
	}
	return &Notifications{now: now, dedupe: map[string]int{}}
}

func (s *Notifications) Insert(_ context.Context, n model.Notification) (model.Notification, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.DedupeKey != "" {
		if idx, ok := s.dedupe[n.DedupeKey]; ok {
			return s.rows[idx], false, nil
		}
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.Read = false
	n.CreatedAt = s.now()
	s.rows = append(s.rows, n)
	if n.DedupeKey != "" {
		s.dedupe[n.DedupeKey] = len(s.rows) - 1
	}
	return n, true, nil
}

// ListByProvider walks rows backwards: rows are appended in creation order.
func (s *Notifications) ListByProvider(_ context.Context, providerID string, p model.Page) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Notification
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].ProviderID == providerID {
			out = append(out, s.rows[i])
		}
	}
	p = p.Normalize()
	return paginate(out, p.Offset(), p.Size), nil
}

func (s *Notifications) SetRead(_ context.Context, providerID, id string) (model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id && s.rows[i].ProviderID == providerID {
			s.rows[i].Read = true
			return s.rows[i], nil
		}
	}
	return model.Notification{}, storage.ErrNotFound
}
