package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

type Users struct {
	mu   sync.RWMutex
	rows map[string]model.User
}

var _ storage.UserStore = (*Users)(nil)

func NewUsers(users ...model.User) *Users {
	s := &Users{rows: map[string]model.User{}}
	for _, u := range users {
		s.rows[u.ID] = u
	}
	return s
}

func (s *Users) CreateUser(_ context.Context, u model.User) (model.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rows {
		if strings.EqualFold(existing.Email, u.Email) {
			return model.User{}, storage.ErrEmailTaken
		}
	}
	s.rows[u.ID] = u
	return u, nil
}

func (s *Users) GetUser(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.rows[id]
	if !ok {
		return model.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Users) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.rows {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return model.User{}, storage.ErrNotFound
}

func (s *Users) ListProviders(_ context.Context, p model.Page) ([]model.User, error) {
	s.mu.RLock()
	var out []model.User
	for _, u := range s.rows {
		if u.Provider {
			out = append(out, u)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	p = p.Normalize()
	return paginate(out, p.Offset(), p.Size), nil
}
