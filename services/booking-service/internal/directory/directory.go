// Package directory answers who a user is (exists, provider flag, display name) on top of the
// user store, caching hits in an expiring LRU.
package directory

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

type Directory struct {
	users storage.UserStore
	cache *expirable.LRU[string, model.User]
}

// New caches up to size users for ttl. Misses are never cached so newly created users are
// visible immediately.
func New(users storage.UserStore, size int, ttl time.Duration) *Directory {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Directory{
		users: users,
		cache: expirable.NewLRU[string, model.User](size, nil, ttl),
	}
}

// Lookup returns the user and whether it exists.
func (d *Directory) Lookup(ctx context.Context, id string) (model.User, bool, error) {
	if u, ok := d.cache.Get(id); ok {
		return u, true, nil
	}
	u, err := d.users.GetUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, err
	}
	d.cache.Add(id, u)
	return u, true, nil
}

func (d *Directory) Exists(ctx context.Context, id string) (bool, error) {
	_, ok, err := d.Lookup(ctx, id)
	return ok, err
}

func (d *Directory) IsProvider(ctx context.Context, id string) (bool, error) {
	u, ok, err := d.Lookup(ctx, id)
	return ok && u.Provider, err
}

// DisplayName falls back to the id for unknown users.
func (d *Directory) DisplayName(ctx context.Context, id string) (string, error) {
	u, ok, err := d.Lookup(ctx, id)
	if err != nil {
		return "", err
	}
	if !ok || u.Name == "" {
		return id, nil
	}
	return u.Name, nil
}
