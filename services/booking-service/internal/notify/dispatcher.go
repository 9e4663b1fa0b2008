// Package notify records provider notifications and exposes their read state.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

type Dispatcher struct {
	store  storage.NotificationStore
	logger *slog.Logger
}

func NewDispatcher(store storage.NotificationStore, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{store: store, logger: logger.With("component", "notify")}
}

// Notify records an unread notification for the provider.
func (d *Dispatcher) Notify(ctx context.Context, providerID, content string) (model.Notification, error) {
	n, _, err := d.NotifyOnce(ctx, providerID, "", content)
	return n, err
}

// NotifyOnce is Notify keyed by dedupeKey: repeated calls with the same key return the first
// notification and created=false. An empty key disables deduplication.
func (d *Dispatcher) NotifyOnce(ctx context.Context, providerID, dedupeKey, content string) (model.Notification, bool, error) {
	if strings.TrimSpace(providerID) == "" {
		return model.Notification{}, false, apperr.Validation("provider is required")
	}
	n, created, err := d.store.Insert(ctx, model.Notification{
		ProviderID: providerID,
		Content:    content,
		DedupeKey:  dedupeKey,
	})
	if err != nil {
		return model.Notification{}, false, apperr.Storage("insert notification", err)
	}
	if created {
		d.logger.Debug("notification recorded", "notification_id", n.ID, "provider_id", providerID)
	}
	return n, created, nil
}

// ListForProvider returns the provider's notifications, newest first.
func (d *Dispatcher) ListForProvider(ctx context.Context, providerID string, page model.Page) ([]model.Notification, error) {
	items, err := d.store.ListByProvider(ctx, providerID, page.Normalize())
	if err != nil {
		return nil, apperr.Storage("list notifications", err)
	}
	return items, nil
}

// MarkRead is idempotent; marking an already read notification succeeds.
func (d *Dispatcher) MarkRead(ctx context.Context, providerID, id string) (model.Notification, error) {
	n, err := d.store.SetRead(ctx, providerID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Notification{}, apperr.NotFound("notification")
	}
	if err != nil {
		return model.Notification{}, apperr.Storage("mark notification read", err)
	}
	return n, nil
}
