package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/segmentio/kafka-go"
)

type Names interface {
	DisplayName(ctx context.Context, id string) (string, error)
}

type Notifier interface {
	NotifyOnce(ctx context.Context, providerID, dedupeKey, content string) (model.Notification, bool, error)
}

// NotificationHandler records the provider notification for booked and cancelled events. The
// dedupe key is the one the request path uses, so an event already notified in-process is a no-op.
// Malformed messages are dropped rather than retried.
func NotificationHandler(names Names, notifier Notifier, loc *time.Location, logger *slog.Logger) Handler {
	if loc == nil {
		loc = time.UTC
	}
	return func(ctx context.Context, msg kafka.Message) error {
		var ev notify.Event
		switch msg.Topic {
		case outbox.TopicAppointmentBooked:
			ev = notify.EventBooked
		case outbox.TopicAppointmentCancelled:
			ev = notify.EventCancelled
		default:
			logger.Warn("unexpected topic", "topic", msg.Topic)
			return nil
		}

		p, err := outbox.DecodeAppointmentPayload(msg.Value)
		if err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if p.AppointmentID == "" || p.ProviderID == "" || p.RequesterID == "" || p.ScheduledAt.IsZero() {
			logger.Error("missing required event fields", "topic", msg.Topic)
			return nil
		}

		name, err := names.DisplayName(ctx, p.RequesterID)
		if err != nil {
			return err
		}
		content := notify.Content(ev, name, p.ScheduledAt.In(loc))
		_, created, err := notifier.NotifyOnce(ctx, p.ProviderID, notify.DedupeKey(p.AppointmentID, ev), content)
		if err != nil {
			return err
		}
		if created {
			logger.Info("notification recovered from event", "appointment_id", p.AppointmentID, "event", string(ev))
		}
		return nil
	}
}
