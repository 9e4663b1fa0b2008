// Package scheduler books and cancels appointments. Business rules are checked here; slot
// exclusivity is left to the store's atomic insert so it holds across service instances.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Directory interface {
	Exists(ctx context.Context, id string) (bool, error)
	IsProvider(ctx context.Context, id string) (bool, error)
	DisplayName(ctx context.Context, id string) (string, error)
}

type Notifier interface {
	NotifyOnce(ctx context.Context, providerID, dedupeKey, content string) (model.Notification, bool, error)
}

type ListOptions struct {
	Page             model.Page
	IncludeCancelled bool
}

type Scheduler struct {
	cal      *calendar.Calendar
	store    storage.AppointmentStore
	dir      Directory
	notifier Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
}

func New(cal *calendar.Calendar, store storage.AppointmentStore, dir Directory, notifier Notifier, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cal:      cal,
		store:    store,
		dir:      dir,
		notifier: notifier,
		logger:   logger.With("component", "scheduler"),
		tracer:   otelx.Tracer("booking-service/scheduler"),
	}
}

// Book reserves scheduledAt with providerID for requesterID. The notification to the provider is
// best effort: its failure is logged and the booking still succeeds.
func (s *Scheduler) Book(ctx context.Context, requesterID, providerID string, scheduledAt time.Time) (appt model.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.Book", trace.WithAttributes(
		attribute.String("booking.provider_id", providerID),
		attribute.String("booking.requester_id", requesterID),
	))
	defer func() { otelx.EndSpan(span, err) }()

	requesterID = strings.TrimSpace(requesterID)
	providerID = strings.TrimSpace(providerID)
	if requesterID == "" || providerID == "" {
		return model.Appointment{}, apperr.Validation("provider_id is required")
	}
	if requesterID == providerID {
		return model.Appointment{}, apperr.Validation("you cannot book an appointment with yourself")
	}
	if err := s.checkProvider(ctx, providerID); err != nil {
		return model.Appointment{}, err
	}

	at := scheduledAt.In(s.cal.Location())
	if !at.After(s.cal.Now()) {
		return model.Appointment{}, apperr.PastDate()
	}
	if !s.cal.OnGrid(at) {
		hours := s.cal.BusinessHours()
		return model.Appointment{}, apperr.InvalidSlot("%s is not a bookable slot (%02d:00-%02d:00 every %s)",
			at.Format(time.RFC3339), hours.StartHour, hours.EndHour, hours.SlotDuration)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return model.Appointment{}, apperr.Storage("generate appointment id", err)
	}
	appt, err = s.store.InsertIfAbsent(ctx, storage.NewAppointment{
		ID:          id.String(),
		ProviderID:  providerID,
		RequesterID: requesterID,
		ScheduledAt: at,
	})
	if errors.Is(err, storage.ErrConflict) {
		return model.Appointment{}, apperr.SlotTaken()
	}
	if err != nil {
		return model.Appointment{}, apperr.Storage("insert appointment", err)
	}
	appt = s.localize(appt)
	span.SetAttributes(attribute.String("booking.appointment_id", appt.ID))
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"provider_id", providerID,
		"requester_id", requesterID,
		"scheduled_at", appt.ScheduledAt.Format(time.RFC3339),
	)

	s.emit(ctx, appt, notify.EventBooked)
	return appt, nil
}

// Cancel soft-cancels an appointment owned by requesterID. The slot becomes bookable again.
func (s *Scheduler) Cancel(ctx context.Context, requesterID, appointmentID string) (appt model.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.Cancel", trace.WithAttributes(
		attribute.String("booking.appointment_id", appointmentID),
		attribute.String("booking.requester_id", requesterID),
	))
	defer func() { otelx.EndSpan(span, err) }()

	appt, err = s.store.Get(ctx, appointmentID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Appointment{}, apperr.NotFound("appointment")
	}
	if err != nil {
		return model.Appointment{}, apperr.Storage("load appointment", err)
	}
	if appt.RequesterID != requesterID {
		return model.Appointment{}, apperr.Forbidden("you don't have permission to cancel this appointment")
	}
	if !appt.Active() {
		return model.Appointment{}, apperr.AlreadyCancelled()
	}

	now := s.cal.Now()
	lead := s.cal.CancellationLeadTime()
	if appt.ScheduledAt.Sub(now) < lead {
		return model.Appointment{}, apperr.CancellationWindow(lead)
	}

	appt, err = s.store.SetCancelled(ctx, appointmentID, now)
	switch {
	case errors.Is(err, storage.ErrAlreadyCancelled):
		return model.Appointment{}, apperr.AlreadyCancelled()
	case errors.Is(err, storage.ErrNotFound):
		return model.Appointment{}, apperr.NotFound("appointment")
	case err != nil:
		return model.Appointment{}, apperr.Storage("cancel appointment", err)
	}
	appt = s.localize(appt)
	s.logger.Info("appointment cancelled",
		"appointment_id", appt.ID,
		"provider_id", appt.ProviderID,
		"requester_id", requesterID,
	)

	s.emit(ctx, appt, notify.EventCancelled)
	return appt, nil
}

// ListForRequester returns the requester's appointments, most recently created first.
func (s *Scheduler) ListForRequester(ctx context.Context, requesterID string, opts ListOptions) ([]model.Appointment, error) {
	items, err := s.store.ListByRequester(ctx, requesterID, storage.QueryForPage(opts.Page, opts.IncludeCancelled))
	if err != nil {
		return nil, apperr.Storage("list requester appointments", err)
	}
	return s.localizeAll(items), nil
}

// ListForProvider returns the provider's appointments, next appointment first.
func (s *Scheduler) ListForProvider(ctx context.Context, providerID string, opts ListOptions) ([]model.Appointment, error) {
	items, err := s.store.ListByProvider(ctx, providerID, storage.QueryForPage(opts.Page, opts.IncludeCancelled))
	if err != nil {
		return nil, apperr.Storage("list provider appointments", err)
	}
	return s.localizeAll(items), nil
}

// DaySchedule lists a provider's active appointments on one day. Only providers have a schedule.
func (s *Scheduler) DaySchedule(ctx context.Context, providerID string, day time.Time) ([]model.Appointment, error) {
	ok, err := s.dir.IsProvider(ctx, providerID)
	if err != nil {
		return nil, apperr.Storage("lookup provider", err)
	}
	if !ok {
		return nil, apperr.Forbidden("user is not a provider")
	}
	from, to := s.cal.DayBounds(day)
	items, err := s.store.ListByProvider(ctx, providerID, storage.ListQuery{From: from, To: to})
	if err != nil {
		return nil, apperr.Storage("list provider schedule", err)
	}
	return s.localizeAll(items), nil
}

func (s *Scheduler) checkProvider(ctx context.Context, providerID string) error {
	exists, err := s.dir.Exists(ctx, providerID)
	if err != nil {
		return apperr.Storage("lookup provider", err)
	}
	if !exists {
		return apperr.Validation("provider %s does not exist", providerID)
	}
	isProvider, err := s.dir.IsProvider(ctx, providerID)
	if err != nil {
		return apperr.Storage("lookup provider", err)
	}
	if !isProvider {
		return apperr.Validation("you can only create appointments with providers")
	}
	return nil
}

// emit records the provider notification for ev. It outlives request cancellation since the
// appointment change is already committed.
func (s *Scheduler) emit(ctx context.Context, appt model.Appointment, ev notify.Event) {
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With("appointment_id", appt.ID, "provider_id", appt.ProviderID, "event", string(ev))

	name, err := s.dir.DisplayName(ctx, appt.RequesterID)
	if err != nil {
		log.Warn("requester lookup failed; using id in notification", "err", err)
		name = appt.RequesterID
	}
	content := notify.Content(ev, name, appt.ScheduledAt)
	if _, _, err := s.notifier.NotifyOnce(ctx, appt.ProviderID, notify.DedupeKey(appt.ID, ev), content); err != nil {
		log.Warn("provider notification failed", "err", err)
	}
}

func (s *Scheduler) localize(a model.Appointment) model.Appointment {
	loc := s.cal.Location()
	a.ScheduledAt = a.ScheduledAt.In(loc)
	a.CreatedAt = a.CreatedAt.In(loc)
	if a.CancelledAt != nil {
		t := a.CancelledAt.In(loc)
		a.CancelledAt = &t
	}
	return a
}

func (s *Scheduler) localizeAll(items []model.Appointment) []model.Appointment {
	for i := range items {
		items[i] = s.localize(items[i])
	}
	return items
}
