package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

const appointmentColumns = `id::text, provider_id::text, requester_id::text, scheduled_at, cancelled_at, created_at`

// AppointmentRepository relies on the appointments_provider_slot_active partial unique index for
// slot exclusivity. When an outbox is configured, booking and cancellation events are written in
// the same transaction as the row change.
type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
	now    func() time.Time
}

var _ storage.AppointmentStore = (*AppointmentRepository)(nil)

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: outboxRepo, now: time.Now}
}

func (r *AppointmentRepository) InsertIfAbsent(ctx context.Context, a storage.NewAppointment) (model.Appointment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	var appt model.Appointment
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		appt, err = scanAppointment(tx.QueryRow(ctx, `
			INSERT INTO appointments (id, provider_id, requester_id, scheduled_at)
			VALUES ($1, $2, $3, $4)
			RETURNING `+appointmentColumns,
			a.ID, a.ProviderID, a.RequesterID, a.ScheduledAt))
		if err != nil {
			return err
		}
		return r.appendEvent(ctx, tx, outbox.TopicAppointmentBooked, appt)
	})
	if isUniqueViolation(err, activeSlotConstraint) {
		return model.Appointment{}, storage.ErrConflict
	}
	if err != nil {
		return model.Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}
	return appt, nil
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if isMissing(err) {
		return model.Appointment{}, storage.ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

func (r *AppointmentRepository) SetCancelled(ctx context.Context, id string, at time.Time) (model.Appointment, error) {
	var appt model.Appointment
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		appt, err = scanAppointment(tx.QueryRow(ctx, `
			UPDATE appointments
			SET cancelled_at = $2
			WHERE id = $1 AND cancelled_at IS NULL
			RETURNING `+appointmentColumns,
			id, at))
		if errors.Is(err, pgx.ErrNoRows) {
			return r.explainNoUpdate(ctx, tx, id)
		}
		if isMissing(err) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return r.appendEvent(ctx, tx, outbox.TopicAppointmentCancelled, appt)
	})
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrAlreadyCancelled) {
		return model.Appointment{}, err
	}
	if err != nil {
		return model.Appointment{}, fmt.Errorf("cancel appointment: %w", err)
	}
	return appt, nil
}

// explainNoUpdate distinguishes a missing row from one that was already cancelled.
func (r *AppointmentRepository) explainNoUpdate(ctx context.Context, tx pgx.Tx, id string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrAlreadyCancelled
}

func (r *AppointmentRepository) ListByProvider(ctx context.Context, providerID string, q storage.ListQuery) ([]model.Appointment, error) {
	return r.list(ctx, `provider_id = $1`, `scheduled_at ASC, created_at ASC`, providerID, q)
}

func (r *AppointmentRepository) ListByRequester(ctx context.Context, requesterID string, q storage.ListQuery) ([]model.Appointment, error) {
	return r.list(ctx, `requester_id = $1`, `created_at DESC, id DESC`, requesterID, q)
}

// list runs a filtered listing. where and orderBy are fixed fragments, never user input.
func (r *AppointmentRepository) list(ctx context.Context, where, orderBy, ownerID string, q storage.ListQuery) ([]model.Appointment, error) {
	var from, to *time.Time
	if !q.From.IsZero() {
		from = &q.From
	}
	if !q.To.IsZero() {
		to = &q.To
	}
	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE `+where+`
			AND ($2 OR cancelled_at IS NULL)
			AND ($3::timestamptz IS NULL OR scheduled_at >= $3)
			AND ($4::timestamptz IS NULL OR scheduled_at < $4)
		ORDER BY `+orderBy+`
		LIMIT $5 OFFSET $6
	`, ownerID, q.IncludeCancelled, from, to, limit, q.Offset)
	if err != nil {
		if isMissing(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	appts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
	if err != nil {
		if isMissing(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

func (r *AppointmentRepository) appendEvent(ctx context.Context, tx pgx.Tx, eventType string, appt model.Appointment) error {
	if r.outbox == nil {
		return nil
	}
	evt, err := outbox.NewAppointmentEvent(uuid.NewString(), eventType, outbox.AppointmentPayload{
		AppointmentID: appt.ID,
		ProviderID:    appt.ProviderID,
		RequesterID:   appt.RequesterID,
		ScheduledAt:   appt.ScheduledAt,
		CancelledAt:   appt.CancelledAt,
		OccurredAt:    r.now().UTC(),
	})
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, evt)
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.ProviderID,
		&appt.RequesterID,
		&appt.ScheduledAt,
		&cancelledAt,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.CancelledAt = cancelledAt
	return appt, nil
}
