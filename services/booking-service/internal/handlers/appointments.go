package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/scheduler"
)

type bookRequest struct {
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"`
}

type appointmentItem struct {
	ID          string `json:"id"`
	ProviderID  string `json:"provider_id"`
	RequesterID string `json:"requester_id"`
	Date        string `json:"date"`
	Status      string `json:"status"`
	CancelledAt string `json:"cancelled_at,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toAppointmentItem(a model.Appointment) appointmentItem {
	item := appointmentItem{
		ID:          a.ID,
		ProviderID:  a.ProviderID,
		RequesterID: a.RequesterID,
		Date:        a.ScheduledAt.Format(time.RFC3339),
		Status:      string(a.Status()),
		CreatedAt:   a.CreatedAt.Format(time.RFC3339),
	}
	if a.CancelledAt != nil {
		item.CancelledAt = a.CancelledAt.Format(time.RFC3339)
	}
	return item
}

func toAppointmentItems(appts []model.Appointment) []appointmentItem {
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentItem(a))
	}
	return items
}

func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	if req.ProviderID == "" || strings.TrimSpace(req.Date) == "" {
		badRequest(w, "provider_id and date are required")
		return
	}
	at, err := time.Parse(time.RFC3339, strings.TrimSpace(req.Date))
	if err != nil {
		badRequest(w, "date must be an RFC3339 timestamp")
		return
	}

	appt, err := h.sched.Book(r.Context(), UserIDFromContext(r.Context()), req.ProviderID, at)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toAppointmentItem(appt))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	appt, err := h.sched.Cancel(r.Context(), UserIDFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentItem(appt))
}

// ListAppointments lists the caller's bookings. view=provider lists the appointments booked with
// the caller instead, which requires the caller to be a provider.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	page, ok := h.page(r)
	if !ok {
		badRequest(w, "page must be a positive integer")
		return
	}
	opts := scheduler.ListOptions{Page: page}
	if raw := r.URL.Query().Get("include_cancelled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, "include_cancelled must be a boolean")
			return
		}
		opts.IncludeCancelled = v
	}

	ctx := r.Context()
	userID := UserIDFromContext(ctx)
	var (
		appts []model.Appointment
		err   error
	)
	switch view := r.URL.Query().Get("view"); view {
	case "", "requester":
		appts, err = h.sched.ListForRequester(ctx, userID, opts)
	case "provider":
		if err = h.requireProvider(r); err == nil {
			appts, err = h.sched.ListForProvider(ctx, userID, opts)
		}
	default:
		badRequest(w, "view must be requester or provider")
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentItems(appts))
}

// Schedule returns the caller's active appointments on ?date=YYYY-MM-DD, defaulting to today.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	day := h.cal.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := h.cal.ParseDate(raw)
		if err != nil {
			badRequest(w, "date must be formatted as YYYY-MM-DD")
			return
		}
		day = d
	}
	appts, err := h.sched.DaySchedule(r.Context(), UserIDFromContext(r.Context()), day)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentItems(appts))
}

func (h *Handler) requireProvider(r *http.Request) error {
	ok, err := h.dir.IsProvider(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		return apperr.Storage("lookup user", err)
	}
	if !ok {
		return apperr.Forbidden("only providers can access this resource")
	}
	return nil
}
