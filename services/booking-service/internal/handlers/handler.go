// Package handlers exposes the booking core over JSON/HTTP.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/scheduler"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

// Directory is the user lookup the handlers need beyond the scheduler.
type Directory interface {
	IsProvider(ctx context.Context, id string) (bool, error)
}

type Deps struct {
	Scheduler  *scheduler.Scheduler
	Calculator *availability.Calculator
	Dispatcher *notify.Dispatcher
	Users      storage.UserStore
	Directory  Directory
	Issuer     *auth.Issuer
	Calendar   *calendar.Calendar
	PageSize   int
	Logger     *slog.Logger
}

type Handler struct {
	sched    *scheduler.Scheduler
	calc     *availability.Calculator
	notifier *notify.Dispatcher
	users    storage.UserStore
	dir      Directory
	issuer   *auth.Issuer
	cal      *calendar.Calendar
	pageSize int
	logger   *slog.Logger
}

func New(d Deps) *Handler {
	return &Handler{
		sched:    d.Scheduler,
		calc:     d.Calculator,
		notifier: d.Dispatcher,
		users:    d.Users,
		dir:      d.Directory,
		issuer:   d.Issuer,
		cal:      d.Calendar,
		pageSize: d.PageSize,
		logger:   d.Logger.With("component", "http"),
	}
}

// Register mounts the API routes on mux. Everything except sign-up and session creation requires
// a bearer token.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /users", h.CreateUser)
	mux.HandleFunc("POST /sessions", h.CreateSession)

	mux.Handle("GET /providers", h.requireAuth(h.ListProviders))
	mux.Handle("GET /providers/{id}/available", h.requireAuth(h.Available))

	mux.Handle("POST /appointments", h.requireAuth(h.Book))
	mux.Handle("GET /appointments", h.requireAuth(h.ListAppointments))
	mux.Handle("DELETE /appointments/{id}", h.requireAuth(h.Cancel))

	mux.Handle("GET /schedule", h.requireAuth(h.Schedule))

	mux.Handle("GET /notifications", h.requireAuth(h.ListNotifications))
	mux.Handle("PUT /notifications/{id}", h.requireAuth(h.MarkRead))
}

func (h *Handler) page(r *http.Request) (model.Page, bool) {
	p := model.Page{Number: 1, Size: h.pageSize}
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, false
		}
		p.Number = n
	}
	return p.Normalize(), true
}

func badRequest(w http.ResponseWriter, msg string) {
	httpx.WriteError(w, http.StatusBadRequest, "validation", msg)
}
