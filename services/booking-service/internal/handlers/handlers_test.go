package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/directory"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/scheduler"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage/memory"
)

type testServer struct {
	t      *testing.T
	mux    *http.ServeMux
	issuer *auth.Issuer
	clock  *calendar.FixedClock
}

// Clock fixed at 2024-01-10 09:30 UTC, hours 08-18 hourly, 2h cancellation lead time.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := calendar.NewFixedClock(time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC))
	cal, err := calendar.New(calendar.Options{
		Location:             time.UTC,
		Hours:                calendar.Hours{StartHour: 8, EndHour: 18, SlotDuration: time.Hour},
		CancellationLeadTime: 2 * time.Hour,
		Clock:                clock,
	})
	if err != nil {
		t.Fatalf("calendar.New: %v", err)
	}
	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := memory.NewUsers(
		model.User{ID: "prov-1", Name: "Dr. Ada", Email: "ada@example.com", PasswordHash: hash, Provider: true},
		model.User{ID: "client-1", Name: "Jane Doe", Email: "jane@example.com", PasswordHash: hash},
		model.User{ID: "client-2", Name: "John Roe", Email: "john@example.com", PasswordHash: hash},
	)
	appts := memory.NewAppointments(clock.Now)
	dispatcher := notify.NewDispatcher(memory.NewNotifications(clock.Now), logger)
	dir := directory.New(users, 16, time.Minute)
	issuer, err := auth.NewIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	h := New(Deps{
		Scheduler:  scheduler.New(cal, appts, dir, dispatcher, logger),
		Calculator: availability.NewCalculator(cal, appts),
		Dispatcher: dispatcher,
		Users:      users,
		Directory:  dir,
		Issuer:     issuer,
		Calendar:   cal,
		PageSize:   20,
		Logger:     logger,
	})
	mux := http.NewServeMux()
	h.Register(mux)
	return &testServer{t: t, mux: mux, issuer: issuer, clock: clock}
}

func (s *testServer) do(method, path, userID string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if userID != "" {
		token, _, err := s.issuer.Issue(userID, "")
		if err != nil {
			s.t.Fatalf("Issue: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	if got := decode[errorResponse](t, rr).Error.Code; got != code {
		t.Fatalf("expected code %q, got %q", code, got)
	}
}

func TestRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	expectError(t, s.do(http.MethodGet, "/appointments", "", nil), http.StatusUnauthorized, "unauthorized")

	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	expectError(t, rr, http.StatusUnauthorized, "unauthorized")
}

func TestCreateSession(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodPost, "/sessions", "", map[string]string{"email": "jane@example.com", "password": "s3cret"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decode[sessionResponse](t, rr)
	claims, err := s.issuer.Verify(resp.Token)
	if err != nil || claims.UserID() != "client-1" || resp.User.Name != "Jane Doe" {
		t.Fatalf("unexpected session %+v (%v)", resp, err)
	}

	expectError(t, s.do(http.MethodPost, "/sessions", "", map[string]string{"email": "jane@example.com", "password": "nope"}),
		http.StatusUnauthorized, "unauthorized")
	expectError(t, s.do(http.MethodPost, "/sessions", "", map[string]string{"email": "ghost@example.com", "password": "s3cret"}),
		http.StatusUnauthorized, "unauthorized")
	expectError(t, s.do(http.MethodPost, "/sessions", "", map[string]string{"email": "jane@example.com"}),
		http.StatusBadRequest, "validation")
}

func TestCreateUser(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodPost, "/users", "", map[string]any{
		"name": "Dr. Grace", "email": "grace@example.com", "password": "hopper1", "provider": true,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	created := decode[userItem](t, rr)
	if created.ID == "" || !created.Provider || created.Email != "grace@example.com" {
		t.Fatalf("unexpected user %+v", created)
	}
	if strings.Contains(rr.Body.String(), "password") {
		t.Fatalf("response leaks password data: %s", rr.Body.String())
	}

	session := decode[sessionResponse](t, s.do(http.MethodPost, "/sessions", "",
		map[string]string{"email": "grace@example.com", "password": "hopper1"}))
	if session.User.ID != created.ID {
		t.Fatalf("new user cannot log in: %+v", session)
	}

	rr = s.do(http.MethodPost, "/appointments", "client-1", map[string]string{"provider_id": created.ID, "date": "2024-01-10T13:00:00Z"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("new provider should be bookable, got %d: %s", rr.Code, rr.Body.String())
	}

	cases := []struct {
		name string
		body map[string]any
	}{
		{"duplicate email", map[string]any{"name": "Jane Again", "email": "JANE@example.com", "password": "s3cret"}},
		{"missing name", map[string]any{"email": "x@example.com", "password": "s3cret"}},
		{"bad email", map[string]any{"name": "X", "email": "not-an-email", "password": "s3cret"}},
		{"short password", map[string]any{"name": "X", "email": "x@example.com", "password": "123"}},
		{"unknown field", map[string]any{"name": "X", "email": "x@example.com", "password": "s3cret", "admin": true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			expectError(t, s.do(http.MethodPost, "/users", "", tc.body), http.StatusBadRequest, "validation")
		})
	}
}

func TestAvailableSlots(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodGet, "/providers/prov-1/available?date=2024-01-10", "client-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	slots := decode[[]slotItem](t, rr)
	if len(slots) != 10 {
		t.Fatalf("expected 10 slots, got %d", len(slots))
	}
	if slots[0].Available || slots[1].Available || !slots[2].Available {
		t.Fatalf("unexpected availability: %+v", slots[:3])
	}
	if slots[2].Time != "2024-01-10T10:00:00Z" {
		t.Fatalf("unexpected slot time %q", slots[2].Time)
	}

	expectError(t, s.do(http.MethodGet, "/providers/prov-1/available?date=10/01/2024", "client-1", nil),
		http.StatusBadRequest, "validation")
	expectError(t, s.do(http.MethodGet, "/providers/prov-1/available", "client-1", nil),
		http.StatusBadRequest, "validation")
}

func TestBookFlow(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodPost, "/appointments", "client-1", map[string]string{"provider_id": "prov-1", "date": "2024-01-10T10:00:00Z"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	appt := decode[appointmentItem](t, rr)
	if appt.ProviderID != "prov-1" || appt.RequesterID != "client-1" || appt.Status != "active" {
		t.Fatalf("unexpected appointment %+v", appt)
	}

	cases := []struct {
		name   string
		user   string
		body   map[string]string
		status int
		code   string
	}{
		{"taken", "client-2", map[string]string{"provider_id": "prov-1", "date": "2024-01-10T10:00:00Z"}, http.StatusConflict, "slot_taken"},
		{"past", "client-1", map[string]string{"provider_id": "prov-1", "date": "2024-01-10T09:00:00Z"}, http.StatusUnprocessableEntity, "past_date"},
		{"off grid", "client-1", map[string]string{"provider_id": "prov-1", "date": "2024-01-10T11:30:00Z"}, http.StatusUnprocessableEntity, "invalid_slot"},
		{"self booking", "prov-1", map[string]string{"provider_id": "prov-1", "date": "2024-01-10T12:00:00Z"}, http.StatusBadRequest, "validation"},
		{"not a provider", "client-1", map[string]string{"provider_id": "client-2", "date": "2024-01-10T12:00:00Z"}, http.StatusBadRequest, "validation"},
		{"bad date", "client-1", map[string]string{"provider_id": "prov-1", "date": "tomorrow"}, http.StatusBadRequest, "validation"},
		{"missing provider", "client-1", map[string]string{"date": "2024-01-10T12:00:00Z"}, http.StatusBadRequest, "validation"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			expectError(t, s.do(http.MethodPost, "/appointments", tc.user, tc.body), tc.status, tc.code)
		})
	}

	slots := decode[[]slotItem](t, s.do(http.MethodGet, "/providers/prov-1/available?date=2024-01-10", "client-1", nil))
	if slots[2].Available {
		t.Fatal("booked slot should be unavailable")
	}

	notes := decode[[]notificationItem](t, s.do(http.MethodGet, "/notifications", "prov-1", nil))
	if len(notes) != 1 || !strings.Contains(notes[0].Content, "Jane Doe") || notes[0].Read {
		t.Fatalf("unexpected notifications %+v", notes)
	}
}

func TestCancelFlow(t *testing.T) {
	s := newTestServer(t)
	appt := decode[appointmentItem](t, s.do(http.MethodPost, "/appointments", "client-1",
		map[string]string{"provider_id": "prov-1", "date": "2024-01-10T14:00:00Z"}))
	soon := decode[appointmentItem](t, s.do(http.MethodPost, "/appointments", "client-1",
		map[string]string{"provider_id": "prov-1", "date": "2024-01-10T11:00:00Z"}))

	expectError(t, s.do(http.MethodDelete, "/appointments/missing", "client-1", nil), http.StatusNotFound, "not_found")
	expectError(t, s.do(http.MethodDelete, "/appointments/"+appt.ID, "client-2", nil), http.StatusForbidden, "forbidden")
	expectError(t, s.do(http.MethodDelete, "/appointments/"+soon.ID, "client-1", nil), http.StatusUnprocessableEntity, "cancellation_window")

	rr := s.do(http.MethodDelete, "/appointments/"+appt.ID, "client-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := decode[appointmentItem](t, rr); got.Status != "cancelled" || got.CancelledAt == "" {
		t.Fatalf("unexpected cancel response %+v", got)
	}
	expectError(t, s.do(http.MethodDelete, "/appointments/"+appt.ID, "client-1", nil), http.StatusConflict, "already_cancelled")

	active := decode[[]appointmentItem](t, s.do(http.MethodGet, "/appointments", "client-1", nil))
	if len(active) != 1 || active[0].ID != soon.ID {
		t.Fatalf("expected only the active appointment, got %+v", active)
	}
	all := decode[[]appointmentItem](t, s.do(http.MethodGet, "/appointments?include_cancelled=true", "client-1", nil))
	if len(all) != 2 {
		t.Fatalf("expected full history, got %+v", all)
	}
	expectError(t, s.do(http.MethodGet, "/appointments?page=0", "client-1", nil), http.StatusBadRequest, "validation")
}

func TestProviderViews(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodPost, "/appointments", "client-1", map[string]string{"provider_id": "prov-1", "date": "2024-01-10T15:00:00Z"})
	s.do(http.MethodPost, "/appointments", "client-2", map[string]string{"provider_id": "prov-1", "date": "2024-01-10T12:00:00Z"})

	schedule := decode[[]appointmentItem](t, s.do(http.MethodGet, "/schedule?date=2024-01-10", "prov-1", nil))
	if len(schedule) != 2 || schedule[0].Date != "2024-01-10T12:00:00Z" {
		t.Fatalf("unexpected schedule %+v", schedule)
	}
	today := decode[[]appointmentItem](t, s.do(http.MethodGet, "/schedule", "prov-1", nil))
	if len(today) != 2 {
		t.Fatalf("expected today's schedule by default, got %+v", today)
	}
	booked := decode[[]appointmentItem](t, s.do(http.MethodGet, "/appointments?view=provider", "prov-1", nil))
	if len(booked) != 2 {
		t.Fatalf("unexpected provider listing %+v", booked)
	}

	expectError(t, s.do(http.MethodGet, "/schedule?date=2024-01-10", "client-1", nil), http.StatusForbidden, "forbidden")
	expectError(t, s.do(http.MethodGet, "/appointments?view=provider", "client-1", nil), http.StatusForbidden, "forbidden")
	expectError(t, s.do(http.MethodGet, "/notifications", "client-1", nil), http.StatusForbidden, "forbidden")

	providers := decode[[]userItem](t, s.do(http.MethodGet, "/providers", "client-1", nil))
	if len(providers) != 1 || providers[0].ID != "prov-1" || providers[0].Email != "" {
		t.Fatalf("unexpected providers %+v", providers)
	}
}

func TestMarkRead(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodPost, "/appointments", "client-1", map[string]string{"provider_id": "prov-1", "date": "2024-01-10T16:00:00Z"})
	notes := decode[[]notificationItem](t, s.do(http.MethodGet, "/notifications", "prov-1", nil))
	if len(notes) != 1 {
		t.Fatalf("expected one notification, got %d", len(notes))
	}

	for i := 0; i < 2; i++ {
		rr := s.do(http.MethodPut, "/notifications/"+notes[0].ID, "prov-1", nil)
		if rr.Code != http.StatusOK || !decode[notificationItem](t, rr).Read {
			t.Fatalf("mark read #%d: %d %s", i+1, rr.Code, rr.Body.String())
		}
	}
	expectError(t, s.do(http.MethodPut, "/notifications/"+notes[0].ID, "client-1", nil), http.StatusForbidden, "forbidden")
	expectError(t, s.do(http.MethodPut, "/notifications/unknown", "prov-1", nil), http.StatusNotFound, "not_found")
}
