package handlers

import (
	"net/http"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/apperr"
)

type slotItem struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	page, ok := h.page(r)
	if !ok {
		badRequest(w, "page must be a positive integer")
		return
	}
	users, err := h.users.ListProviders(r.Context(), page)
	if err != nil {
		writeError(w, r, h.logger, apperr.Storage("list providers", err))
		return
	}
	items := make([]userItem, 0, len(users))
	for _, u := range users {
		items = append(items, userItem{ID: u.ID, Name: u.Name, Provider: true})
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

// Available reports every slot of ?date=YYYY-MM-DD for the provider with its availability.
func (h *Handler) Available(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		badRequest(w, "date is required")
		return
	}
	slots, err := h.calc.AvailableSlotsOn(r.Context(), r.PathValue("id"), date)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{Time: s.Time.Format(time.RFC3339), Available: s.Available})
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}
