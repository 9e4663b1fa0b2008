package handlers

import (
	"net/http"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type notificationItem struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

func toNotificationItem(n model.Notification) notificationItem {
	return notificationItem{
		ID:        n.ID,
		Content:   n.Content,
		Read:      n.Read,
		CreatedAt: n.CreatedAt.In(time.UTC).Format(time.RFC3339),
	}
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	if err := h.requireProvider(r); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	page, ok := h.page(r)
	if !ok {
		badRequest(w, "page must be a positive integer")
		return
	}
	list, err := h.notifier.ListForProvider(r.Context(), UserIDFromContext(r.Context()), page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]notificationItem, 0, len(list))
	for _, n := range list {
		items = append(items, toNotificationItem(n))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.requireProvider(r); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	n, err := h.notifier.MarkRead(r.Context(), UserIDFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toNotificationItem(n))
}
