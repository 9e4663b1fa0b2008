package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/apperr"
)

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation:         http.StatusBadRequest,
	apperr.KindPastDate:           http.StatusUnprocessableEntity,
	apperr.KindInvalidSlot:        http.StatusUnprocessableEntity,
	apperr.KindSlotTaken:          http.StatusConflict,
	apperr.KindNotFound:           http.StatusNotFound,
	apperr.KindAlreadyCancelled:   http.StatusConflict,
	apperr.KindForbidden:          http.StatusForbidden,
	apperr.KindCancellationWindow: http.StatusUnprocessableEntity,
	apperr.KindStorage:            http.StatusServiceUnavailable,
}

func statusFor(kind apperr.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeError renders err with its kind as the code. Storage and unknown errors keep their details
// in the log only.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status >= 500 {
		logger.Error("request failed", "err", err, "kind", string(kind),
			"request_id", httpx.RequestIDFromContext(r.Context()))
		if kind == "" {
			httpx.WriteError(w, status, "internal", "internal error")
			return
		}
		httpx.WriteError(w, status, string(kind), "service temporarily unavailable")
		return
	}

	var appErr *apperr.Error
	msg := err.Error()
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	httpx.WriteError(w, status, string(kind), msg)
}
