// Package apperr defines the typed failures returned by the scheduling core.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation         Kind = "validation"
	KindPastDate           Kind = "past_date"
	KindInvalidSlot        Kind = "invalid_slot"
	KindSlotTaken          Kind = "slot_taken"
	KindNotFound           Kind = "not_found"
	KindAlreadyCancelled   Kind = "already_cancelled"
	KindForbidden          Kind = "forbidden"
	KindCancellationWindow Kind = "cancellation_window"
	KindStorage            Kind = "storage"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == KindStorage {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the Kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func PastDate() *Error {
	return &Error{Kind: KindPastDate, Message: "past dates are not permitted"}
}

func InvalidSlot(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidSlot, Message: fmt.Sprintf(format, args...)}
}

func SlotTaken() *Error {
	return &Error{Kind: KindSlotTaken, Message: "appointment date is not available"}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func AlreadyCancelled() *Error {
	return &Error{Kind: KindAlreadyCancelled, Message: "appointment is already cancelled"}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func CancellationWindow(lead fmt.Stringer) *Error {
	return &Error{Kind: KindCancellationWindow, Message: fmt.Sprintf("appointments can only be cancelled at least %s in advance", lead)}
}

// Storage wraps a persistence failure; the cause stays reachable through errors.Is/As.
func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Message: op, Err: err}
}
