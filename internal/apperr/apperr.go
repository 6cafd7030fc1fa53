// Package apperr defines the error kinds the booking engine reports to its callers.
// Every business-rule rejection carries a specific Kind and a human-readable message;
// only infrastructure failures surface as KindInternal.
package apperr

import (
	"errors"
	"net/http"
	"sort"
	"strings"
)

type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindNotATutor           Kind = "not_a_tutor"
	KindDuplicateSlot       Kind = "duplicate_slot"
	KindPastBooking         Kind = "past_booking"
	KindTutorUnavailable    Kind = "tutor_unavailable"
	KindSlotConflict        Kind = "slot_conflict"
	KindPreviouslyDenied    Kind = "previously_denied"
	KindInvalidActor        Kind = "invalid_actor"
	KindInvalidState        Kind = "invalid_state"
	KindInvalidTarget       Kind = "invalid_target"
	KindSessionNotCompleted Kind = "session_not_completed"
	KindReviewAlreadyExists Kind = "review_already_exists"
	KindConflict            Kind = "conflict" // concurrent transaction lost
	KindInternal            Kind = "internal"
)

// Error is an engine error. Fields holds per-field messages for validation errors.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

// Sentinels for errors.Is. Matching is by kind only.
var (
	ErrValidation          = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ErrNotATutor           = &Error{Kind: KindNotATutor, Message: "user is not a tutor"}
	ErrDuplicateSlot       = &Error{Kind: KindDuplicateSlot, Message: "availability slot already exists"}
	ErrPastBooking         = &Error{Kind: KindPastBooking, Message: "cannot book sessions in the past"}
	ErrTutorUnavailable    = &Error{Kind: KindTutorUnavailable, Message: "tutor is not available at this time"}
	ErrSlotConflict        = &Error{Kind: KindSlotConflict, Message: "this time slot is already booked"}
	ErrPreviouslyDenied    = &Error{Kind: KindPreviouslyDenied, Message: "this booking request was previously denied by the tutor"}
	ErrInvalidActor        = &Error{Kind: KindInvalidActor, Message: "not allowed for this user"}
	ErrInvalidState        = &Error{Kind: KindInvalidState, Message: "transition not allowed from the current status"}
	ErrInvalidTarget       = &Error{Kind: KindInvalidTarget, Message: "invalid target status"}
	ErrSessionNotCompleted = &Error{Kind: KindSessionNotCompleted, Message: "session is not completed"}
	ErrReviewAlreadyExists = &Error{Kind: KindReviewAlreadyExists, Message: "a review already exists for this session"}
	ErrConflict            = &Error{Kind: KindConflict, Message: "concurrent update, request was not applied"}
	ErrInternal            = &Error{Kind: KindInternal, Message: "internal error"}
)

// New creates an error of the given kind
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an error of the given kind that keeps err as its cause
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Validation creates a validation error with per-field messages
func Validation(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)

	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i == 0 {
				b.WriteString(": ")
			} else {
				b.WriteString(", ")
			}
			b.WriteString(k + " " + e.Fields[k])
		}
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the kind of err. Unknown errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// StatusCode maps a kind to an HTTP status
func StatusCode(kind Kind) int {
	switch kind {
	case KindValidation, KindInvalidTarget:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindNotATutor, KindInvalidActor:
		return http.StatusForbidden
	case KindDuplicateSlot, KindSlotConflict, KindConflict, KindReviewAlreadyExists:
		return http.StatusConflict
	case KindPastBooking, KindTutorUnavailable, KindPreviouslyDenied,
		KindInvalidState, KindSessionNotCompleted:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
