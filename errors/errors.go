package errors

import (
	goerrors "errors"
	"fmt"
)

var (
	ErrInvalidPhone      = fmt.Errorf("invalid phone number format")
	ErrMissingField      = fmt.Errorf("phone and username are required")
	ErrPhoneRequired     = fmt.Errorf("phone number is required")
	ErrDuplicatePhone    = fmt.Errorf("phone number already registered")
	ErrPhoneNotFound     = fmt.Errorf("phone number not registered")
	ErrSelfChat          = fmt.Errorf("cannot chat with yourself")
	ErrPartnerUnknown    = fmt.Errorf("user not found")
	ErrPartnerOffline    = fmt.Errorf("user is not online")
	ErrNotAuthenticated  = fmt.Errorf("you must be logged in")
	ErrNotInRoom         = fmt.Errorf("you are not in a private chat")
	ErrPersistence       = fmt.Errorf("identity store write failed")
	ErrRateLimited       = fmt.Errorf("rate limit exceeded")
	ErrUnknownEvent      = fmt.Errorf("unknown event")
	ErrInvalidPayload    = fmt.Errorf("invalid payload")
	ErrSinkFull          = fmt.Errorf("connection buffer is full")
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrEmptyWords        = fmt.Errorf("no words have been found")
	ErrArchiveDisabled   = fmt.Errorf("message archive is disabled")
	ErrCoordinatorClosed = fmt.Errorf("coordinator is not running")
)

// Kind classifies an error for the caller. No kind is fatal to the process.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindState
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindState:
		return "state"
	case KindPersistence:
		return "persistence"
	default:
		return "internal"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidPhone, KindValidation},
	{ErrMissingField, KindValidation},
	{ErrPhoneRequired, KindValidation},
	{ErrInvalidPayload, KindValidation},
	{ErrUnknownEvent, KindValidation},
	{ErrRateLimited, KindValidation},
	{ErrDuplicatePhone, KindConflict},
	{ErrSelfChat, KindConflict},
	{ErrPhoneNotFound, KindNotFound},
	{ErrPartnerUnknown, KindNotFound},
	{ErrPartnerOffline, KindNotFound},
	{ErrArchiveDisabled, KindNotFound},
	{ErrNotAuthenticated, KindState},
	{ErrNotInRoom, KindState},
	{ErrPersistence, KindPersistence},
}

// KindOf walks the wrapped chain of err and returns its classification.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if goerrors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

var reasons = map[error]string{
	ErrInvalidPhone:     "Invalid phone number format",
	ErrMissingField:     "Phone and username are required",
	ErrPhoneRequired:    "Phone number is required",
	ErrDuplicatePhone:   "Phone number already registered",
	ErrPhoneNotFound:    "Phone number not registered",
	ErrSelfChat:         "Cannot chat with yourself",
	ErrPartnerUnknown:   "User not found",
	ErrPartnerOffline:   "User is not online",
	ErrNotAuthenticated: "You must be logged in",
	ErrNotInRoom:        "You are not in a private chat",
	ErrPersistence:      "Registration could not be saved, please retry",
	ErrRateLimited:      "Too many requests, slow down",
	ErrUnknownEvent:     "Unknown event",
	ErrInvalidPayload:   "Invalid payload",
	ErrArchiveDisabled:  "Message archive is disabled",
}

// Reason returns the text sent back to a client in *_error events.
func Reason(err error) string {
	for sentinel, reason := range reasons {
		if goerrors.Is(err, sentinel) {
			return reason
		}
	}
	return "Internal error"
}

// Is forwards to the standard library so callers importing this package
// do not need a second errors import.
func Is(err, target error) bool {
	return goerrors.Is(err, target)
}
