package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a tracker failure.
type ErrorCode string

const (
	ErrConfig              ErrorCode = "CONFIG"
	ErrAuth                ErrorCode = "AUTH"
	ErrWrite               ErrorCode = "WRITE_FAILED"
	ErrSubscription        ErrorCode = "SUBSCRIPTION"
	ErrEmptyTicket         ErrorCode = "EMPTY_TICKET"
	ErrTicketClosed        ErrorCode = "TICKET_CLOSED"
	ErrInvalidStartTime    ErrorCode = "INVALID_START_TIME"
	ErrDurationOutOfRange  ErrorCode = "DURATION_OUT_OF_RANGE"
	ErrActiveSessionExists ErrorCode = "ACTIVE_SESSION_EXISTS"
	ErrInvalidTransition   ErrorCode = "INVALID_TRANSITION"
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrNotFound            ErrorCode = "NOT_FOUND"
	ErrBusy                ErrorCode = "BUSY"
	ErrPartialFailure      ErrorCode = "PARTIAL_FAILURE"
	ErrTimeout             ErrorCode = "TIMEOUT"
	ErrInternal            ErrorCode = "INTERNAL"
)

// Category groups codes by how the caller must react to them.
type Category string

const (
	CategoryConfiguration Category = "configuration" // fatal at startup
	CategoryAuth          Category = "auth"          // dismissible, anonymous fallback still works
	CategoryTransient     Category = "transient"     // write failed, user re-triggers
	CategoryValidation    Category = "validation"    // rejected before any write
	CategorySubscription  Category = "subscription"  // banner, leave loading state
	CategoryInternal      Category = "internal"
)

var categories = map[ErrorCode]Category{
	ErrConfig:              CategoryConfiguration,
	ErrAuth:                CategoryAuth,
	ErrWrite:               CategoryTransient,
	ErrPartialFailure:      CategoryTransient,
	ErrBusy:                CategoryTransient,
	ErrNotFound:            CategoryTransient,
	ErrSubscription:        CategorySubscription,
	ErrTimeout:             CategorySubscription,
	ErrEmptyTicket:         CategoryValidation,
	ErrTicketClosed:        CategoryValidation,
	ErrInvalidStartTime:    CategoryValidation,
	ErrDurationOutOfRange:  CategoryValidation,
	ErrActiveSessionExists: CategoryValidation,
	ErrInvalidTransition:   CategoryValidation,
	ErrInvalidRequest:      CategoryValidation,
	ErrInternal:            CategoryInternal,
}

// TrackerError is a structured error with a code, a user-readable message
// and optional details.
type TrackerError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Err     error
}

func (e *TrackerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TrackerError) Unwrap() error { return e.Err }

// Category returns the taxonomy bucket of the error code.
func (e *TrackerError) Category() Category {
	if c, ok := categories[e.Code]; ok {
		return c
	}
	return CategoryInternal
}

// NewConfig creates a fatal configuration error.
func NewConfig(msg string) *TrackerError {
	return &TrackerError{Code: ErrConfig, Message: msg}
}

// NewAuth creates an authentication error for the named provider.
func NewAuth(provider string, err error) *TrackerError {
	return &TrackerError{
		Code:    ErrAuth,
		Message: fmt.Sprintf("%s sign-in failed", provider),
		Details: map[string]any{"provider": provider},
		Err:     err,
	}
}

// NewWrite wraps a failed store write.
func NewWrite(action string, err error) *TrackerError {
	return &TrackerError{
		Code:    ErrWrite,
		Message: fmt.Sprintf("could not %s", action),
		Details: map[string]any{"action": action},
		Err:     err,
	}
}

// NewSubscription wraps a failure of the live snapshot stream.
func NewSubscription(err error) *TrackerError {
	return &TrackerError{Code: ErrSubscription, Message: "live updates unavailable", Err: err}
}

func NewEmptyTicket() *TrackerError {
	return &TrackerError{Code: ErrEmptyTicket, Message: "ticket id must not be empty"}
}

func NewTicketClosed(ticketID string) *TrackerError {
	return &TrackerError{
		Code:    ErrTicketClosed,
		Message: fmt.Sprintf("ticket %s is closed; reopen it to track time", ticketID),
		Details: map[string]any{"ticket_id": ticketID},
	}
}

func NewInvalidStartTime(sessionID string) *TrackerError {
	return &TrackerError{
		Code:    ErrInvalidStartTime,
		Message: "active session has no valid start time",
		Details: map[string]any{"session_id": sessionID},
	}
}

func NewDurationOutOfRange(ms, maxMs int64) *TrackerError {
	return &TrackerError{
		Code:    ErrDurationOutOfRange,
		Message: fmt.Sprintf("elapsed time %dms is outside the accepted range (0..%dms)", ms, maxMs),
		Details: map[string]any{"duration_ms": ms, "max_ms": maxMs},
	}
}

func NewActiveSessionExists(sessionID, ticketID string) *TrackerError {
	return &TrackerError{
		Code:    ErrActiveSessionExists,
		Message: fmt.Sprintf("a session for %s is still open", ticketID),
		Details: map[string]any{"session_id": sessionID, "ticket_id": ticketID},
	}
}

func NewInvalidTransition(msg string) *TrackerError {
	return &TrackerError{Code: ErrInvalidTransition, Message: msg}
}

func NewInvalidRequest(msg string) *TrackerError {
	return &TrackerError{Code: ErrInvalidRequest, Message: msg}
}

func NewNotFound(kind, id string) *TrackerError {
	return &TrackerError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found: %s", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

func NewBusy() *TrackerError {
	return &TrackerError{Code: ErrBusy, Message: "another change is still being saved"}
}

// NewPartialFailure reports a non-atomic bulk write where some items failed.
func NewPartialFailure(failed, total int, err error) *TrackerError {
	return &TrackerError{
		Code:    ErrPartialFailure,
		Message: fmt.Sprintf("some items failed (%d of %d)", failed, total),
		Details: map[string]any{"failed": failed, "total": total},
		Err:     err,
	}
}

func NewTimeout(what string, err error) *TrackerError {
	return &TrackerError{Code: ErrTimeout, Message: fmt.Sprintf("%s timed out", what), Err: err}
}

// NewInternal creates an error for unexpected failures.
func NewInternal(err error) *TrackerError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &TrackerError{Code: ErrInternal, Message: msg, Err: err}
}

// Is reports whether err, or anything it wraps, is a TrackerError with code.
func Is(err error, code ErrorCode) bool {
	var tErr *TrackerError
	if stderrors.As(err, &tErr) {
		return tErr.Code == code
	}
	return false
}

// CategoryOf returns the category of err, or CategoryInternal for foreign errors.
func CategoryOf(err error) Category {
	var tErr *TrackerError
	if stderrors.As(err, &tErr) {
		return tErr.Category()
	}
	return CategoryInternal
}

// UserMessage renders err for a status line or banner.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var tErr *TrackerError
	if !stderrors.As(err, &tErr) {
		return "Something went wrong: " + err.Error()
	}
	switch tErr.Category() {
	case CategoryTransient:
		if tErr.Code == ErrBusy || tErr.Code == ErrPartialFailure {
			return capitalize(tErr.Message)
		}
		return capitalize(tErr.Message) + ". Please try again."
	case CategoryConfiguration:
		return "Configuration error: " + tErr.Message
	case CategoryAuth:
		if tErr.Err != nil {
			return capitalize(tErr.Message) + ": " + tErr.Err.Error()
		}
		return capitalize(tErr.Message)
	default:
		return capitalize(tErr.Message)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
