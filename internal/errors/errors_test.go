package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	err := NewEmptyTicket()
	require.Equal(t, "EMPTY_TICKET: ticket id must not be empty", err.Error())

	wrapped := NewWrite("pause timer", stderrors.New("disk full"))
	require.Equal(t, "WRITE_FAILED: could not pause timer: disk full", wrapped.Error())
}

func TestIsMatchesWrappedErrors(t *testing.T) {
	err := fmt.Errorf("start: %w", NewTicketClosed("PROJ-1"))
	require.True(t, Is(err, ErrTicketClosed))
	require.False(t, Is(err, ErrEmptyTicket))
	require.False(t, Is(stderrors.New("plain"), ErrTicketClosed))
	require.False(t, Is(nil, ErrTicketClosed))
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := NewWrite("stop timer", cause)
	require.ErrorIs(t, err, cause)
}

func TestCategories(t *testing.T) {
	tests := []struct {
		err  *TrackerError
		want Category
	}{
		{NewConfig("missing app_id"), CategoryConfiguration},
		{NewAuth("federated", nil), CategoryAuth},
		{NewWrite("stop timer", nil), CategoryTransient},
		{NewPartialFailure(1, 3, nil), CategoryTransient},
		{NewSubscription(nil), CategorySubscription},
		{NewTimeout("startup", nil), CategorySubscription},
		{NewEmptyTicket(), CategoryValidation},
		{NewTicketClosed("A"), CategoryValidation},
		{NewInvalidStartTime("x"), CategoryValidation},
		{NewDurationOutOfRange(-1, 10), CategoryValidation},
		{NewActiveSessionExists("x", "A"), CategoryValidation},
		{NewInternal(nil), CategoryInternal},
		{&TrackerError{Code: "UNKNOWN"}, CategoryInternal},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tt.err.Category(), "code %s", tt.err.Code)
	}
	require.Equal(t, CategoryInternal, CategoryOf(stderrors.New("x")))
	require.Equal(t, CategoryValidation, CategoryOf(fmt.Errorf("w: %w", NewEmptyTicket())))
}

func TestUserMessage(t *testing.T) {
	require.Equal(t, "", UserMessage(nil))
	require.Equal(t, "Ticket id must not be empty", UserMessage(NewEmptyTicket()))
	require.Equal(t, "Could not pause timer. Please try again.", UserMessage(NewWrite("pause timer", stderrors.New("io"))))
	require.Equal(t, "Some items failed (2 of 5)", UserMessage(NewPartialFailure(2, 5, nil)))
	require.Equal(t, "Configuration error: app_id is required", UserMessage(NewConfig("app_id is required")))
	require.Equal(t, "Something went wrong: plain", UserMessage(stderrors.New("plain")))
	require.Equal(t, "Federated sign-in failed: malformed token", UserMessage(NewAuth("federated", stderrors.New("malformed token"))))
	require.Equal(t, "Federated sign-in failed", UserMessage(NewAuth("federated", nil)))
}

func TestDetails(t *testing.T) {
	err := NewPartialFailure(2, 5, nil)
	require.Equal(t, 2, err.Details["failed"])
	require.Equal(t, 5, err.Details["total"])

	nf := NewNotFound("session", "01ABC")
	require.Equal(t, "session not found: 01ABC", nf.Message)
}
