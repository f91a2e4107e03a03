package helpdesk

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorKind classifies a failed gateway call. Only RATE_LIMITED and
// TRANSIENT are retried internally; everything else surfaces immediately.
type ErrorKind string

const (
	ErrAuth        ErrorKind = "AUTH"
	ErrNotFound    ErrorKind = "NOT_FOUND"
	ErrRateLimited ErrorKind = "RATE_LIMITED"
	ErrValidation  ErrorKind = "VALIDATION"
	ErrTransient   ErrorKind = "TRANSIENT"
	ErrUnknown     ErrorKind = "UNKNOWN"
)

// Error is a classified API failure. StatusCode is zero for network-level
// failures.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Body       string
	cause      error
	retryAfter time.Duration
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status=%d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable reports whether the gateway may retry the call internally.
func (e *Error) Retryable() bool {
	return e.Kind == ErrRateLimited || e.Kind == ErrTransient
}

func classifyStatus(status int, body string) *Error {
	var kind ErrorKind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = ErrAuth
	case status == http.StatusNotFound:
		kind = ErrNotFound
	case status == http.StatusTooManyRequests:
		kind = ErrRateLimited
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		kind = ErrValidation
	case status >= 500:
		kind = ErrTransient
	default:
		kind = ErrUnknown
	}
	return &Error{Kind: kind, StatusCode: status, Body: body}
}

func transportError(err error) *Error {
	return &Error{Kind: ErrTransient, cause: err}
}

// AsError extracts a classified gateway error, if err carries one.
func AsError(err error) (*Error, bool) {
	for err != nil {
		if apiErr, ok := err.(*Error); ok {
			return apiErr, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
