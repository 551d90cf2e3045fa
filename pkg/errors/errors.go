// Package errors defines the API error taxonomy. Every failure a client sees is one of
// these codes with its HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error that knows how to present itself to API clients. Internal is
// kept for logs only.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// New builds an AppError outside the shared taxonomy.
func New(code, message string, statusCode int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusCode}
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.Internal != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	default:
		return e.Message
	}
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches on Code, so copies made by WithMessage or WithInternal still satisfy
// errors.Is against the taxonomy value they came from.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if e == nil || !errors.As(target, &other) || other == nil {
		return false
	}
	return e.Code == other.Code
}

// WithInternal returns a copy carrying err for logging.
func (e *AppError) WithInternal(err error) *AppError {
	return e.clone(func(c *AppError) { c.Internal = err })
}

// WithMessage returns a copy with a more specific client message.
func (e *AppError) WithMessage(message string) *AppError {
	return e.clone(func(c *AppError) { c.Message = message })
}

func (e *AppError) clone(edit func(*AppError)) *AppError {
	if e == nil {
		return nil
	}
	c := *e
	edit(&c)
	return &c
}

var (
	// ErrUnauthorized covers every session and token failure. Callers never learn
	// whether a token was expired, unknown or owned by somebody else.
	ErrUnauthorized = New("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	// ErrInvalidCode is the single answer for wrong, used and lapsed one-time codes.
	ErrInvalidCode = New("INVALID_CODE", "The code is invalid or has expired", http.StatusUnauthorized)
	ErrForbidden   = New("FORBIDDEN", "Permission denied", http.StatusForbidden)
	ErrNotFound    = New("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrBadRequest  = New("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	// ErrRateLimit never names the dimension (IP, email, code) that was exhausted.
	ErrRateLimit         = New("RATE_LIMIT_EXCEEDED", "Too many requests, please slow down", http.StatusTooManyRequests)
	ErrInvalidTransition = New("INVALID_STATUS_TRANSITION", "Status transition not allowed", http.StatusConflict)
	ErrEmailInUse        = New("EMAIL_IN_USE", "Email address already in use", http.StatusConflict)
	ErrMemberNotActive   = New("MEMBER_NOT_ACTIVE", "Member is not active", http.StatusConflict)
	ErrInternalServer    = New("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
	ErrStoreUnavailable  = New("STORE_UNAVAILABLE", "Service temporarily unavailable", http.StatusServiceUnavailable)
)

// NewBadRequest is ErrBadRequest with a caller-supplied message.
func NewBadRequest(message string) *AppError {
	return ErrBadRequest.WithMessage(message)
}

// FromError returns err as an AppError, falling back to ErrInternalServer with err
// attached.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}
