package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOrExpiredToken is the single error callers see for any token, code or session
	// that is unknown, expired or already consumed.
	ErrInvalidOrExpiredToken = errors.New("auth: invalid or expired token")
	// ErrOTPExpired refines ErrInvalidOrExpiredToken for codes that existed but lapsed, so
	// callers can reissue. It must never change what the client is told.
	ErrOTPExpired = fmt.Errorf("%w: code expired", ErrInvalidOrExpiredToken)
	// ErrStoreUnavailable wraps persistence failures. Operations are not retried.
	ErrStoreUnavailable = errors.New("auth: store unavailable")
	// ErrOwnerNotFound is returned when an opaque token is requested for a missing owner row.
	ErrOwnerNotFound = errors.New("auth: token owner not found")
)

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
