package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountLocked      = errors.New("auth: account locked")
	ErrAccountDisabled    = errors.New("auth: account disabled")
	ErrMFARequired        = errors.New("auth: mfa required")
	ErrMFAInvalid         = errors.New("auth: invalid mfa code")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenMalformed     = errors.New("auth: token malformed")
	ErrTokenReused        = errors.New("auth: token reuse detected")
	ErrSessionRevoked     = errors.New("auth: session revoked")
	ErrPermissionDenied   = errors.New("auth: permission denied")
	ErrNotFound           = errors.New("auth: not found")
	ErrConflict           = errors.New("auth: already exists")
	ErrInvalidInput       = errors.New("auth: invalid input")

	// errRotationMismatch is the store-level signal that a presented refresh
	// hash does not match the current one for a live session. The service
	// escalates it to ErrTokenReused after revoking the family.
	errRotationMismatch = errors.New("auth: refresh hash mismatch")
)

// AccountLockedError carries a retry hint without exposing the attempt
// counter. errors.Is(err, ErrAccountLocked) matches it.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("auth: account locked, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *AccountLockedError) Is(target error) bool { return target == ErrAccountLocked }
