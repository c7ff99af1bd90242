package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned for a wrong password and for an
	// unknown identifier alike; callers must not be able to tell the two
	// apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountBanned is returned for banned accounts. Terminal until a
	// host-side unban; never affects lockout counters.
	ErrAccountBanned = errors.New("account banned")
	// ErrAccountLocked is returned while a lockout window is open.
	// Matched values are usually *AccountLockedError.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountUnverified is returned when login requires a verified
	// email and the account has none.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrAccountExists is returned when registration hits a duplicate
	// username or email.
	ErrAccountExists = errors.New("account already exists")
	// ErrUserNotFound is returned by UserStore implementations when no
	// row matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrRegistrationDisabled is returned by Register when the feature
	// is off.
	ErrRegistrationDisabled = errors.New("registration disabled")

	// ErrSessionNotFound is returned when no session exists under the
	// presented token.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionRevoked is returned for revoked sessions. Revocation is
	// terminal; nothing un-revokes a session.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrSessionExpired is returned when a session passed its expiry or
	// its absolute lifetime ceiling.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionLimitExceeded is returned when creating a session would
	// push a user past the configured cap.
	ErrSessionLimitExceeded = errors.New("session limit exceeded")
	// ErrCSRFInvalid is returned on any CSRF verification failure
	// without revealing which sub-check failed.
	ErrCSRFInvalid = errors.New("csrf verification failed")

	// ErrVerificationNotFound is returned for tokens that were never
	// issued or whose retention window has lapsed.
	ErrVerificationNotFound = errors.New("verification not found")
	// ErrVerificationTypeMismatch is returned when a token is presented
	// to a different flow than it was issued for.
	ErrVerificationTypeMismatch = errors.New("verification type mismatch")
	// ErrVerificationExpired is returned past a token's expiry.
	ErrVerificationExpired = errors.New("verification expired")
	// ErrVerificationAlreadyUsed is returned once a token has been
	// consumed.
	ErrVerificationAlreadyUsed = errors.New("verification already used")

	// ErrRateLimited is returned when a pre-gate denies the call.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidInput is returned for locally detectable bad input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPasswordPolicy is returned when a new password fails policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrTokenInvalid is returned for unverifiable access tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrAccessTokensDisabled is returned by access-token operations
	// when the feature is off.
	ErrAccessTokensDisabled = errors.New("access tokens disabled")

	// ErrBackendUnavailable wraps storage and crypto infrastructure
	// faults. The %v detail is for logs, never for clients.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrEngineNotReady is returned when calling a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// AccountLockedError carries the remaining lockout time. It unwraps to
// ErrAccountLocked so errors.Is matching keeps working.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *AccountLockedError) Unwrap() error {
	return ErrAccountLocked
}
