package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Login authenticates an identifier/password pair and creates a
// session. Unknown identifiers and wrong passwords are
// indistinguishable to the caller: both cost a full argon2 verify and
// both return ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, identifier, plaintext string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || plaintext == "" {
		return nil, ErrInvalidInput
	}

	if err := e.rateGate(ctx, "login", e.rateKey(ctx, identifier), ""); err != nil {
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", err, nil)
		return nil, err
	}

	user, err := e.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn a verification anyway so a miss costs the same as a
			// wrong password.
			e.hasher.VerifyDummy(plaintext)
			e.loginFailed(ctx, "", ErrInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if user.Banned {
		e.loginFailed(ctx, user.UserID, ErrAccountBanned)
		return nil, ErrAccountBanned
	}

	now := e.now()
	if !user.LockedUntil.IsZero() && now.Before(user.LockedUntil) {
		// No verify while locked: a locked account gives an attacker
		// zero oracle bits about the password.
		lockErr := &AccountLockedError{RetryAfter: user.LockedUntil.Sub(now)}
		e.metricInc(MetricAccountLocked)
		e.loginFailed(ctx, user.UserID, lockErr)
		return nil, lockErr
	}

	ok, verr := e.hasher.Verify(plaintext, user.PasswordHash)
	if verr != nil {
		// Malformed stored hash fails closed as a credential failure;
		// the audit trail carries the real cause.
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", ErrBackendUnavailable, func() map[string]string {
			return map[string]string{"cause": "malformed_hash"}
		})
		e.metricInc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, e.registerFailedAttempt(ctx, user, now)
	}

	if user.FailedLoginAttempts != 0 || !user.LockedUntil.IsZero() {
		if err := e.users.SetLoginState(ctx, user.UserID, 0, time.Time{}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	if e.config.Security.RequireVerifiedEmail && !user.EmailVerified {
		e.loginFailed(ctx, user.UserID, ErrAccountUnverified)
		return nil, ErrAccountUnverified
	}

	e.maybeUpgradeHash(ctx, user, plaintext)

	minted, err := e.createSession(ctx, user.UserID, user.Role, true, 0, false, [32]byte{})
	if err != nil {
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", err, nil)
		return nil, err
	}

	result := &LoginResult{
		Session:      sessionInfo(minted.sess),
		SessionToken: minted.sessionToken,
		CSRFToken:    minted.csrfToken,
	}
	if e.access != nil {
		accessToken, err := e.access.CreateAccess(user.UserID, minted.sess.ID, user.Role)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		result.AccessToken = accessToken
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, minted.sess.ID, nil, nil)
	return result, nil
}

// registerFailedAttempt advances the brute-force counter and opens the
// lockout window at the threshold. The increment is atomic in the
// store, so parallel wrong-password attempts each count; the lockout
// decision keys off the returned count, not a stale read.
func (e *Engine) registerFailedAttempt(ctx context.Context, user UserRecord, now time.Time) error {
	attempts, err := e.users.RecordFailedAttempt(ctx, user.UserID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if attempts >= e.config.Lockout.MaxFailedAttempts {
		lockedUntil := now.Add(e.config.Lockout.LockoutDuration)
		if err := e.users.SetLoginState(ctx, user.UserID, 0, lockedUntil); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		lockErr := &AccountLockedError{RetryAfter: e.config.Lockout.LockoutDuration}
		e.metricInc(MetricAccountLocked)
		e.loginFailed(ctx, user.UserID, lockErr)
		return lockErr
	}

	e.loginFailed(ctx, user.UserID, ErrInvalidCredentials)
	return ErrInvalidCredentials
}

// maybeUpgradeHash transparently rehashes under current parameters
// when the stored hash lags the configured costs. Best effort: the
// login already succeeded, so upgrade failures are only audited.
func (e *Engine) maybeUpgradeHash(ctx context.Context, user UserRecord, plaintext string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}

	newHash, err := e.hasher.Hash(plaintext)
	if err == nil {
		err = e.users.UpdatePasswordHash(ctx, user.UserID, newHash)
	}
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordUpgradeFailure, false, user.UserID, "", ErrBackendUnavailable, nil)
	}
}

func (e *Engine) loginFailed(ctx context.Context, userID string, cause error) {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", cause, nil)
}

// rateKey prefers the caller IP so one abusive source cannot lock a
// victim's identifier out of the gate.
func (e *Engine) rateKey(ctx context.Context, fallback string) string {
	if ip := clientIPFromContext(ctx); ip != "" {
		return ip
	}
	return fallback
}
