package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vantor-labs/authcore/password"
	"github.com/vantor-labs/authcore/verification"
)

// RequestPasswordReset issues a reset token for the account behind
// email. The response is success-shaped even for unknown addresses;
// the unknown path sleeps the enumeration delay so timing does not
// betray account existence either.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if !plausibleEmail(email) {
		return ErrInvalidInput
	}

	if err := e.rateGate(ctx, "password_reset", e.rateKey(ctx, email), ""); err != nil {
		return err
	}

	user, err := e.users.GetByIdentifier(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.enumerationPause(ctx)
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", ErrUserNotFound, nil)
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	plain, err := e.issueVerification(ctx, user.UserID, verification.KindPasswordReset, "")
	if err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.UserID, "", nil, nil)
	e.sendMail(ctx, verification.KindPasswordReset, user.UserID, user.Email, plain)
	return nil
}

// CompletePasswordReset consumes a reset token, installs the new
// password, clears the lockout state, and revokes every session of the
// account. An attacker holding a stolen session loses it the moment
// the legitimate owner resets.
func (e *Engine) CompletePasswordReset(ctx context.Context, tok, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if tok == "" {
		return ErrVerificationNotFound
	}

	rec, err := e.consumeVerification(ctx, tok, verification.KindPasswordReset)
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", "", err, nil)
		return err
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		// The token is burned regardless: a failed attempt with a
		// consumed token must request a fresh one.
		if errors.Is(err, password.ErrPasswordTooShort) {
			return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := e.users.UpdatePasswordHash(ctx, rec.UserID, newHash); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := e.users.SetLoginState(ctx, rec.UserID, 0, time.Time{}); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if _, err := e.RevokeAllSessions(ctx, rec.UserID); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, rec.UserID, "", nil, nil)
	return nil
}
