package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vantor-labs/authcore/verification"
)

// RequestEmailChange records newEmail as pending on the account and
// mails a confirmation token to the NEW address, proving the requester
// controls it before anything switches over. The current address keeps
// working until CompleteEmailChange.
func (e *Engine) RequestEmailChange(ctx context.Context, userID, newEmail string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	newEmail = strings.ToLower(strings.TrimSpace(newEmail))
	if userID == "" || !plausibleEmail(newEmail) {
		return ErrInvalidInput
	}

	if err := e.rateGate(ctx, "email_change", e.rateKey(ctx, userID), userID); err != nil {
		return err
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if user.Email == newEmail {
		return ErrInvalidInput
	}

	if err := e.users.SetPendingEmail(ctx, user.UserID, newEmail); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return ErrAccountExists
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// The token payload carries the target address so confirmation
	// commits exactly what was requested, even if the pending field is
	// overwritten by a newer request in the meantime.
	plain, err := e.issueVerification(ctx, user.UserID, verification.KindEmailChange, newEmail)
	if err != nil {
		return err
	}

	e.metricInc(MetricEmailChangeRequest)
	e.emitAudit(ctx, auditEventEmailChangeRequest, true, user.UserID, "", nil, func() map[string]string {
		return map[string]string{"pending": "set"}
	})
	e.sendMail(ctx, verification.KindEmailChange, user.UserID, newEmail, plain)
	return nil
}

// CompleteEmailChange consumes the confirmation token, commits the new
// address, and revokes all sessions so anything authenticated under
// the old identity re-logs in.
func (e *Engine) CompleteEmailChange(ctx context.Context, tok string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if tok == "" {
		return ErrVerificationNotFound
	}

	rec, err := e.consumeVerification(ctx, tok, verification.KindEmailChange)
	if err != nil {
		e.metricInc(MetricEmailChangeFailure)
		e.emitAudit(ctx, auditEventEmailChangeConfirm, false, "", "", err, nil)
		return err
	}

	if err := e.users.CommitEmailChange(ctx, rec.UserID, rec.Payload); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return ErrAccountExists
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if _, err := e.RevokeAllSessions(ctx, rec.UserID); err != nil {
		return err
	}

	e.metricInc(MetricEmailChangeSuccess)
	e.emitAudit(ctx, auditEventEmailChangeConfirm, true, rec.UserID, "", nil, nil)
	return nil
}
