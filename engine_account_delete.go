package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/vantor-labs/authcore/verification"
)

// RequestAccountDeletion mails a deletion confirmation token to the
// account's address. Deletion is destructive, so it is always
// token-confirmed rather than immediate.
func (e *Engine) RequestAccountDeletion(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrInvalidInput
	}

	if err := e.rateGate(ctx, "account_delete", e.rateKey(ctx, userID), userID); err != nil {
		return err
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	plain, err := e.issueVerification(ctx, user.UserID, verification.KindAccountDelete, "")
	if err != nil {
		return err
	}

	e.metricInc(MetricAccountDeleteRequest)
	e.emitAudit(ctx, auditEventAccountDeleteRequest, true, user.UserID, "", nil, nil)
	e.sendMail(ctx, verification.KindAccountDelete, user.UserID, user.Email, plain)
	return nil
}

// CompleteAccountDeletion consumes the confirmation token, revokes
// every session, and deletes the account row. Sessions go first so no
// live token outlives the user it authenticates.
func (e *Engine) CompleteAccountDeletion(ctx context.Context, tok string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if tok == "" {
		return ErrVerificationNotFound
	}

	rec, err := e.consumeVerification(ctx, tok, verification.KindAccountDelete)
	if err != nil {
		e.emitAudit(ctx, auditEventAccountDeleteConfirm, false, "", "", err, nil)
		return err
	}

	if _, err := e.RevokeAllSessions(ctx, rec.UserID); err != nil {
		return err
	}
	if err := e.users.Delete(ctx, rec.UserID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Already gone; deletion is idempotent from here.
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditEventAccountDeleteConfirm, true, rec.UserID, "", nil, nil)
	return nil
}
