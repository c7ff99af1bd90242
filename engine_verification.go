package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vantor-labs/authcore/token"
	"github.com/vantor-labs/authcore/verification"
)

// issueVerification mints a one-time token, records its hash in the
// ledger, and returns the plaintext. The plaintext exists only in the
// return value; storage sees the SHA-256 digest.
func (e *Engine) issueVerification(ctx context.Context, userID string, kind verification.Kind, payload string) (string, error) {
	var plain string
	var err error
	switch e.config.Verification.Strategy {
	case StrategyUUID:
		plain = token.NewUUIDToken()
	default:
		plain, err = token.NewVerificationToken()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	id, err := token.NewID()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	rec := &verification.Record{
		ID:        id,
		UserID:    userID,
		Kind:      kind,
		Payload:   payload,
		ExpiresAt: e.now().Add(e.verificationTTL(kind)).Unix(),
	}
	if err := e.ledger.Save(ctx, token.HashToken(plain), rec); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return plain, nil
}

// consumeVerification burns a token through the ledger's atomic
// consume and maps ledger errors onto the engine's sentinels.
func (e *Engine) consumeVerification(ctx context.Context, plain string, kind verification.Kind) (*verification.Record, error) {
	rec, err := e.ledger.Consume(ctx, token.HashToken(plain), kind)
	if err == nil {
		return rec, nil
	}

	switch {
	case errors.Is(err, verification.ErrNotFound):
		return nil, ErrVerificationNotFound
	case errors.Is(err, verification.ErrTypeMismatch):
		return nil, ErrVerificationTypeMismatch
	case errors.Is(err, verification.ErrExpired):
		return nil, ErrVerificationExpired
	case errors.Is(err, verification.ErrAlreadyUsed):
		return nil, ErrVerificationAlreadyUsed
	default:
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}

func (e *Engine) verificationTTL(kind verification.Kind) time.Duration {
	switch kind {
	case verification.KindPasswordReset:
		return e.config.Verification.PasswordResetTTL
	case verification.KindEmailChange:
		return e.config.Verification.EmailChangeTTL
	case verification.KindAccountDelete:
		return e.config.Verification.AccountDeleteTTL
	default:
		return e.config.Verification.EmailVerifyTTL
	}
}

func mailKindFor(kind verification.Kind) MailKind {
	switch kind {
	case verification.KindPasswordReset:
		return MailPasswordReset
	case verification.KindEmailChange:
		return MailEmailChange
	case verification.KindAccountDelete:
		return MailAccountDelete
	default:
		return MailEmailVerify
	}
}

// sendMail hands a token to the host mailer. Delivery failures are
// audited and swallowed: retrying is the host's job, and the caller's
// flow must not fail after the token is already committed.
func (e *Engine) sendMail(ctx context.Context, kind verification.Kind, userID, toAddress, plain string) {
	if err := e.mailer.Send(ctx, mailKindFor(kind), toAddress, plain); err != nil {
		e.emitAudit(ctx, auditEventMailDeliveryFailure, false, userID, "", ErrBackendUnavailable, func() map[string]string {
			return map[string]string{"mail_kind": string(mailKindFor(kind))}
		})
	}
}
