package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vantor-labs/authcore/password"
	"github.com/vantor-labs/authcore/verification"
)

// Register creates an account and, when configured, issues an
// email-verify token through the mailer.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if !e.config.Registration.Enabled {
		return nil, ErrRegistrationDisabled
	}

	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if username == "" || !plausibleEmail(email) {
		return nil, ErrInvalidInput
	}

	if err := e.rateGate(ctx, "register", e.rateKey(ctx, email), ""); err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) {
			return nil, fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	user, err := e.users.Create(ctx, CreateUserInput{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         e.config.Registration.DefaultRole,
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", ErrAccountExists, nil)
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, user.UserID, "", nil, nil)

	if e.config.Registration.SendVerificationEmail {
		plain, err := e.issueVerification(ctx, user.UserID, verification.KindEmailVerify, "")
		if err != nil {
			// The account exists; the user can re-request verification.
			e.emitAudit(ctx, auditEventEmailVerifyRequest, false, user.UserID, "", err, nil)
		} else {
			e.metricInc(MetricEmailVerificationRequest)
			e.sendMail(ctx, verification.KindEmailVerify, user.UserID, user.Email, plain)
		}
	}

	return &RegisterResult{UserID: user.UserID, Role: user.Role}, nil
}

// RequestEmailVerification re-issues an email-verify token. The
// response shape is identical for unknown and known addresses; the
// unknown path sleeps the enumeration delay instead of doing ledger
// and mail work.
func (e *Engine) RequestEmailVerification(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if !plausibleEmail(email) {
		return ErrInvalidInput
	}

	if err := e.rateGate(ctx, "verify_request", e.rateKey(ctx, email), ""); err != nil {
		return err
	}

	user, err := e.users.GetByIdentifier(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.enumerationPause(ctx)
			e.emitAudit(ctx, auditEventEmailVerifyRequest, false, "", "", ErrUserNotFound, nil)
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if user.EmailVerified {
		e.enumerationPause(ctx)
		return nil
	}

	plain, err := e.issueVerification(ctx, user.UserID, verification.KindEmailVerify, "")
	if err != nil {
		return err
	}

	e.metricInc(MetricEmailVerificationRequest)
	e.emitAudit(ctx, auditEventEmailVerifyRequest, true, user.UserID, "", nil, nil)
	e.sendMail(ctx, verification.KindEmailVerify, user.UserID, user.Email, plain)
	return nil
}

// VerifyEmail consumes an email-verify token and marks the account
// verified. Single use: a second presentation reports
// ErrVerificationAlreadyUsed.
func (e *Engine) VerifyEmail(ctx context.Context, tok string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if tok == "" {
		return ErrVerificationNotFound
	}

	rec, err := e.consumeVerification(ctx, tok, verification.KindEmailVerify)
	if err != nil {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventEmailVerifyConfirm, false, "", "", err, nil)
		return err
	}

	if err := e.users.MarkEmailVerified(ctx, rec.UserID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerifyConfirm, true, rec.UserID, "", nil, nil)
	return nil
}

// plausibleEmail is a cheap shape check, not RFC validation: delivery
// is the real validator.
func plausibleEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && len(email) <= 254
}
