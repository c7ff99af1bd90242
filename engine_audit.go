package authcore

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventLoginRateLimited       = "login_rate_limited"
	auditEventSessionRotated         = "session_rotated"
	auditEventSessionExpired         = "session_expired"
	auditEventCSRFRejected           = "csrf_rejected"
	auditEventMetadataChange         = "session_metadata_change"
	auditEventLogoutSession          = "logout_session"
	auditEventLogoutAll              = "logout_all"
	auditEventSessionRevoked         = "session_revoked"
	auditEventRegisterSuccess        = "register_success"
	auditEventRegisterFailure        = "register_failure"
	auditEventEmailVerifyRequest     = "email_verify_request"
	auditEventEmailVerifyConfirm     = "email_verify_confirm"
	auditEventPasswordResetRequest   = "password_reset_request"
	auditEventPasswordResetConfirm   = "password_reset_confirm"
	auditEventEmailChangeRequest     = "email_change_request"
	auditEventEmailChangeConfirm     = "email_change_confirm"
	auditEventAccountDeleteRequest   = "account_delete_request"
	auditEventAccountDeleteConfirm   = "account_delete_confirm"
	auditEventMailDeliveryFailure    = "mail_delivery_failure"
	auditEventRateLimitTriggered     = "rate_limit_triggered"
	auditEventPasswordUpgradeFailure = "password_upgrade_failure"
)

// AuditErrorCode is the stable error identifier carried in audit
// events. Codes are part of the public audit contract; sentinel texts
// are not.
type AuditErrorCode string

const (
	auditErrInvalidCredentials   AuditErrorCode = "invalid_credentials"
	auditErrRateLimited          AuditErrorCode = "rate_limited"
	auditErrUserNotFound         AuditErrorCode = "user_not_found"
	auditErrAccountBanned        AuditErrorCode = "account_banned"
	auditErrAccountLocked        AuditErrorCode = "account_locked"
	auditErrAccountUnverified    AuditErrorCode = "account_unverified"
	auditErrSessionNotFound      AuditErrorCode = "session_not_found"
	auditErrSessionRevoked       AuditErrorCode = "session_revoked"
	auditErrSessionExpired       AuditErrorCode = "session_expired"
	auditErrSessionLimitExceeded AuditErrorCode = "session_limit_exceeded"
	auditErrCSRFInvalid          AuditErrorCode = "csrf_invalid"
	auditErrVerificationInvalid  AuditErrorCode = "verification_invalid"
	auditErrVerificationExpired  AuditErrorCode = "verification_expired"
	auditErrVerificationReplay   AuditErrorCode = "verification_replay"
	auditErrInvalidToken         AuditErrorCode = "invalid_token"
	auditErrPasswordPolicy       AuditErrorCode = "password_policy"
	auditErrDuplicate            AuditErrorCode = "duplicate"
	auditErrInvalidInput         AuditErrorCode = "invalid_input"
	auditErrUnavailable          AuditErrorCode = "backend_unavailable"
	auditErrInternal             AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope, userID string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, userID, "", ErrRateLimited, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrAccountBanned):
		return auditErrAccountBanned
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountUnverified):
		return auditErrAccountUnverified
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrSessionRevoked):
		return auditErrSessionRevoked
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrSessionLimitExceeded):
		return auditErrSessionLimitExceeded
	case errors.Is(err, ErrCSRFInvalid):
		return auditErrCSRFInvalid
	case errors.Is(err, ErrVerificationNotFound),
		errors.Is(err, ErrVerificationTypeMismatch):
		return auditErrVerificationInvalid
	case errors.Is(err, ErrVerificationExpired):
		return auditErrVerificationExpired
	case errors.Is(err, ErrVerificationAlreadyUsed):
		return auditErrVerificationReplay
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrAccessTokensDisabled):
		return auditErrInvalidToken
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrRegistrationDisabled):
		return auditErrInvalidInput
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
