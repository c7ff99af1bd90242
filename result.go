package authcore

import (
	"errors"
	"net/http"
)

// Result is the transport-neutral envelope for hosts that prefer a
// uniform response shape over sentinel matching. Engine methods return
// (value, error); ResultOf folds either outcome into a Result.
type Result struct {
	Success bool        `json:"success"`
	Status  int         `json:"status"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ResultOf maps an operation outcome to a Result. The Status field
// follows HTTP conventions so hosts can pass it straight through;
// non-HTTP hosts can key on Code instead. Backend faults collapse to a
// generic 500 message so infrastructure detail never leaks to clients.
func ResultOf(data interface{}, err error) Result {
	if err == nil {
		return Result{Success: true, Status: http.StatusOK, Data: data}
	}

	status := statusOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}

	return Result{
		Success: false,
		Status:  status,
		Code:    string(auditErrorCode(err)),
		Message: message,
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrSessionRevoked),
		errors.Is(err, ErrSessionExpired),
		errors.Is(err, ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAccountBanned),
		errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrAccountUnverified),
		errors.Is(err, ErrCSRFInvalid),
		errors.Is(err, ErrRegistrationDisabled),
		errors.Is(err, ErrAccessTokensDisabled):
		return http.StatusForbidden
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrVerificationNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAccountExists),
		errors.Is(err, ErrSessionLimitExceeded),
		errors.Is(err, ErrVerificationTypeMismatch),
		errors.Is(err, ErrVerificationAlreadyUsed):
		return http.StatusConflict
	case errors.Is(err, ErrVerificationExpired):
		return http.StatusGone
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrPasswordPolicy):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
