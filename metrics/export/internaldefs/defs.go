package internaldefs

import (
	authcore "github.com/vantor-labs/authcore"
)

// CounterDef maps one engine counter to its exported name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef maps one engine histogram to its exported name.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricLoginRateLimited, Name: "authcore_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: authcore.MetricAccountLocked, Name: "authcore_account_locked_total", Help: "Lockout windows opened or enforced."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Created sessions."},
	{ID: authcore.MetricSessionRotated, Name: "authcore_session_rotated_total", Help: "Session rotations."},
	{ID: authcore.MetricSessionInvalidated, Name: "authcore_session_invalidated_total", Help: "Revoked or hard-expired sessions."},
	{ID: authcore.MetricSessionLimitHit, Name: "authcore_session_limit_hit_total", Help: "Session creations rejected at the per-user cap."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Single-session logout operations."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Logout-all operations."},
	{ID: authcore.MetricCSRFRejected, Name: "authcore_csrf_rejected_total", Help: "Requests rejected by CSRF verification."},
	{ID: authcore.MetricMetadataChange, Name: "authcore_session_metadata_change_total", Help: "Detected session IP or user-agent changes."},
	{ID: authcore.MetricRegisterSuccess, Name: "authcore_register_success_total", Help: "Successful registrations."},
	{ID: authcore.MetricRegisterDuplicate, Name: "authcore_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: authcore.MetricEmailVerificationRequest, Name: "authcore_email_verification_request_total", Help: "Email verification tokens issued."},
	{ID: authcore.MetricEmailVerificationSuccess, Name: "authcore_email_verification_success_total", Help: "Successful email verifications."},
	{ID: authcore.MetricEmailVerificationFailure, Name: "authcore_email_verification_failure_total", Help: "Failed email verification attempts."},
	{ID: authcore.MetricPasswordResetRequest, Name: "authcore_password_reset_request_total", Help: "Password reset tokens issued."},
	{ID: authcore.MetricPasswordResetConfirmSuccess, Name: "authcore_password_reset_confirm_success_total", Help: "Successful password reset confirmations."},
	{ID: authcore.MetricPasswordResetConfirmFailure, Name: "authcore_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: authcore.MetricEmailChangeRequest, Name: "authcore_email_change_request_total", Help: "Email change tokens issued."},
	{ID: authcore.MetricEmailChangeSuccess, Name: "authcore_email_change_success_total", Help: "Committed email changes."},
	{ID: authcore.MetricEmailChangeFailure, Name: "authcore_email_change_failure_total", Help: "Failed email change confirmations."},
	{ID: authcore.MetricAccountDeleteRequest, Name: "authcore_account_delete_request_total", Help: "Account deletion tokens issued."},
	{ID: authcore.MetricAccountDeleted, Name: "authcore_account_deleted_total", Help: "Completed account deletions."},
	{ID: authcore.MetricRateLimitHit, Name: "authcore_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricValidateLatency, Name: "authcore_validate_latency_seconds", Help: "Session validation latency histogram."},
}

// HistogramBounds are the upper bounds of the engine's fixed latency
// buckets, in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds with identifier-safe
// spellings for exporters that encode the bound in a metric name.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// Prometheus histograms expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
