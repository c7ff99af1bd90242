package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/vantor-labs/authcore/internal/audit"
)

// UserRecord is the account row as seen by the engine. The host owns
// the storage; the engine mutates only through the UserStore methods.
type UserRecord struct {
	UserID       string
	Username     string
	Email        string
	PendingEmail string
	PasswordHash string
	Role         string

	EmailVerified bool
	Banned        bool

	FailedLoginAttempts int
	// LockedUntil is the lockout deadline; the zero value means the
	// account is not locked.
	LockedUntil time.Time
}

// CreateUserInput is the input for UserStore.Create.
type CreateUserInput struct {
	Username      string
	Email         string
	PasswordHash  string
	Role          string
	EmailVerified bool
}

// UserStore is the interface the host must implement over its user
// database. Lookups return ErrUserNotFound when no row matches; Create
// returns ErrAccountExists on a duplicate username or email.
//
// RecordFailedAttempt must increment FailedLoginAttempts atomically in
// the backing store (SQL `SET n = n + 1 RETURNING n` or equivalent) and
// return the post-increment count. Concurrent wrong-password attempts
// must each advance the counter; a read-modify-write implementation
// loses updates and delays the lockout under parallel guessing.
//
// SetLoginState writes the counter and lockout deadline together as
// absolute values (opening a lockout, clearing state after success or
// reset) so the two can never drift apart. A zero lockedUntil clears
// the lockout.
type UserStore interface {
	GetByID(ctx context.Context, userID string) (UserRecord, error)
	GetByIdentifier(ctx context.Context, identifier string) (UserRecord, error)
	Create(ctx context.Context, input CreateUserInput) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
	RecordFailedAttempt(ctx context.Context, userID string) (int, error)
	SetLoginState(ctx context.Context, userID string, failedAttempts int, lockedUntil time.Time) error
	MarkEmailVerified(ctx context.Context, userID string) error
	SetPendingEmail(ctx context.Context, userID, email string) error
	CommitEmailChange(ctx context.Context, userID, newEmail string) error
	Delete(ctx context.Context, userID string) error
}

// MailKind names the transactional email a verification token belongs
// to.
type MailKind string

const (
	MailEmailVerify   MailKind = "email_verify"
	MailPasswordReset MailKind = "password_reset"
	MailEmailChange   MailKind = "email_change"
	MailAccountDelete MailKind = "account_delete"
)

// Mailer delivers verification tokens out of band. Fire-and-forget:
// failures are audited, never retried by the engine.
type Mailer interface {
	Send(ctx context.Context, kind MailKind, toAddress, token string) error
}

// NoOpMailer discards outbound mail. Useful for tests and for hosts
// that deliver tokens through another channel.
type NoOpMailer struct{}

func (NoOpMailer) Send(context.Context, MailKind, string, string) error { return nil }

// RateLimiter pre-gates abuse-prone operations. Check spends one unit
// of the key's budget and returns an error (matched via ErrRateLimited)
// when the caller should back off. A nil RateLimiter disables the gate.
type RateLimiter interface {
	Check(ctx context.Context, key string) error
}

// Clock supplies wall-clock time. Injectable for deterministic expiry,
// lockout, and rotation tests.
type Clock func() time.Time

// SessionInfo is the read-only session view handed to hosts. Token and
// CSRF secrets are never part of it; Fingerprint is the storage key
// derivative and is safe to show in a device list.
type SessionInfo struct {
	ID           string
	Fingerprint  string
	UserID       string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ExpiresAt    time.Time
	LineageStart time.Time
}

// LoginResult is returned by Login. The secrets appear here once and
// are never recoverable afterwards.
type LoginResult struct {
	Session      SessionInfo
	SessionToken string
	CSRFToken    string
	// AccessToken is set when stateless access tokens are enabled.
	AccessToken string
}

// CurrentSessionResult is returned by CurrentSession. When the call
// rotated the session, Rotated is true and SessionToken (and CSRFToken,
// under CSRF rekey) carry the replacement secrets the host must hand
// back to the client.
type CurrentSessionResult struct {
	Session      SessionInfo
	Rotated      bool
	SessionToken string
	CSRFToken    string
}

// RegisterInput is the input for Engine.Register.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// RegisterResult is returned by Engine.Register.
type RegisterResult struct {
	UserID string
	Role   string
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives AuditEvent values from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an AuditSink that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based AuditSink.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an AuditSink that writes one JSON event per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
