package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPasswordResetEndToEnd(t *testing.T) {
	env := newTestEnv(t, nil)
	userID := env.seedUser(t, "alice", "alice@example.com", "correct-horse-battery", true)
	out := env.login(t, "alice@example.com", "correct-horse-battery")
	ctx := context.Background()

	if err := env.engine.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	mail, ok := env.mail.last(MailPasswordReset)
	if !ok {
		t.Fatal("no reset mail sent")
	}

	if err := env.engine.CompletePasswordReset(ctx, mail.Token, "fresh-horse-battery"); err != nil {
		t.Fatalf("CompletePasswordReset: %v", err)
	}

	// Old credential dead, new one live.
	if _, err := env.engine.Login(ctx, "alice@example.com", "correct-horse-battery"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password = %v, want ErrInvalidCredentials", err)
	}
	env.login(t, "alice@example.com", "fresh-horse-battery")

	// Every pre-reset session is revoked.
	if _, err := env.engine.ValidateSession(ctx, out.SessionToken, ""); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("pre-reset session = %v, want ErrSessionRevoked", err)
	}

	user := env.users.get(userID)
	if user.FailedLoginAttempts != 0 || !user.LockedUntil.IsZero() {
		t.Fatalf("lockout state survived reset: %+v", user)
	}
}

func TestPasswordResetClearsActiveLockout(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Lockout.MaxFailedAttempts = 2
		cfg.Lockout.LockoutDuration = time.Hour
	})
	env.seedUser(t, "alice", "alice@example.com", "correct-horse-battery", true)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = env.engine.Login(ctx, "alice@example.com", "wrong-password-guess")
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "correct-horse-battery"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected active lockout, got %v", err)
	}

	if err := env.engine.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	mail, _ := env.mail.last(MailPasswordReset)
	if err := env.engine.CompletePasswordReset(ctx, mail.Token, "fresh-horse-battery"); err != nil {
		t.Fatalf("CompletePasswordReset: %v", err)
	}

	env.login(t, "alice@example.com", "fresh-horse-battery")
}

func TestPasswordResetTokenIsSingleUse(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "alice", "alice@example.com", "correct-horse-battery", true)
	ctx := context.Background()

	if err := env.engine.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	mail, _ := env.mail.last(MailPasswordReset)

	if err := env.engine.CompletePasswordReset(ctx, mail.Token, "fresh-horse-battery"); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	if err := env.engine.CompletePasswordReset(ctx, mail.Token, "another-horse-entirely"); !errors.Is(err, ErrVerificationAlreadyUsed) {
		t.Fatalf("second complete = %v, want ErrVerificationAlreadyUsed", err)
	}
}

func TestPasswordResetBurnsTokenOnWeakPassword(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "alice", "alice@example.com", "correct-horse-battery", true)
	ctx := context.Background()

	if err := env.engine.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	mail, _ := env.mail.last(MailPasswordReset)

	if err := env.engine.CompletePasswordReset(ctx, mail.Token, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("weak password = %v, want ErrPasswordPolicy", err)
	}
	// The failed attempt consumed the token; a retry needs a new one.
	if err := env.engine.CompletePasswordReset(ctx, mail.Token, "fresh-horse-battery"); !errors.Is(err, ErrVerificationAlreadyUsed) {
		t.Fatalf("retry with burned token = %v, want ErrVerificationAlreadyUsed", err)
	}
	// Credential untouched.
	env.login(t, "alice@example.com", "correct-horse-battery")
}

func TestPasswordResetTokenExpires(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Verification.PasswordResetTTL = 15 * time.Minute
	})
	env.seedUser(t, "alice", "alice@example.com", "correct-horse-battery", true)
	ctx := context.Background()

	if err := env.engine.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	mail, _ := env.mail.last(MailPasswordReset)

	env.clock.Advance(16 * time.Minute)

	if err := env.engine.CompletePasswordReset(ctx, mail.Token, "fresh-horse-battery"); !errors.Is(err, ErrVerificationExpired) {
		t.Fatalf("expired token = %v, want ErrVerificationExpired", err)
	}
}

func TestPasswordResetRejectsCrossFlowToken(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "alice", "alice@example.com", "correct-horse-battery", false)
	ctx := context.Background()

	// An email-verify token must not complete a password reset.
	mail, ok := env.mail.last(MailEmailVerify)
	if !ok {
		t.Fatal("no verification mail sent")
	}
	if err := env.engine.CompletePasswordReset(ctx, mail.Token, "fresh-horse-battery"); !errors.Is(err, ErrVerificationTypeMismatch) {
		t.Fatalf("cross-flow token = %v, want ErrVerificationTypeMismatch", err)
	}
}

func TestRequestPasswordResetHidesUnknownAddresses(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if err := env.engine.RequestPasswordReset(ctx, "ghost@example.com"); err != nil {
		t.Fatalf("unknown address = %v, want nil", err)
	}
	if env.mail.count() != 0 {
		t.Fatal("mail sent for unknown address")
	}
	if err := env.engine.RequestPasswordReset(ctx, "not-an-email"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad input = %v, want ErrInvalidInput", err)
	}
}
