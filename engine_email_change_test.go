package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestEmailChangeEndToEnd(t *testing.T) {
	env := newTestEnv(t, nil)
	userID := env.seedUser(t, "alice", "alice@example.com", "correct-horse-battery", true)
	out := env.login(t, "alice@example.com", "correct-horse-battery")
	ctx := context.Background()

	if err := env.engine.RequestEmailChange(ctx, userID, "Alice.New@Example.com"); err != nil {
		t.Fatalf("RequestEmailChange: %v", err)
	}

	// Pending is recorded but the live address is untouched.
	user := env.users.get(userID)
	if user.PendingEmail != "alice.new@example.com" {
		t.Fatalf("pending email = %q", user.PendingEmail)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("live email changed early: %q", user.Email)
	}

	// The token goes to the address being claimed, not the current one.
	mail, ok := env.mail.last(MailEmailChange)
	if !ok {
		t.Fatal("no email-change mail sent")
	}
	if mail.To != "alice.new@example.com" {
		t.Fatalf("mail sent to %q, want the new address", mail.To)
	}

	if err := env.engine.CompleteEmailChange(ctx, mail.Token); err != nil {
		t.Fatalf("CompleteEmailChange: %v", err)
	}

	user = env.users.get(userID)
	if user.Email != "alice.new@example.com" || user.PendingEmail != "" {
		t.Fatalf("commit left %+v", user)
	}

	// Sessions authenticated under the old identity are gone.
	if _, err := env.engine.ValidateSession(ctx, out.SessionToken, ""); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("pre-change session = %v, want ErrSessionRevoked", err)
	}
	env.login(t, "alice.new@example.com", "correct-horse-battery")
}

func TestEmailChangeRejectsSameAddress(t *testing.T) {
	env := newTestEnv(t, nil)
	userID := env.seedUser(t, "alice", "alice@example.com", "correct-horse-battery", true)

	if err := env.engine.RequestEmailChange(context.Background(), userID, "alice@example.com"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("same address = %v, want ErrInvalidInput", err)
	}
}

func TestEmailChangeUnknownUser(t *testing.T) {
	env := newTestEnv(t, nil)

	if err := env.engine.RequestEmailChange(context.Background(), "u999", "new@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user = %v, want ErrUserNotFound", err)
	}
}

func TestEmailChangeTokenCommitsItsOwnTarget(t *testing.T) {
	env := newTestEnv(t, nil)
	userID := env.seedUser(t, "alice", "alice@example.com", "correct-horse-battery", true)
	ctx := context.Background()

	if err := env.engine.RequestEmailChange(ctx, userID, "first@example.com"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	firstMail, _ := env.mail.last(MailEmailChange)

	// A newer request overwrites the pending field.
	if err := env.engine.RequestEmailChange(ctx, userID, "second@example.com"); err != nil {
		t.Fatalf("second request: %v", err)
	}

	// Confirming the first token commits the address it was issued for.
	if err := env.engine.CompleteEmailChange(ctx, firstMail.Token); err != nil {
		t.Fatalf("CompleteEmailChange: %v", err)
	}
	if got := env.users.get(userID).Email; got != "first@example.com" {
		t.Fatalf("committed email = %q, want first@example.com", got)
	}
}

func TestEmailChangeTokenIsSingleUse(t *testing.T) {
	env := newTestEnv(t, nil)
	userID := env.seedUser(t, "alice", "alice@example.com", "correct-horse-battery", true)
	ctx := context.Background()

	if err := env.engine.RequestEmailChange(ctx, userID, "new@example.com"); err != nil {
		t.Fatalf("RequestEmailChange: %v", err)
	}
	mail, _ := env.mail.last(MailEmailChange)

	if err := env.engine.CompleteEmailChange(ctx, mail.Token); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	if err := env.engine.CompleteEmailChange(ctx, mail.Token); !errors.Is(err, ErrVerificationAlreadyUsed) {
		t.Fatalf("second complete = %v, want ErrVerificationAlreadyUsed", err)
	}
}
