package authcore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// testClock is a hand-driven Clock shared by a test and its engine.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mockUserStore is an in-memory UserStore with the error contract the
// engine expects.
type mockUserStore struct {
	mu     sync.RWMutex
	byID   map[string]UserRecord
	nextID int

	failAll bool
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{byID: make(map[string]UserRecord), nextID: 1}
}

func (s *mockUserStore) put(u UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[u.UserID] = u
}

func (s *mockUserStore) get(userID string) UserRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[userID]
}

func (s *mockUserStore) GetByID(_ context.Context, userID string) (UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failAll {
		return UserRecord{}, fmt.Errorf("store down")
	}
	u, ok := s.byID[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (s *mockUserStore) GetByIdentifier(_ context.Context, identifier string) (UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failAll {
		return UserRecord{}, fmt.Errorf("store down")
	}
	for _, u := range s.byID {
		if u.Email == identifier || u.Username == identifier {
			return u, nil
		}
	}
	return UserRecord{}, ErrUserNotFound
}

func (s *mockUserStore) Create(_ context.Context, input CreateUserInput) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Email == input.Email || u.Username == input.Username {
			return UserRecord{}, ErrAccountExists
		}
	}
	u := UserRecord{
		UserID:        fmt.Sprintf("u%d", s.nextID),
		Username:      input.Username,
		Email:         input.Email,
		PasswordHash:  input.PasswordHash,
		Role:          input.Role,
		EmailVerified: input.EmailVerified,
	}
	s.nextID++
	s.byID[u.UserID] = u
	return u, nil
}

func (s *mockUserStore) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	return s.update(userID, func(u *UserRecord) { u.PasswordHash = newHash })
}

func (s *mockUserStore) RecordFailedAttempt(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	u.FailedLoginAttempts++
	s.byID[userID] = u
	return u.FailedLoginAttempts, nil
}

func (s *mockUserStore) SetLoginState(_ context.Context, userID string, failedAttempts int, lockedUntil time.Time) error {
	return s.update(userID, func(u *UserRecord) {
		u.FailedLoginAttempts = failedAttempts
		u.LockedUntil = lockedUntil
	})
}

func (s *mockUserStore) MarkEmailVerified(_ context.Context, userID string) error {
	return s.update(userID, func(u *UserRecord) { u.EmailVerified = true })
}

func (s *mockUserStore) SetPendingEmail(_ context.Context, userID, email string) error {
	return s.update(userID, func(u *UserRecord) { u.PendingEmail = email })
}

func (s *mockUserStore) CommitEmailChange(_ context.Context, userID, newEmail string) error {
	return s.update(userID, func(u *UserRecord) {
		u.Email = newEmail
		u.PendingEmail = ""
		u.EmailVerified = true
	})
}

func (s *mockUserStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[userID]; !ok {
		return ErrUserNotFound
	}
	delete(s.byID, userID)
	return nil
}

func (s *mockUserStore) update(userID string, mutate func(*UserRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	mutate(&u)
	s.byID[userID] = u
	return nil
}

// captureMailer records outbound tokens so tests can complete flows.
type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

type sentMail struct {
	Kind  MailKind
	To    string
	Token string
}

func (m *captureMailer) Send(_ context.Context, kind MailKind, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{Kind: kind, To: to, Token: token})
	return nil
}

func (m *captureMailer) last(kind MailKind) (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Kind == kind {
			return m.sent[i], true
		}
	}
	return sentMail{}, false
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testEnv struct {
	engine *Engine
	users  *mockUserStore
	mail   *captureMailer
	clock  *testClock
	mr     *miniredis.Miniredis
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Security.FingerprintKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Security.EnumerationDelay = 0
	// Minimum allowed argon2 costs keep the suite fast.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.SaltLength = 16
	cfg.Password.KeyLength = 16
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	users := newMockUserStore()
	mail := &captureMailer{}
	clock := newTestClock()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(users).
		WithMailer(mail).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, users: users, mail: mail, clock: clock, mr: mr}
}

// seedUser registers an account through the engine so the stored hash
// matches the engine's hasher, then returns the user ID.
func (env *testEnv) seedUser(t *testing.T, username, email, plaintext string, verified bool) string {
	t.Helper()

	out, err := env.engine.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    email,
		Password: plaintext,
	})
	if err != nil {
		t.Fatalf("Register %s: %v", username, err)
	}
	if verified {
		if err := env.users.MarkEmailVerified(context.Background(), out.UserID); err != nil {
			t.Fatalf("MarkEmailVerified: %v", err)
		}
	}
	return out.UserID
}

func (env *testEnv) login(t *testing.T, identifier, plaintext string) *LoginResult {
	t.Helper()

	out, err := env.engine.Login(context.Background(), identifier, plaintext)
	if err != nil {
		t.Fatalf("Login %s: %v", identifier, err)
	}
	return out
}
