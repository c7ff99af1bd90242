package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"
)

func newEdManager(t *testing.T, ttl time.Duration, now func() time.Time) *Manager {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	m, err := NewManager(Config{
		AccessTTL:     ttl,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "authcore-test",
		Now:           now,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestCreateAndParseAccess(t *testing.T) {
	m := newEdManager(t, 5*time.Minute, nil)

	token, err := m.CreateAccess("u1", "s1", "admin")
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if claims.UID != "u1" || claims.SID != "s1" || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Issuer != "authcore-test" {
		t.Fatalf("issuer = %q", claims.Issuer)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	m := newEdManager(t, time.Minute, clock)

	token, err := m.CreateAccess("u1", "s1", "member")
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expired token parsed")
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	issuer := newEdManager(t, time.Minute, nil)
	verifier := newEdManager(t, time.Minute, nil)

	token, err := issuer.CreateAccess("u1", "s1", "member")
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	if _, err := verifier.ParseAccess(token); err == nil {
		t.Fatal("token under a different key pair parsed")
	}
}

func TestParseRejectsCrossAlgorithmToken(t *testing.T) {
	hsManager, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte(strings.Repeat("k", 32)),
	})
	if err != nil {
		t.Fatalf("NewManager hs256: %v", err)
	}
	edManager := newEdManager(t, time.Minute, nil)

	token, err := hsManager.CreateAccess("u1", "s1", "member")
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	if _, err := edManager.ParseAccess(token); err == nil {
		t.Fatal("hs256 token accepted by ed25519 verifier")
	}
}

func TestParseRejectsTamperedToken(t *testing.T) {
	m := newEdManager(t, time.Minute, nil)

	token, err := m.CreateAccess("u1", "s1", "member")
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d parts", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	if _, err := m.ParseAccess(tampered); err == nil {
		t.Fatal("tampered token parsed")
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)

	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero ttl", Config{SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub}},
		{"short hs256 secret", Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")}},
		{"missing ed25519 keys", Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519}},
		{"unknown method", Config{AccessTTL: time.Minute, SigningMethod: "rs512", PrivateKey: priv}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewManager(tc.cfg); err == nil {
				t.Fatal("config accepted")
			}
		})
	}
}
