package password

import (
	"errors"
	"strings"
	"testing"
)

func testConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashAndVerify(t *testing.T) {
	h, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	encoded, err := h.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected hash prefix: %q", encoded)
	}

	ok, err := h.Verify("correct horse battery", encoded)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("expected match for correct password")
	}

	ok, err = h.Verify("wrong horse battery..", encoded)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("expected mismatch for wrong password")
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	h, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	if _, err := h.Hash("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
}

func TestHashSaltsAreUnique(t *testing.T) {
	h, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	first, err := h.Hash("repeat password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	second, err := h.Hash("repeat password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if first == second {
		t.Fatal("identical passwords must not produce identical encodings")
	}
}

func TestPepperChangesHash(t *testing.T) {
	plain, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	cfg := testConfig()
	cfg.Pepper = []byte("0123456789abcdef0123456789abcdef")
	peppered, err := NewHasher(cfg)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	encoded, err := plain.Hash("shared password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	ok, err := peppered.Verify("shared password", encoded)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("peppered hasher must not verify an unpeppered hash")
	}

	pepperedHash, err := peppered.Hash("shared password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	ok, err = peppered.Verify("shared password", pepperedHash)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("peppered hasher must verify its own hash")
	}
}

func TestNeedsUpgrade(t *testing.T) {
	base, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	encoded, err := base.Hash("legacy password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	upgrade, err := base.NeedsUpgrade(encoded)
	if err != nil {
		t.Fatalf("NeedsUpgrade: %v", err)
	}
	if upgrade {
		t.Fatal("fresh hash should not need upgrade")
	}

	stronger := testConfig()
	stronger.Memory = 16 * 1024
	next, err := NewHasher(stronger)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	upgrade, err = next.NeedsUpgrade(encoded)
	if err != nil {
		t.Fatalf("NeedsUpgrade: %v", err)
	}
	if !upgrade {
		t.Fatal("hash under lower memory cost should need upgrade")
	}

	// Old hash must still verify under the new configuration because
	// parameters come from the PHC string, not the hasher.
	ok, err := next.Verify("legacy password", encoded)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("legacy hash must remain verifiable after cost bump")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	h, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	cases := []string{
		"",
		"plainly-not-phc",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
	}
	for _, encoded := range cases {
		if _, err := h.Verify("whatever password", encoded); err == nil {
			t.Fatalf("expected parse error for %q", encoded)
		}
	}
}

func TestNewHasherRejectsWeakConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Memory = 1024
	if _, err := NewHasher(cfg); err == nil {
		t.Fatal("expected error for memory below floor")
	}

	cfg = testConfig()
	cfg.SaltLength = 8
	if _, err := NewHasher(cfg); err == nil {
		t.Fatal("expected error for short salt")
	}
}
