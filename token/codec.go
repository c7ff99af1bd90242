package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

const (
	secretSize = 32
	idSize     = 16
	minKeySize = 32
)

// ErrWeakKey is returned by NewCodec when the fingerprint key carries
// too little entropy.
var ErrWeakKey = errors.New("fingerprint key must be at least 32 bytes")

// Fingerprint is the non-reversible derived value stored in place of a
// bearer secret.
type Fingerprint [32]byte

// Codec mints bearer secrets and derives their fingerprints under a
// server-side HMAC key. Possessing a fingerprint does not allow forging
// a secret that maps to it.
type Codec struct {
	sessionKey []byte
	csrfKey    []byte
}

// NewCodec creates a Codec keyed by key. CSRF fingerprints use a
// domain-separated subkey so a session fingerprint can never collide
// with a CSRF fingerprint for the same secret.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) < minKeySize {
		return nil, ErrWeakKey
	}

	return &Codec{
		sessionKey: deriveSubkey(key, "session"),
		csrfKey:    deriveSubkey(key, "csrf"),
	}, nil
}

func deriveSubkey(key []byte, label string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(label))
	return mac.Sum(nil)
}

// Issue mints a fresh bearer secret and its fingerprint. The secret is
// base64url without padding and carries 256 bits of entropy.
func (c *Codec) Issue() (string, Fingerprint, error) {
	secret, err := randomSecret()
	if err != nil {
		return "", Fingerprint{}, err
	}
	return secret, c.Fingerprint(secret), nil
}

// Fingerprint derives the storage fingerprint for a session secret.
// Deterministic by design: it is the lookup key.
func (c *Codec) Fingerprint(secret string) Fingerprint {
	return keyedFingerprint(c.sessionKey, secret)
}

// IssueCSRF mints a fresh CSRF secret and its fingerprint.
func (c *Codec) IssueCSRF() (string, Fingerprint, error) {
	secret, err := randomSecret()
	if err != nil {
		return "", Fingerprint{}, err
	}
	return secret, c.CSRFFingerprint(secret), nil
}

// CSRFFingerprint derives the fingerprint bound to a session for CSRF
// verification.
func (c *Codec) CSRFFingerprint(secret string) Fingerprint {
	return keyedFingerprint(c.csrfKey, secret)
}

// VerifyCSRF reports whether the presented CSRF secret matches the
// stored fingerprint. Constant time; a false result does not reveal how
// close the candidate was.
func (c *Codec) VerifyCSRF(secret string, expected Fingerprint) bool {
	derived := c.CSRFFingerprint(secret)
	return hmac.Equal(derived[:], expected[:])
}

func keyedFingerprint(key []byte, secret string) Fingerprint {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(secret))

	var fp Fingerprint
	copy(fp[:], mac.Sum(nil))
	return fp
}

func randomSecret() (string, error) {
	var raw [secretSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewVerificationToken mints an opaque single-use token. 256 bits of
// entropy, base64url without padding; the token itself is the ledger
// lookup key so it must be unguessable on its own.
func NewVerificationToken() (string, error) {
	return randomSecret()
}

// NewUUIDToken mints a verification token in UUIDv4 form for hosts
// whose transactional email templates require UUID-shaped tokens.
// 122 bits of entropy, slightly under the 128-bit default; opt-in only.
func NewUUIDToken() string {
	return uuid.NewString()
}

// HashToken derives the ledger storage key for a verification token so
// the raw token never sits in the store verbatim.
func HashToken(tok string) [32]byte {
	return sha256.Sum256([]byte(tok))
}

// NewID mints a compact random identifier (128 bits, base64url) for
// session and verification records.
func NewID() (string, error) {
	var raw [idSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
