package authcore

import (
	"errors"
	"time"
)

// Config is the complete engine configuration. Build it once, pass it
// to the Builder, and treat it as immutable afterwards.
type Config struct {
	Session      SessionConfig
	Password     PasswordConfig
	Verification VerificationConfig
	Lockout      LockoutConfig
	Registration RegistrationConfig
	RateLimit    RateLimitConfig
	Security     SecurityConfig
	AccessToken  AccessTokenConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

// SessionConfig controls session lifetime, rotation, and the per-user
// cap.
type SessionConfig struct {
	RedisPrefix string
	// TTL is the sliding lifetime granted at creation and at each
	// rotation.
	TTL time.Duration
	// AbsoluteLifetime caps a rotation chain measured from the first
	// login. Rotation never extends a session past it.
	AbsoluteLifetime time.Duration
	// RollingInterval is the minimum age of a session (since its last
	// rotation) before CurrentSession rotates it. Zero disables
	// rotation.
	RollingInterval time.Duration
	// MaxSessionsPerUser rejects new logins at the cap; zero disables.
	MaxSessionsPerUser int
	// EvictOldestAtCap switches the cap policy from reject to silently
	// revoking the oldest session.
	EvictOldestAtCap bool
	// RevokedRetention bounds how long revoked tombstones outlive their
	// natural expiry, keeping "revoked" distinguishable from "not
	// found".
	RevokedRetention time.Duration
	// RekeyCSRFOnRotate mints a fresh CSRF secret at each rotation
	// instead of carrying the login-time secret forward.
	RekeyCSRFOnRotate bool
}

// PasswordConfig holds the argon2id cost parameters and hashing policy.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// Pepper is an optional server-side secret mixed into every hash.
	Pepper []byte
	// UpgradeOnLogin transparently rehashes under the active cost
	// parameters when a successful login presents an outdated hash.
	UpgradeOnLogin bool
}

// TokenStrategy selects the verification token format.
type TokenStrategy int

const (
	// StrategyToken issues random 32-byte base64url tokens (default).
	StrategyToken TokenStrategy = iota
	// StrategyUUID issues UUIDv4 tokens for hosts whose email templates
	// require them. A UUIDv4 carries 122 random bits, slightly under
	// the 128-bit strength of StrategyToken; prefer the default unless
	// the UUID shape is a hard requirement.
	StrategyUUID
)

// VerificationConfig controls the one-time token ledger.
type VerificationConfig struct {
	RedisPrefix string
	Strategy    TokenStrategy

	EmailVerifyTTL   time.Duration
	PasswordResetTTL time.Duration
	EmailChangeTTL   time.Duration
	AccountDeleteTTL time.Duration

	// Retention bounds how long consumed and expired records stay
	// observable.
	Retention time.Duration
}

// LockoutConfig controls the failed-login counter policy.
type LockoutConfig struct {
	// MaxFailedAttempts triggers the lockout; the counter resets when
	// the lockout is set.
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

// RegistrationConfig controls account creation.
type RegistrationConfig struct {
	Enabled     bool
	DefaultRole string
	// SendVerificationEmail issues an email-verify token on successful
	// registration.
	SendVerificationEmail bool
}

// RateLimitConfig configures the built-in fixed-window limiter used
// when the host does not supply its own RateLimiter.
type RateLimitConfig struct {
	Enabled     bool
	Limit       int
	Window      time.Duration
	RedisPrefix string
}

// SecurityConfig holds cross-cutting hardening switches.
type SecurityConfig struct {
	// FingerprintKey keys the HMAC that derives token fingerprints.
	// Required, at least 32 bytes. Rotating it invalidates all
	// sessions.
	FingerprintKey []byte
	// CSRFProtection verifies a bound CSRF secret when one is supplied
	// to validation.
	CSRFProtection bool
	// RequireVerifiedEmail blocks login until the account's email is
	// verified.
	RequireVerifiedEmail bool
	// DetectMetadataChange audits IP / User-Agent hash changes observed
	// during validation. Detection only; never rejects.
	DetectMetadataChange bool
	// EnumerationDelay is the fixed sleep on success-shaped responses
	// for unknown identifiers (reset and verification requests).
	EnumerationDelay time.Duration
}

// AccessTokenConfig controls the optional stateless access-token layer.
type AccessTokenConfig struct {
	Enabled       bool
	TTL           time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration New seeds a Builder with.
// Hosts that construct Config wholesale should start here and override
// what they need; Security.FingerprintKey still has to be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix:        "as",
			TTL:                24 * time.Hour,
			AbsoluteLifetime:   7 * 24 * time.Hour,
			RollingInterval:    15 * time.Minute,
			MaxSessionsPerUser: 0,
			EvictOldestAtCap:   false,
			RevokedRetention:   24 * time.Hour,
			RekeyCSRFOnRotate:  false,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Verification: VerificationConfig{
			RedisPrefix:      "av",
			Strategy:         StrategyToken,
			EmailVerifyTTL:   15 * time.Minute,
			PasswordResetTTL: 15 * time.Minute,
			EmailChangeTTL:   30 * time.Minute,
			AccountDeleteTTL: 15 * time.Minute,
			Retention:        24 * time.Hour,
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: 5,
			LockoutDuration:   15 * time.Minute,
		},
		Registration: RegistrationConfig{
			Enabled:               true,
			DefaultRole:           "member",
			SendVerificationEmail: true,
		},
		RateLimit: RateLimitConfig{
			Enabled:     false,
			Limit:       10,
			Window:      time.Minute,
			RedisPrefix: "arl",
		},
		Security: SecurityConfig{
			CSRFProtection:       true,
			RequireVerifiedEmail: false,
			DetectMetadataChange: true,
			EnumerationDelay:     90 * time.Millisecond,
		},
		AccessToken: AccessTokenConfig{
			Enabled:       false,
			TTL:           5 * time.Minute,
			SigningMethod: "ed25519",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Password.Pepper = cloneBytes(cfg.Password.Pepper)
	out.Security.FingerprintKey = cloneBytes(cfg.Security.FingerprintKey)
	out.AccessToken.PrivateKey = cloneBytes(cfg.AccessToken.PrivateKey)
	out.AccessToken.PublicKey = cloneBytes(cfg.AccessToken.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate rejects configurations that would weaken the engine's
// guarantees. Called by Build before any component is constructed.
func (c *Config) Validate() error {
	// Security
	if len(c.Security.FingerprintKey) < 32 {
		return errors.New("Security FingerprintKey must be at least 32 bytes")
	}
	if c.Security.EnumerationDelay < 0 {
		return errors.New("Security EnumerationDelay must be >= 0")
	}

	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix is required")
	}
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.AbsoluteLifetime < c.Session.TTL {
		return errors.New("Session AbsoluteLifetime must be >= Session TTL")
	}
	if c.Session.RollingInterval < 0 {
		return errors.New("Session RollingInterval must be >= 0")
	}
	if c.Session.MaxSessionsPerUser < 0 {
		return errors.New("Session MaxSessionsPerUser must be >= 0")
	}
	if c.Session.RevokedRetention <= 0 {
		return errors.New("Session RevokedRetention must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Verification
	if c.Verification.RedisPrefix == "" {
		return errors.New("Verification RedisPrefix is required")
	}
	switch c.Verification.Strategy {
	case StrategyToken, StrategyUUID:
		// valid
	default:
		return errors.New("Verification Strategy is invalid")
	}
	for _, ttl := range []time.Duration{
		c.Verification.EmailVerifyTTL,
		c.Verification.PasswordResetTTL,
		c.Verification.EmailChangeTTL,
		c.Verification.AccountDeleteTTL,
	} {
		if ttl <= 0 {
			return errors.New("Verification TTLs must be > 0")
		}
	}
	if c.Verification.Retention <= 0 {
		return errors.New("Verification Retention must be > 0")
	}

	// Lockout
	if c.Lockout.MaxFailedAttempts <= 0 {
		return errors.New("Lockout MaxFailedAttempts must be > 0")
	}
	if c.Lockout.LockoutDuration <= 0 {
		return errors.New("Lockout LockoutDuration must be > 0")
	}

	// Registration
	if c.Registration.Enabled && c.Registration.DefaultRole == "" {
		return errors.New("Registration DefaultRole is required when registration is enabled")
	}

	// Rate limiting
	if c.RateLimit.Enabled {
		if c.RateLimit.Limit <= 0 {
			return errors.New("RateLimit Limit must be > 0 when enabled")
		}
		if c.RateLimit.Window <= 0 {
			return errors.New("RateLimit Window must be > 0 when enabled")
		}
	}

	// Access tokens
	if c.AccessToken.Enabled {
		if c.AccessToken.TTL <= 0 {
			return errors.New("AccessToken TTL must be > 0")
		}
		switch c.AccessToken.SigningMethod {
		case "ed25519":
			if len(c.AccessToken.PrivateKey) == 0 || len(c.AccessToken.PublicKey) == 0 {
				return errors.New("ed25519 requires PrivateKey and PublicKey")
			}
		case "hs256":
			if len(c.AccessToken.PrivateKey) < 32 {
				return errors.New("hs256 requires PrivateKey of at least 32 bytes")
			}
		default:
			return errors.New("unsupported AccessToken signing method")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
