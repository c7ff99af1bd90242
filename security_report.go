package authcore

import "time"

// SecurityReport is a read-only snapshot of the engine's security
// posture, returned by [Engine.SecurityReport]. It exposes policy, not
// key material.
type SecurityReport struct {
	SessionTTL          time.Duration
	AbsoluteLifetime    time.Duration
	RotationEnabled     bool
	RollingInterval     time.Duration
	SessionCapActive    bool
	MaxSessionsPerUser  int
	EvictOldestAtCap    bool
	CSRFProtection      bool
	MetadataDetection   bool
	PepperConfigured    bool
	Argon2              PasswordConfigReport
	LockoutThreshold    int
	LockoutDuration     time.Duration
	RateLimitingActive  bool
	VerifiedEmailGate   bool
	AccessTokensEnabled bool
	SigningMethod       string
	AuditEnabled        bool
	MetricsEnabled      bool
}

// PasswordConfigReport contains the argon2id parameters active in the
// engine.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// SecurityReport snapshots the active configuration for dashboards and
// startup logging.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	signingMethod := ""
	if e.config.AccessToken.Enabled {
		signingMethod = e.config.AccessToken.SigningMethod
	}

	return SecurityReport{
		SessionTTL:         e.config.Session.TTL,
		AbsoluteLifetime:   e.config.Session.AbsoluteLifetime,
		RotationEnabled:    e.config.Session.RollingInterval > 0,
		RollingInterval:    e.config.Session.RollingInterval,
		SessionCapActive:   e.config.Session.MaxSessionsPerUser > 0,
		MaxSessionsPerUser: e.config.Session.MaxSessionsPerUser,
		EvictOldestAtCap:   e.config.Session.EvictOldestAtCap,
		CSRFProtection:     e.config.Security.CSRFProtection,
		MetadataDetection:  e.config.Security.DetectMetadataChange,
		PepperConfigured:   len(e.config.Password.Pepper) > 0,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		LockoutThreshold:    e.config.Lockout.MaxFailedAttempts,
		LockoutDuration:     e.config.Lockout.LockoutDuration,
		RateLimitingActive:  e.limiter != nil,
		VerifiedEmailGate:   e.config.Security.RequireVerifiedEmail,
		AccessTokensEnabled: e.config.AccessToken.Enabled,
		SigningMethod:       signingMethod,
		AuditEnabled:        e.config.Audit.Enabled,
		MetricsEnabled:      e.config.Metrics.Enabled,
	}
}
