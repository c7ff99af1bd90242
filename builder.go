package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/vantor-labs/authcore/internal/audit"
	"github.com/vantor-labs/authcore/internal/rate"
	"github.com/vantor-labs/authcore/jwt"
	"github.com/vantor-labs/authcore/password"
	"github.com/vantor-labs/authcore/session"
	"github.com/vantor-labs/authcore/token"
	"github.com/vantor-labs/authcore/verification"
)

// Builder assembles an Engine. Chain the With* methods and finish with
// Build; a Builder is single-use and not safe for concurrent use.
type Builder struct {
	config    Config
	hasConfig bool

	redis     redis.UniversalClient
	users     UserStore
	mailer    Mailer
	auditSink AuditSink
	limiter   RateLimiter
	clock     Clock

	built bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the entire configuration. Fields left at their
// zero value are NOT backfilled with defaults; start from New()'s
// config when only a few knobs need changing.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	b.hasConfig = true
	return b
}

// WithRedis sets the Redis client backing sessions, verification
// tokens, and the built-in rate limiter. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the host's user storage adapter. Required.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

// WithMailer sets the outbound mail adapter. Defaults to NoOpMailer.
func (b *Builder) WithMailer(mailer Mailer) *Builder {
	b.mailer = mailer
	return b
}

// WithAuditSink sets the audit event destination. Events flow only
// when Audit.Enabled is also set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithRateLimiter overrides the built-in Redis fixed-window limiter
// with a host-supplied one.
func (b *Builder) WithRateLimiter(limiter RateLimiter) *Builder {
	b.limiter = limiter
	return b
}

// WithClock overrides the engine clock. Test use.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// Build validates the configuration, wires every component, and
// returns the ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.users == nil {
		return nil, errors.New("user store is required")
	}

	cfg := b.config
	if !b.hasConfig {
		cfg = cloneConfig(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	codec, err := token.NewCodec(cfg.Security.FingerprintKey)
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		Pepper:      cfg.Password.Pepper,
	})
	if err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}
	now := func() time.Time { return clock() }

	sessions := session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.RevokedRetention, now)
	ledger := verification.NewStore(b.redis, cfg.Verification.RedisPrefix, cfg.Verification.Retention, now)

	limiter := b.limiter
	if limiter == nil && cfg.RateLimit.Enabled {
		limiter = rate.New(b.redis, rate.Config{
			Limit:  cfg.RateLimit.Limit,
			Window: cfg.RateLimit.Window,
			Prefix: cfg.RateLimit.RedisPrefix,
		})
	}

	mailer := b.mailer
	if mailer == nil {
		mailer = NoOpMailer{}
	}

	sink := b.auditSink
	if sink == nil {
		sink = internalaudit.NoOpSink{}
	}
	dispatcher := internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	var access *jwt.Manager
	if cfg.AccessToken.Enabled {
		access, err = jwt.NewManager(jwt.Config{
			AccessTTL:     cfg.AccessToken.TTL,
			SigningMethod: jwt.SigningMethod(cfg.AccessToken.SigningMethod),
			PrivateKey:    cfg.AccessToken.PrivateKey,
			PublicKey:     cfg.AccessToken.PublicKey,
			Now:           now,
		})
		if err != nil {
			return nil, fmt.Errorf("access tokens: %w", err)
		}
	}

	return &Engine{
		config:   cfg,
		users:    b.users,
		sessions: sessions,
		ledger:   ledger,
		hasher:   hasher,
		codec:    codec,
		limiter:  limiter,
		mailer:   mailer,
		audit:    dispatcher,
		metrics:  NewMetrics(cfg.Metrics),
		access:   access,
		now:      clock,
	}, nil
}
