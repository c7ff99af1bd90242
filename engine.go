package authcore

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	internalaudit "github.com/vantor-labs/authcore/internal/audit"
	"github.com/vantor-labs/authcore/jwt"
	"github.com/vantor-labs/authcore/session"
	"github.com/vantor-labs/authcore/token"
	"github.com/vantor-labs/authcore/verification"
)

// credentialHasher is the hasher surface the engine depends on,
// satisfied by password.Hasher.
type credentialHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	VerifyDummy(password string)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Engine is the authentication core. Construct it through the Builder;
// the zero value is not usable. All exported methods are safe for
// concurrent use.
type Engine struct {
	config Config

	users    UserStore
	sessions *session.Store
	ledger   *verification.Store
	hasher   credentialHasher
	codec    *token.Codec
	limiter  RateLimiter
	mailer   Mailer
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	access   *jwt.Manager

	now Clock
}

// Close flushes the audit dispatcher. It does not close the Redis
// client or the user store; the host owns those.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// MetricsSnapshot returns a point-in-time copy of all engine counters.
// Exporters poll this; it never blocks request paths.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were shed under a full
// buffer since the engine was built.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}

// Health round-trips the session backend.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil {
		return HealthStatus{}
	}
	latency, err := e.sessions.Ping(ctx)
	return HealthStatus{RedisAvailable: err == nil, RedisLatency: latency}
}

// ActiveSessionCount reports how many live sessions a user holds.
func (e *Engine) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	count, err := e.sessions.ActiveCount(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return count, nil
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	e.metrics.Observe(id, d)
}

// metadataHashes digests the request IP and User-Agent from ctx. Raw
// values are never persisted; a missing value hashes to zero.
func (e *Engine) metadataHashes(ctx context.Context) (ipHash, uaHash [32]byte) {
	if ip := clientIPFromContext(ctx); ip != "" {
		ipHash = sha256.Sum256([]byte(ip))
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		uaHash = sha256.Sum256([]byte(ua))
	}
	return ipHash, uaHash
}

// rateGate spends one unit of the key's budget when a limiter is
// configured. scope names the operation in audit events.
func (e *Engine) rateGate(ctx context.Context, scope, key, userID string) error {
	if e.limiter == nil {
		return nil
	}
	if err := e.limiter.Check(ctx, scope+":"+key); err != nil {
		e.emitRateLimit(ctx, scope, userID)
		return ErrRateLimited
	}
	return nil
}

// enumerationPause holds success-shaped responses for unknown
// identifiers near the timing of the real path.
func (e *Engine) enumerationPause(ctx context.Context) {
	delay := e.config.Security.EnumerationDelay
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func sessionInfo(s *session.Session) SessionInfo {
	return SessionInfo{
		ID:           s.ID,
		Fingerprint:  s.TokenFP,
		UserID:       s.UserID,
		Role:         s.Role,
		CreatedAt:    time.Unix(s.CreatedAt, 0).UTC(),
		UpdatedAt:    time.Unix(s.UpdatedAt, 0).UTC(),
		ExpiresAt:    time.Unix(s.ExpiresAt, 0).UTC(),
		LineageStart: time.Unix(s.LineageStart, 0).UTC(),
	}
}
