// Package rate is a fixed-window Redis rate limiter used to pre-gate
// credential-guessing surfaces (login, reset, verification requests)
// when the host does not bring its own limiter.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when a key exhausts its window budget.
var ErrRateLimited = errors.New("rate limited")

// ErrRedisUnavailable wraps backend failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Config tunes the fixed window.
type Config struct {
	// Limit is the number of calls allowed per key per window.
	Limit int
	// Window is the counter lifetime.
	Window time.Duration
	// Prefix namespaces limiter keys in Redis.
	Prefix string
}

// Limiter counts calls per key in fixed windows. The first hit in a
// window creates the counter with the window TTL; subsequent hits only
// increment, so the window never slides.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "arl"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *Limiter) key(key string) string {
	return l.config.Prefix + ":" + key
}

// Check spends one unit of the key's budget and returns ErrRateLimited
// once the window limit is exceeded.
func (l *Limiter) Check(ctx context.Context, key string) error {
	if l.config.Limit <= 0 {
		return nil
	}

	count, err := l.redis.Incr(ctx, l.key(key)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: TTL is set only by the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(key), l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count > int64(l.config.Limit) {
		return ErrRateLimited
	}

	return nil
}

// Reset clears a key's counter, forgiving prior hits in the window.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
