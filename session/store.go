package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps any transport or script failure against the
// session backend.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned when no row exists under a fingerprint.
var ErrNotFound = errors.New("session not found")

// ErrLimitExceeded is returned by Save when the per-user cap is reached
// and eviction is disabled.
var ErrLimitExceeded = errors.New("session limit exceeded")

// RevokeStatus reports the outcome of the conditional revoke CAS.
type RevokeStatus int

const (
	// RevokeNotFound: no row under the fingerprint.
	RevokeNotFound RevokeStatus = iota
	// RevokeWinner: this call performed the active-to-revoked flip.
	RevokeWinner
	// RevokeAlreadyRevoked: the row was already terminal.
	RevokeAlreadyRevoked
)

const (
	revokeStatusNotFound int64 = 0
	revokeStatusRevoked  int64 = 1
	revokeStatusAlready  int64 = 2
	revokeStatusCorrupt  int64 = 3

	saveStatusCapReached int64 = 0
	saveStatusSaved      int64 = 1
)

// Revoke CAS. The revoked flag sits at blob byte 2, so the flip is plain
// string surgery with no layout parsing; only the user ID needs to be
// walked out for index maintenance. The tombstone keeps its remaining
// TTL plus the retention window so later reads still see "revoked"
// rather than "not found".
const revokeSessionScript = `
local key = KEYS[1]
local user_prefix = ARGV[1]
local retention_ms = tonumber(ARGV[2])
local member = ARGV[3]

local data = redis.call("GET", key)
if not data then
  return 0
end
if string.byte(data, 1) ~= 1 then
  return 3
end
if string.byte(data, 2) == 1 then
  return 2
end

local idx = 3
local id_len = string.byte(data, idx)
if not id_len then
  return 3
end
idx = idx + 1 + id_len
local user_len = string.byte(data, idx)
if not user_len or #data < idx + user_len then
  return 3
end
local user_id = string.sub(data, idx + 1, idx + user_len)

local updated = string.sub(data, 1, 1) .. string.char(1) .. string.sub(data, 3)
local ttl = redis.call("PTTL", key)
if ttl < 0 then
  ttl = 0
end
redis.call("SET", key, updated, "PX", ttl + retention_ms)
redis.call("SREM", user_prefix .. user_id, member)

return 1
`

var revokeSessionLua = redis.NewScript(revokeSessionScript)

// Capped insert. Walks the user's fingerprint set, prunes entries whose
// rows are gone, revoked, or expired, and inserts only while the live
// count is below the cap. With eviction on, the oldest live session is
// revoked in place to make room.
const saveCappedScript = `
local function read_be64(s, i)
  local hi = 0
  for k = 0, 7 do
    local b = string.byte(s, i + k)
    if not b then
      return nil
    end
    hi = hi * 256 + b
  end
  return hi
end

local function timestamps_offset(data)
  local idx = 3
  for _ = 1, 3 do
    local len = string.byte(data, idx)
    if not len then
      return nil
    end
    idx = idx + 1 + len
  end
  return idx + 96
end

local session_key = KEYS[1]
local user_key = KEYS[2]
local blob = ARGV[1]
local ttl_ms = tonumber(ARGV[2])
local max_active = tonumber(ARGV[3])
local evict = tonumber(ARGV[4]) == 1
local member = ARGV[5]
local key_prefix = ARGV[6]
local now_unix = tonumber(ARGV[7])
local retention_ms = tonumber(ARGV[8])

if max_active > 0 then
  local members = redis.call("SMEMBERS", user_key)
  local live = 0
  local oldest_member = nil
  local oldest_created = nil

  for _, m in ipairs(members) do
    local d = redis.call("GET", key_prefix .. m)
    local keep = false
    if d and string.byte(d, 2) == 0 then
      local ts = timestamps_offset(d)
      if ts then
        local created = read_be64(d, ts)
        local expires = read_be64(d, ts + 16)
        if created and expires and expires >= now_unix then
          keep = true
          live = live + 1
          if not oldest_created or created < oldest_created then
            oldest_created = created
            oldest_member = m
          end
        end
      end
    end
    if not keep then
      redis.call("SREM", user_key, m)
    end
  end

  if live >= max_active then
    if not evict then
      return 0
    end
    local victim_key = key_prefix .. oldest_member
    local d = redis.call("GET", victim_key)
    if d then
      local updated = string.sub(d, 1, 1) .. string.char(1) .. string.sub(d, 3)
      local ttl = redis.call("PTTL", victim_key)
      if ttl < 0 then
        ttl = 0
      end
      redis.call("SET", victim_key, updated, "PX", ttl + retention_ms)
    end
    redis.call("SREM", user_key, oldest_member)
  end
end

redis.call("SET", session_key, blob, "PX", ttl_ms + retention_ms)
redis.call("SADD", user_key, member)

return 1
`

var saveCappedLua = redis.NewScript(saveCappedScript)

// Store is the Redis-backed session store. Rows are keyed by token
// fingerprint; a per-user set indexes the fingerprints of sessions
// believed live.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewStore creates a session Store. prefix namespaces all keys,
// retention bounds how long revoked tombstones outlive their natural
// expiry, and now supplies wall-clock time.
func NewStore(rdb redis.UniversalClient, prefix string, retention time.Duration, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		redis:     rdb,
		prefix:    prefix,
		retention: retention,
		now:       now,
	}
}

func (s *Store) key(fingerprint string) string {
	return s.prefix + ":" + fingerprint
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

func (s *Store) userKeyPrefix() string {
	return s.prefix + ":u:"
}

// Save inserts a session under its fingerprint, enforcing the per-user
// cap atomically. maxActive <= 0 disables the cap. Returns
// ErrLimitExceeded when the cap is reached and evictOldest is off.
//
// The Redis key lives ttl plus the retention window past the logical
// expiry in ExpiresAt, so a naturally expired row stays readable long
// enough for the expiry to be observed and flipped to revoked instead
// of silently vanishing into "not found".
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration, maxActive int, evictOldest bool) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	evictFlag := 0
	if evictOldest {
		evictFlag = 1
	}

	status, err := saveCappedLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sess.TokenFP), s.userKey(sess.UserID)},
		data,
		ttl.Milliseconds(),
		maxActive,
		evictFlag,
		sess.TokenFP,
		s.prefix+":",
		s.now().Unix(),
		s.retention.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch status {
	case saveStatusSaved:
		return nil
	case saveStatusCapReached:
		return ErrLimitExceeded
	default:
		return fmt.Errorf("%w: unknown save script status %d", ErrRedisUnavailable, status)
	}
}

// Get fetches a session by fingerprint without mutating any state.
// Revoked and expired rows are returned as-is; terminality decisions
// belong to the caller.
func (s *Store) Get(ctx context.Context, fingerprint string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(fingerprint)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.TokenFP = fingerprint

	return sess, nil
}

// Revoke flips a session to revoked iff it is currently active. Exactly
// one of any set of concurrent callers observes RevokeWinner.
func (s *Store) Revoke(ctx context.Context, fingerprint string) (RevokeStatus, error) {
	status, err := revokeSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(fingerprint)},
		s.userKeyPrefix(),
		s.retention.Milliseconds(),
		fingerprint,
	).Int64()
	if err != nil {
		return RevokeNotFound, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch status {
	case revokeStatusNotFound:
		return RevokeNotFound, nil
	case revokeStatusRevoked:
		return RevokeWinner, nil
	case revokeStatusAlready:
		return RevokeAlreadyRevoked, nil
	case revokeStatusCorrupt:
		return RevokeNotFound, ErrCorruptRecord
	default:
		return RevokeNotFound, fmt.Errorf("%w: unknown revoke script status %d", ErrRedisUnavailable, status)
	}
}

// RevokeAllForUser revokes every indexed session of a user and returns
// how many flips this call won. Idempotent.
func (s *Store) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	members, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var revoked int
	for _, fingerprint := range members {
		status, err := s.Revoke(ctx, fingerprint)
		if err != nil {
			if errors.Is(err, ErrCorruptRecord) {
				continue
			}
			return revoked, err
		}
		if status == RevokeWinner {
			revoked++
		}
	}

	return revoked, nil
}

// ActiveFingerprints returns the indexed fingerprints for a user. The
// index may lag: entries are pruned on the next Save.
func (s *Store) ActiveFingerprints(ctx context.Context, userID string) ([]string, error) {
	members, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return members, nil
}

// ActiveCount returns the indexed session count for a user.
func (s *Store) ActiveCount(ctx context.Context, userID string) (int, error) {
	count, err := s.redis.SCard(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// GetMany fetches the sessions behind a set of fingerprints, skipping
// rows that are missing, revoked, or past expiry.
func (s *Store) GetMany(ctx context.Context, fingerprints []string) ([]*Session, error) {
	if len(fingerprints) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(fingerprints))
	for i, fingerprint := range fingerprints {
		cmds[i] = pipe.Get(ctx, s.key(fingerprint))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	nowUnix := s.now().Unix()
	sessions := make([]*Session, 0, len(fingerprints))
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}

		sess, decErr := Decode(data)
		if decErr != nil {
			continue
		}
		// A row is live through the instant now == ExpiresAt, matching
		// the validation path's strict now > ExpiresAt expiry check.
		if sess.Revoked || sess.ExpiresAt < nowUnix {
			continue
		}
		sess.TokenFP = fingerprints[i]
		sessions = append(sessions, sess)
	}

	return sessions, nil
}

// Ping reports point-in-time backend availability and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
