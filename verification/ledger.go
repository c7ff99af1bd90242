package verification

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

// Kind discriminates the flow a token was issued for. A token issued
// for one flow can never be consumed by another.
type Kind uint8

const (
	KindEmailVerify Kind = iota + 1
	KindPasswordReset
	KindEmailChange
	KindAccountDelete
)

func (k Kind) String() string {
	switch k {
	case KindEmailVerify:
		return "email_verify"
	case KindPasswordReset:
		return "password_reset"
	case KindEmailChange:
		return "email_change"
	case KindAccountDelete:
		return "account_delete"
	default:
		return "unknown"
	}
}

var (
	ErrNotFound         = errors.New("verification not found")
	ErrTypeMismatch     = errors.New("verification type mismatch")
	ErrExpired          = errors.New("verification expired")
	ErrAlreadyUsed      = errors.New("verification already used")
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const recordVersion = 1

// Record is one ledger entry. UsedAt is zero until the token is
// consumed; once set it is never cleared.
type Record struct {
	ID        string
	UserID    string
	Kind      Kind
	Payload   string
	ExpiresAt int64
	UsedAt    int64
}

// Store is the Redis-backed ledger. Keys are hex SHA-256 token digests
// under a configurable prefix.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewStore creates a ledger Store. retention bounds how long consumed
// and expired records stay observable past their logical expiry.
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

func (s *Store) key(tokenHash [32]byte) string {
	return s.prefix + ":" + hex.EncodeToString(tokenHash[:])
}

func (s *Store) recordTTL(rec *Record) time.Duration {
	remaining := time.Unix(rec.ExpiresAt, 0).Sub(s.now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining + s.retention
}

// Save persists a freshly issued record under its token digest.
func (s *Store) Save(ctx context.Context, tokenHash [32]byte, rec *Record) error {
	encoded, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(tokenHash), encoded, s.recordTTL(rec)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Consume atomically marks a record used and returns it. Checks run in
// a fixed order so the caller's error is stable: not-found, then type
// mismatch, then expiry, then already-used. Only the winning call ever
// writes usedAt; rejected calls leave the record untouched.
func (s *Store) Consume(ctx context.Context, tokenHash [32]byte, expected Kind) (*Record, error) {
	const maxRetries = 4
	key := s.key(tokenHash)

	for i := 0; i < maxRetries; i++ {
		var consumed *Record

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			rec, err := decodeRecord(data)
			if err != nil {
				return err
			}

			if rec.Kind != expected {
				return ErrTypeMismatch
			}

			now := s.now()
			if now.Unix() > rec.ExpiresAt {
				return ErrExpired
			}

			if rec.UsedAt != 0 {
				return ErrAlreadyUsed
			}

			rec.UsedAt = now.Unix()
			updated, err := encodeRecord(rec)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, s.recordTTL(rec))
				return nil
			})
			if err != nil {
				return err
			}

			consumed = rec
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrNotFound
			case errors.Is(err, ErrTypeMismatch),
				errors.Is(err, ErrExpired),
				errors.Is(err, ErrAlreadyUsed):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}

		return consumed, nil
	}

	return nil, fmt.Errorf("%w: consume retries exhausted", ErrRedisUnavailable)
}

// Get fetches a record without consuming it. Terminal states map to the
// same errors Consume reports.
func (s *Store) Get(ctx context.Context, tokenHash [32]byte) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return decodeRecord(data)
}

func encodeRecord(rec *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersion)
	buf.WriteByte(byte(rec.Kind))

	if err := binary.Write(&buf, binary.BigEndian, rec.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, rec.UsedAt); err != nil {
		return nil, err
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"record id", rec.ID},
		{"user id", rec.UserID},
		{"payload", rec.Payload},
	} {
		if len(field.value) > 65535 {
			return nil, errors.New("verification " + field.name + " too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field.value))); err != nil {
			return nil, err
		}
		buf.WriteString(field.value)
	}

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, errors.New("invalid verification record")
	}
	if version != recordVersion {
		return nil, errors.New("invalid verification record version")
	}

	kind, err := reader.ReadByte()
	if err != nil {
		return nil, errors.New("invalid verification record")
	}

	rec := &Record{Kind: Kind(kind)}

	if err := binary.Read(reader, binary.BigEndian, &rec.ExpiresAt); err != nil {
		return nil, errors.New("invalid verification record")
	}
	if err := binary.Read(reader, binary.BigEndian, &rec.UsedAt); err != nil {
		return nil, errors.New("invalid verification record")
	}

	for _, dst := range []*string{&rec.ID, &rec.UserID, &rec.Payload} {
		var strLen uint16
		if err := binary.Read(reader, binary.BigEndian, &strLen); err != nil {
			return nil, errors.New("invalid verification record")
		}
		raw := make([]byte, strLen)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, errors.New("invalid verification record")
		}
		*dst = string(raw)
	}

	return rec, nil
}
