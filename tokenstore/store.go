package tokenstore

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrDuplicate is returned by Insert when the exact raw token already
	// has a record. With jti-bearing tokens this indicates a caller bug.
	ErrDuplicate = errors.New("refresh record already exists")
	// ErrRedisUnavailable wraps any Redis transport or script failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// rotateScript deletes the consumed record and installs the successor in one
// atomic step. Returns 1 when this caller consumed the old record, 0 when it
// was already gone (lost race, revoked, or never issued).
const rotateScript = `
local existed = redis.call("EXISTS", KEYS[1])
if existed == 0 then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
return 1
`

var rotateLua = redis.NewScript(rotateScript)

// Store is a Redis-backed refresh-token record set.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a Store using prefix as the Redis key namespace.
func New(client redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:  client,
		prefix: prefix,
	}
}

func (s *Store) key(rawToken string) string {
	digest := sha256.Sum256([]byte(rawToken))
	return s.prefix + ":" + base64.RawURLEncoding.EncodeToString(digest[:])
}

// Insert adds a record for rawToken with the given lifetime.
func (s *Store) Insert(ctx context.Context, rawToken string, ttl time.Duration) error {
	ok, err := s.redis.SetNX(ctx, s.key(rawToken), recordValue(), ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !ok {
		return ErrDuplicate
	}
	return nil
}

// Contains reports whether a record for rawToken currently exists.
func (s *Store) Contains(ctx context.Context, rawToken string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(rawToken)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// Remove deletes the record for rawToken if present. Removing an absent
// record is not an error; the returned bool tells the caller whether a
// record actually existed.
func (s *Store) Remove(ctx context.Context, rawToken string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(rawToken)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// Rotate atomically consumes oldRawToken's record and installs a record for
// newRawToken with the given lifetime. Returns false when the old record was
// absent — the caller lost the race or presented a revoked token — in which
// case no new record is written.
func (s *Store) Rotate(ctx context.Context, oldRawToken, newRawToken string, ttl time.Duration) (bool, error) {
	res, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.key(oldRawToken), s.key(newRawToken)},
		recordValue(),
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return res == 1, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

// recordValue is the stored payload. Identity is recoverable by decoding the
// token itself, so the record only needs to exist; the issue timestamp is
// kept for operator inspection.
func recordValue() string {
	return time.Now().UTC().Format(time.RFC3339)
}
