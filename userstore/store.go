// Package userstore provides a Redis-backed [tokengate.UserProvider].
//
// It exists so the server binary runs end to end without a relational
// database; applications with their own user tables implement the provider
// interface against those instead.
package userstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	tokengate "github.com/tokengate/tokengate"
)

// ErrRedisUnavailable wraps Redis transport failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Store keeps user records under two key families: an identifier index and
// the record body keyed by user ID.
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

func (s *Store) idKey(userID string) string {
	return s.prefix + ":id:" + userID
}

func (s *Store) identKey(identifier string) string {
	return s.prefix + ":ident:" + identifier
}

type storedUser struct {
	UserID       string    `json:"uid"`
	Identifier   string    `json:"ident"`
	PasswordHash string    `json:"hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateUser persists a new record. The identifier index is claimed with
// SETNX, so concurrent registrations of one identifier yield exactly one
// winner; losers get [tokengate.ErrProviderDuplicateIdentifier].
func (s *Store) CreateUser(ctx context.Context, input tokengate.CreateUserInput) (tokengate.UserRecord, error) {
	record := storedUser{
		UserID:       uuid.NewString(),
		Identifier:   input.Identifier,
		PasswordHash: input.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}

	claimed, err := s.redis.SetNX(ctx, s.identKey(input.Identifier), record.UserID, 0).Result()
	if err != nil {
		return tokengate.UserRecord{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !claimed {
		return tokengate.UserRecord{}, tokengate.ErrProviderDuplicateIdentifier
	}

	data, err := json.Marshal(record)
	if err != nil {
		return tokengate.UserRecord{}, err
	}
	if err := s.redis.Set(ctx, s.idKey(record.UserID), data, 0).Err(); err != nil {
		// Roll back the index claim so the identifier is not wedged.
		_ = s.redis.Del(ctx, s.identKey(input.Identifier)).Err()
		return tokengate.UserRecord{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return toRecord(record), nil
}

// GetUserByIdentifier resolves the identifier index and loads the record.
func (s *Store) GetUserByIdentifier(ctx context.Context, identifier string) (tokengate.UserRecord, error) {
	userID, err := s.redis.Get(ctx, s.identKey(identifier)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return tokengate.UserRecord{}, tokengate.ErrUserNotFound
		}
		return tokengate.UserRecord{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return s.GetUserByID(ctx, userID)
}

// GetUserByID loads a record by user ID.
func (s *Store) GetUserByID(ctx context.Context, userID string) (tokengate.UserRecord, error) {
	data, err := s.redis.Get(ctx, s.idKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return tokengate.UserRecord{}, tokengate.ErrUserNotFound
		}
		return tokengate.UserRecord{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var record storedUser
	if err := json.Unmarshal(data, &record); err != nil {
		return tokengate.UserRecord{}, fmt.Errorf("corrupt user record: %w", err)
	}

	return toRecord(record), nil
}

func toRecord(u storedUser) tokengate.UserRecord {
	return tokengate.UserRecord{
		UserID:       u.UserID,
		Identifier:   u.Identifier,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}
