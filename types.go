package tokengate

import (
	"context"
	"time"
)

// UserProvider is the interface callers implement to integrate tokengate
// with their user database. The [userstore] package ships a Redis-backed
// implementation; any keyed store works.
//
// CreateUser must fail with an error wrapping [ErrProviderDuplicateIdentifier]
// when the identifier already exists.
type UserProvider interface {
	GetUserByIdentifier(ctx context.Context, identifier string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
}

// UserRecord is the stored account record. PasswordHash never leaves the
// Engine: response types carry [Identity] instead.
type UserRecord struct {
	UserID       string
	Identifier   string
	PasswordHash string
	CreatedAt    time.Time
}

// CreateUserInput carries the fields persisted for a new account.
type CreateUserInput struct {
	Identifier   string
	PasswordHash string
}

// Identity is the safe-to-return projection of a UserRecord.
type Identity struct {
	UserID     string    `json:"id"`
	Identifier string    `json:"identifier"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TokenPair bundles the two tokens issued together on register, login,
// and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RegisterResult is returned by [Engine.Register].
type RegisterResult struct {
	Identity Identity
	Tokens   TokenPair
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	UserID string
	Tokens TokenPair
}

// AuthResult is returned by [Engine.ValidateAccess] and attached to the
// request context by middleware.Guard.
type AuthResult struct {
	UserID    string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func identityOf(u UserRecord) Identity {
	return Identity{
		UserID:     u.UserID,
		Identifier: u.Identifier,
		CreatedAt:  u.CreatedAt,
	}
}
