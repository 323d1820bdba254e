package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Class distinguishes the two token kinds in the "cls" claim.
type Class string

const (
	ClassAccess  Class = "access"
	ClassRefresh Class = "refresh"
)

var (
	// ErrTokenInvalid covers malformed structure, signature mismatch, and
	// expiry failures.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrWrongClass is returned when a structurally valid token of one
	// class is presented where the other is expected.
	ErrWrongClass = errors.New("wrong token class")
)

// Config carries per-class signing secrets and lifetimes. The secrets must
// differ; NewManager enforces minimum length but equality is checked by the
// caller's config validation.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Leeway        time.Duration
}

// Claims is the payload of both token classes.
type Claims struct {
	UID   string `json:"uid"`
	Class Class  `json:"cls"`
	jwt.RegisteredClaims
}

// Manager mints and verifies tokens. Immutable after construction and safe
// for concurrent use.
type Manager struct {
	config Config
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, errors.New("access TTL must be shorter than refresh TTL")
	}
	if len(cfg.AccessSecret) < 32 || len(cfg.RefreshSecret) < 32 {
		return nil, errors.New("signing secrets must be at least 32 bytes")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Manager{config: cfg}, nil
}

// CreateAccess mints a short-lived access token for uid.
func (m *Manager) CreateAccess(uid string) (string, error) {
	return m.create(uid, ClassAccess, m.config.AccessTTL, m.config.AccessSecret)
}

// CreateRefresh mints a refresh token for uid. The embedded jti makes every
// issued token unique even for the same uid within one clock tick, so the
// revocation store never sees key collisions.
func (m *Manager) CreateRefresh(uid string) (string, error) {
	return m.create(uid, ClassRefresh, m.config.RefreshTTL, m.config.RefreshSecret)
}

func (m *Manager) create(uid string, class Class, ttl time.Duration, secret []byte) (string, error) {
	now := time.Now()
	claims := Claims{
		UID:   uid,
		Class: class,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseAccess verifies an access token and returns its claims.
func (m *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, ClassAccess, m.config.AccessSecret)
}

// ParseRefresh verifies a refresh token and returns its claims. A store
// lookup is still required before trusting the token for rotation.
func (m *Manager) ParseRefresh(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, ClassRefresh, m.config.RefreshSecret)
}

func (m *Manager) parse(tokenStr string, class Class, secret []byte) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.UID == "" {
		return nil, ErrTokenInvalid
	}
	if claims.Class != class {
		return nil, ErrWrongClass
	}

	return claims, nil
}
