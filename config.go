package tokengate

import (
	"crypto/subtle"
	"errors"
	"time"
)

// Config carries every tunable the Engine reads. Instances are configured
// during initialization and treated as immutable afterwards.
type Config struct {
	JWT       JWTConfig
	Password  PasswordConfig
	Store     StoreConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Limits    LimitsConfig
}

// JWTConfig configures the token issuer. The two secrets MUST differ: a
// refresh token signed with the access secret (or vice versa) must never
// verify, even before the class claim is checked.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Leeway        time.Duration
}

// PasswordConfig configures argon2id hashing.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// StoreConfig configures Redis key namespaces.
type StoreConfig struct {
	RefreshPrefix string
	UserPrefix    string
}

// RateLimitConfig configures the optional login attempt limiter.
// Disabled when MaxLoginAttempts is zero.
type RateLimitConfig struct {
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	EnableIPThrottle      bool
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables the atomic counter set.
type MetricsConfig struct {
	Enabled bool
}

// LimitsConfig bounds every store and identity-store call so a hung backend
// surfaces as ErrStoreUnavailable instead of blocking the request forever.
type LimitsConfig struct {
	StoreTimeout time.Duration
}

// DefaultConfig returns a Config with production-leaning defaults. Signing
// secrets are intentionally left empty and must be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "tokengate",
			Leeway:     30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Store: StoreConfig{
			RefreshPrefix: "tg:rt",
			UserPrefix:    "tg:usr",
		},
		RateLimit: RateLimitConfig{
			MaxLoginAttempts:      0,
			LoginCooldownDuration: 15 * time.Minute,
			EnableIPThrottle:      true,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Limits: LimitsConfig{
			StoreTimeout: 5 * time.Second,
		},
	}
}

// Validate reports the first configuration defect found.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if len(c.JWT.AccessSecret) < 32 {
		return errors.New("access secret must be at least 32 bytes")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		return errors.New("refresh secret must be at least 32 bytes")
	}
	if len(c.JWT.AccessSecret) == len(c.JWT.RefreshSecret) &&
		subtle.ConstantTimeCompare(c.JWT.AccessSecret, c.JWT.RefreshSecret) == 1 {
		return errors.New("access and refresh secrets must differ")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("invalid leeway configuration")
	}
	if c.Store.RefreshPrefix == "" || c.Store.UserPrefix == "" {
		return errors.New("store prefixes must not be empty")
	}
	if c.RateLimit.MaxLoginAttempts > 0 && c.RateLimit.LoginCooldownDuration <= 0 {
		return errors.New("login cooldown must be positive when rate limiting is enabled")
	}
	if c.Limits.StoreTimeout <= 0 {
		return errors.New("store timeout must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
