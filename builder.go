package tokengate

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/tokengate/tokengate/internal/rate"
	"github.com/tokengate/tokengate/jwt"
	"github.com/tokengate/tokengate/password"
	"github.com/tokengate/tokengate/tokenstore"
)

// Builder assembles an Engine. A Builder is single-use: Build can be called
// once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider UserProvider
	auditSink    AuditSink

	built bool
}

// New returns a Builder preloaded with [DefaultConfig]. Signing secrets must
// still be supplied before Build.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the entire configuration. The config is cloned, so
// later mutations of cfg by the caller do not reach the Engine.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the token store, the bundled user
// store, and the rate limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider sets the identity backend.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets the audit event consumer. Without one, events go to a
// no-op sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the counter set.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires every component, and returns a
// ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	manager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RateLimit.MaxLoginAttempts > 0 {
		limiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:      cfg.RateLimit.EnableIPThrottle,
			MaxLoginAttempts:      cfg.RateLimit.MaxLoginAttempts,
			LoginCooldownDuration: cfg.RateLimit.LoginCooldownDuration,
		})
	}

	b.built = true

	return &Engine{
		config:  cfg,
		jwt:     manager,
		hasher:  hasher,
		tokens:  tokenstore.New(b.redis, cfg.Store.RefreshPrefix),
		users:   b.userProvider,
		limiter: limiter,
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
	}, nil
}
