package tokengate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tokengate/tokengate/internal/flows"
	"github.com/tokengate/tokengate/internal/rate"
	"github.com/tokengate/tokengate/jwt"
	"github.com/tokengate/tokengate/password"
	"github.com/tokengate/tokengate/tokenstore"
)

// Engine is the public entry point. Build one with [Builder], share it across
// goroutines, and call Close on shutdown to drain the audit pipeline.
type Engine struct {
	config  Config
	jwt     *jwt.Manager
	hasher  *password.Hasher
	tokens  *tokenstore.Store
	users   UserProvider
	limiter *rate.Limiter // nil when rate limiting is disabled
	audit   *auditDispatcher
	metrics *Metrics
}

func (e *Engine) ready() bool {
	return e != nil && e.jwt != nil && e.hasher != nil && e.tokens != nil && e.users != nil
}

// storeCtx bounds a store call so a hung backend cannot stall a request.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Limits.StoreTimeout)
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (e *Engine) flowAudit(ctx context.Context, event string, success bool, userID string, cause error, fields func() map[string]string) {
	if e.audit == nil || event == "" {
		return
	}

	entry := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: event,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if fields != nil {
		entry.Metadata = fields()
	}

	e.audit.Emit(ctx, entry)
}

func (e *Engine) metricInc(id int) {
	e.metrics.Inc(MetricID(id))
}

// issueTokens mints an access/refresh pair and persists the refresh record
// before returning. Persist-then-respond: if the record cannot be written the
// pair is withheld and the caller sees ErrStoreUnavailable.
func (e *Engine) issueTokens(ctx context.Context, userID string) (string, string, error) {
	access, err := e.jwt.CreateAccess(userID)
	if err != nil {
		return "", "", err
	}
	refresh, err := e.jwt.CreateRefresh(userID)
	if err != nil {
		return "", "", err
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.tokens.Insert(sctx, refresh, e.config.JWT.RefreshTTL); err != nil {
		e.metrics.Inc(MetricPersistAnomaly)
		e.flowAudit(ctx, EventPersistAnomaly, false, userID, err, nil)
		return "", "", storeErr(err)
	}

	return access, refresh, nil
}

// Register creates an account and returns its identity plus a first token
// pair. The password hash never appears in the result.
func (e *Engine) Register(ctx context.Context, identifier, secret string) (*RegisterResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	deps := flows.RegisterDeps{
		HashPassword: func(secret string) (string, error) {
			hash, err := e.hasher.Hash(secret)
			if err != nil {
				if errors.Is(err, password.ErrSecretTooShort) {
					return "", fmt.Errorf("%w: %v", ErrValidation, err)
				}
				return "", err
			}
			return hash, nil
		},
		CreateUser: func(ctx context.Context, identifier, hash string) (flows.RegisterUserRecord, error) {
			sctx, cancel := e.storeCtx(ctx)
			defer cancel()

			record, err := e.users.CreateUser(sctx, CreateUserInput{
				Identifier:   identifier,
				PasswordHash: hash,
			})
			if err != nil {
				if errors.Is(err, ErrProviderDuplicateIdentifier) {
					return flows.RegisterUserRecord{}, err
				}
				return flows.RegisterUserRecord{}, storeErr(err)
			}
			return flows.RegisterUserRecord{
				UserID:     record.UserID,
				Identifier: record.Identifier,
				CreatedAt:  record.CreatedAt,
			}, nil
		},
		IsDuplicate: func(err error) bool { return errors.Is(err, ErrProviderDuplicateIdentifier) },
		IssueTokens: e.issueTokens,
		MetricInc:   e.metricInc,
		EmitAudit:   e.flowAudit,
		Metrics: flows.RegisterMetrics{
			Success:  int(MetricRegisterSuccess),
			Conflict: int(MetricRegisterConflict),
		},
		Events: flows.RegisterEvents{
			Success: EventRegisterSuccess,
			Failure: EventRegisterFailure,
		},
		Errors: flows.RegisterErrors{
			EngineNotReady:   ErrEngineNotReady,
			Validation:       ErrValidation,
			AccountExists:    ErrAccountExists,
			StoreUnavailable: ErrStoreUnavailable,
		},
	}

	result, err := flows.RunRegister(ctx, identifier, secret, deps)
	if err != nil {
		return nil, err
	}

	return &RegisterResult{
		Identity: Identity{
			UserID:     result.User.UserID,
			Identifier: result.User.Identifier,
			CreatedAt:  result.User.CreatedAt,
		},
		Tokens: TokenPair{
			AccessToken:  result.AccessToken,
			RefreshToken: result.RefreshToken,
		},
	}, nil
}

// Login verifies credentials and issues a fresh token pair.
func (e *Engine) Login(ctx context.Context, identifier, secret string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	deps := flows.LoginDeps{
		ClientIPFromContext: clientIPFromContext,
		GetUserByIdentifier: func(ctx context.Context, identifier string) (flows.LoginUserRecord, error) {
			sctx, cancel := e.storeCtx(ctx)
			defer cancel()

			record, err := e.users.GetUserByIdentifier(sctx, identifier)
			if err != nil {
				if errors.Is(err, ErrUserNotFound) {
					return flows.LoginUserRecord{}, err
				}
				return flows.LoginUserRecord{}, storeErr(err)
			}
			return flows.LoginUserRecord{
				UserID:       record.UserID,
				Identifier:   record.Identifier,
				PasswordHash: record.PasswordHash,
			}, nil
		},
		IsUserNotFound: func(err error) bool { return errors.Is(err, ErrUserNotFound) },
		VerifyPassword: func(hash, candidate string) (bool, error) {
			return e.hasher.Verify(candidate, hash)
		},
		DummyVerify: e.hasher.DummyVerify,
		IssueTokens: e.issueTokens,
		MetricInc:   e.metricInc,
		EmitAudit:   e.flowAudit,
		Metrics: flows.LoginMetrics{
			Success:     int(MetricLoginSuccess),
			Failure:     int(MetricLoginFailure),
			RateLimited: int(MetricLoginRateLimited),
		},
		Events: flows.LoginEvents{
			Success:     EventLoginSuccess,
			Failure:     EventLoginFailure,
			RateLimited: EventLoginRateLimited,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			Validation:         ErrValidation,
			InvalidCredentials: ErrInvalidCredentials,
			LoginRateLimited:   ErrLoginRateLimited,
		},
	}

	if e.limiter != nil {
		// The limiter fails open: a Redis hiccup on the counter keys must not
		// lock every user out of login.
		deps.CheckLoginRate = func(ctx context.Context, identifier, ip string) error {
			err := e.limiter.CheckLogin(ctx, identifier, ip)
			if err != nil && !errors.Is(err, rate.ErrRateLimited) {
				return nil
			}
			return err
		}
		deps.IncrementLoginRate = func(ctx context.Context, identifier, ip string) error {
			err := e.limiter.IncrementLogin(ctx, identifier, ip)
			if err != nil && !errors.Is(err, rate.ErrRateLimited) {
				return nil
			}
			return err
		}
		deps.ResetLoginRate = e.limiter.ResetLogin
	}

	result, err := flows.RunLogin(ctx, identifier, secret, deps)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		UserID: result.UserID,
		Tokens: TokenPair{
			AccessToken:  result.AccessToken,
			RefreshToken: result.RefreshToken,
		},
	}, nil
}

// Refresh exchanges a live refresh token for a new pair. The old token is
// consumed atomically; presenting it again reports ErrRefreshNotFound.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	deps := flows.RefreshDeps{
		StoreContains: func(ctx context.Context, raw string) (bool, error) {
			sctx, cancel := e.storeCtx(ctx)
			defer cancel()

			ok, err := e.tokens.Contains(sctx, raw)
			if err != nil {
				return false, storeErr(err)
			}
			return ok, nil
		},
		ParseRefresh: func(raw string) (string, error) {
			claims, err := e.jwt.ParseRefresh(raw)
			if err != nil {
				return "", err
			}
			return claims.UID, nil
		},
		RemoveRecord: func(ctx context.Context, raw string) (bool, error) {
			sctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.tokens.Remove(sctx, raw)
		},
		MintPair: func(userID string) (string, string, error) {
			access, err := e.jwt.CreateAccess(userID)
			if err != nil {
				return "", "", err
			}
			refresh, err := e.jwt.CreateRefresh(userID)
			if err != nil {
				return "", "", err
			}
			return access, refresh, nil
		},
		Rotate: func(ctx context.Context, oldRaw, newRaw string) (bool, error) {
			sctx, cancel := e.storeCtx(ctx)
			defer cancel()

			won, err := e.tokens.Rotate(sctx, oldRaw, newRaw, e.config.JWT.RefreshTTL)
			if err != nil {
				return false, storeErr(err)
			}
			return won, nil
		},
		MetricInc: e.metricInc,
		EmitAudit: e.flowAudit,
		Metrics: flows.RefreshMetrics{
			Success:  int(MetricRefreshSuccess),
			NotFound: int(MetricRefreshNotFound),
			Invalid:  int(MetricRefreshInvalid),
		},
		Events: flows.RefreshEvents{
			Success: EventRefreshSuccess,
			Failure: EventRefreshFailure,
		},
		Errors: flows.RefreshErrors{
			EngineNotReady:   ErrEngineNotReady,
			MissingToken:     ErrMissingToken,
			RefreshNotFound:  ErrRefreshNotFound,
			TokenInvalid:     ErrTokenInvalid,
			StoreUnavailable: ErrStoreUnavailable,
		},
	}

	result, err := flows.RunRefresh(ctx, refreshToken, deps)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}, nil
}

// Logout revokes the presented refresh token. Idempotent: revoking an
// absent, expired, or garbage token succeeds. The returned bool reports
// whether a live record was actually deleted.
func (e *Engine) Logout(ctx context.Context, refreshToken string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}

	deps := flows.LogoutDeps{
		RemoveRecord: func(ctx context.Context, raw string) (bool, error) {
			sctx, cancel := e.storeCtx(ctx)
			defer cancel()

			removed, err := e.tokens.Remove(sctx, raw)
			if err != nil {
				return false, storeErr(err)
			}
			return removed, nil
		},
		ParseRefresh: func(raw string) (string, error) {
			claims, err := e.jwt.ParseRefresh(raw)
			if err != nil {
				return "", err
			}
			return claims.UID, nil
		},
		MetricInc: e.metricInc,
		MetricID:  int(MetricLogout),
		EmitAudit: e.flowAudit,
		Events: flows.LogoutEvents{
			Logout: EventLogout,
		},
		Errors: flows.LogoutErrors{
			EngineNotReady: ErrEngineNotReady,
		},
	}

	result, err := flows.RunLogout(ctx, refreshToken, deps)
	if err != nil {
		return false, err
	}
	return result.Removed, nil
}

// ValidateAccess verifies an access token locally. No store round-trip: this
// is the hot path called on every protected request. All failure modes
// collapse into ErrUnauthorized.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	deps := flows.ValidateDeps{
		ParseAccess: func(raw string) (flows.ValidateResult, error) {
			claims, err := e.jwt.ParseAccess(raw)
			if err != nil {
				return flows.ValidateResult{}, err
			}
			return flows.ValidateResult{
				UserID:    claims.UID,
				TokenID:   claims.ID,
				IssuedAt:  claims.IssuedAt.Time,
				ExpiresAt: claims.ExpiresAt.Time,
			}, nil
		},
		MetricInc: e.metricInc,
		Metrics: flows.ValidateMetrics{
			Success: int(MetricValidateSuccess),
			Failure: int(MetricValidateFailure),
		},
		Errors: flows.ValidateErrors{
			EngineNotReady: ErrEngineNotReady,
			Unauthorized:   ErrUnauthorized,
		},
	}

	result, err := flows.RunValidate(ctx, accessToken, deps)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		UserID:    result.UserID,
		TokenID:   result.TokenID,
		IssuedAt:  result.IssuedAt,
		ExpiresAt: result.ExpiresAt,
	}, nil
}

// Ping checks token-store reachability. Used by health endpoints.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	latency, err := e.tokens.Ping(sctx)
	if err != nil {
		return latency, storeErr(err)
	}
	return latency, nil
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// MetricValue returns one counter.
func (e *Engine) MetricValue(id MetricID) uint64 {
	if e == nil {
		return 0
	}
	return e.metrics.Value(id)
}

// AuditDropped reports events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Close drains the audit pipeline. The Engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}
