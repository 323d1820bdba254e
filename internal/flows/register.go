package flows

import (
	"context"
	"time"
)

// RegisterUserRecord is a flow-local user model returned by account creation.
type RegisterUserRecord struct {
	UserID     string
	Identifier string
	CreatedAt  time.Time
}

// RegisterResult is the flow-local register response shape.
type RegisterResult struct {
	User         RegisterUserRecord
	AccessToken  string
	RefreshToken string
}

// RegisterMetrics carries metric IDs needed by the register flow.
type RegisterMetrics struct {
	Success  int
	Conflict int
}

// RegisterEvents carries audit event names used by the register flow.
type RegisterEvents struct {
	Success string
	Failure string
}

// RegisterErrors carries host-level sentinel errors used by the register flow.
type RegisterErrors struct {
	EngineNotReady   error
	Validation       error
	AccountExists    error
	StoreUnavailable error
}

// RegisterDeps captures register dependencies.
type RegisterDeps struct {
	HashPassword func(string) (string, error)
	CreateUser   func(context.Context, string, string) (RegisterUserRecord, error)
	IsDuplicate  func(error) bool
	IssueTokens  func(context.Context, string) (string, string, error)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, error, func() map[string]string)

	Metrics RegisterMetrics
	Events  RegisterEvents
	Errors  RegisterErrors
}

// RunRegister creates an account and issues its first token pair. The
// refresh record is persisted before the result is returned, so a client
// holding the response can always refresh.
func RunRegister(ctx context.Context, identifier, password string, deps RegisterDeps) (*RegisterResult, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if deps.HashPassword == nil ||
		deps.CreateUser == nil ||
		deps.IsDuplicate == nil ||
		deps.IssueTokens == nil {
		return nil, deps.Errors.EngineNotReady
	}

	if identifier == "" || password == "" {
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", deps.Errors.Validation, func() map[string]string {
			return map[string]string{"reason": "missing_fields"}
		})
		return nil, deps.Errors.Validation
	}

	hash, err := deps.HashPassword(password)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", err, func() map[string]string {
			return map[string]string{"identifier": identifier, "reason": "hash_failed"}
		})
		return nil, err
	}

	user, err := deps.CreateUser(ctx, identifier, hash)
	if err != nil {
		if deps.IsDuplicate(err) {
			deps.MetricInc(deps.Metrics.Conflict)
			deps.EmitAudit(ctx, deps.Events.Failure, false, "", deps.Errors.AccountExists, func() map[string]string {
				return map[string]string{"identifier": identifier, "reason": "duplicate"}
			})
			return nil, deps.Errors.AccountExists
		}
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", err, func() map[string]string {
			return map[string]string{"identifier": identifier, "reason": "provider_failure"}
		})
		return nil, err
	}

	access, refresh, err := deps.IssueTokens(ctx, user.UserID)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.Failure, false, user.UserID, err, func() map[string]string {
			return map[string]string{"reason": "token_issue_failed"}
		})
		return nil, err
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, user.UserID, nil, nil)

	return &RegisterResult{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}
