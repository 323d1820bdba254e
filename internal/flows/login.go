package flows

import "context"

// LoginUserRecord is a flow-local user model used by the login flow.
type LoginUserRecord struct {
	UserID       string
	Identifier   string
	PasswordHash string
}

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	Success     int
	Failure     int
	RateLimited int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	Success     string
	Failure     string
	RateLimited string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	Validation         error
	InvalidCredentials error
	LoginRateLimited   error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	ClientIPFromContext func(context.Context) string

	CheckLoginRate     func(context.Context, string, string) error
	IncrementLoginRate func(context.Context, string, string) error
	ResetLoginRate     func(context.Context, string, string) error

	GetUserByIdentifier func(context.Context, string) (LoginUserRecord, error)
	IsUserNotFound      func(error) bool
	VerifyPassword      func(string, string) (bool, error)
	DummyVerify         func(string)
	IssueTokens         func(context.Context, string) (string, string, error)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, error, func() map[string]string)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin verifies credentials and issues a fresh token pair. Unknown
// identifiers and wrong passwords are indistinguishable to the caller; the
// dummy verification keeps their timing close as well.
func RunLogin(ctx context.Context, identifier, password string, deps LoginDeps) (*LoginResult, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.GetUserByIdentifier == nil ||
		deps.IsUserNotFound == nil ||
		deps.VerifyPassword == nil ||
		deps.IssueTokens == nil {
		return nil, deps.Errors.EngineNotReady
	}

	if identifier == "" || password == "" {
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", deps.Errors.Validation, func() map[string]string {
			return map[string]string{"reason": "missing_fields"}
		})
		return nil, deps.Errors.Validation
	}

	ip := deps.ClientIPFromContext(ctx)

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, identifier, ip); err != nil {
			deps.MetricInc(deps.Metrics.RateLimited)
			deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", deps.Errors.LoginRateLimited, func() map[string]string {
				return map[string]string{"identifier": identifier}
			})
			return nil, deps.Errors.LoginRateLimited
		}
	}

	failAttempt := func(reason string) error {
		if deps.IncrementLoginRate != nil {
			if err := deps.IncrementLoginRate(ctx, identifier, ip); err != nil {
				deps.MetricInc(deps.Metrics.RateLimited)
				deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", deps.Errors.LoginRateLimited, func() map[string]string {
					return map[string]string{"identifier": identifier}
				})
				return deps.Errors.LoginRateLimited
			}
		}
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{"identifier": identifier, "reason": reason}
		})
		return deps.Errors.InvalidCredentials
	}

	user, err := deps.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if deps.IsUserNotFound(err) {
			// Burn comparable work so unknown identifiers do not return
			// measurably faster than wrong passwords.
			if deps.DummyVerify != nil {
				deps.DummyVerify(password)
			}
			return nil, failAttempt("user_not_found")
		}
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", err, func() map[string]string {
			return map[string]string{"identifier": identifier, "reason": "provider_failure"}
		})
		return nil, err
	}

	ok, err := deps.VerifyPassword(user.PasswordHash, password)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.Failure, false, user.UserID, err, func() map[string]string {
			return map[string]string{"reason": "verify_failed"}
		})
		return nil, err
	}
	if !ok {
		return nil, failAttempt("password_mismatch")
	}

	if deps.ResetLoginRate != nil {
		// Best effort; a failed reset only shortens the budget.
		_ = deps.ResetLoginRate(ctx, identifier, ip)
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

	return &LoginResult{
		UserID:       user.UserID,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}
