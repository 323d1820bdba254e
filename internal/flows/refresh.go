package flows

import "context"

// RefreshResult is the flow-local refresh response shape.
type RefreshResult struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

// RefreshMetrics carries metric IDs needed by the refresh flow.
type RefreshMetrics struct {
	Success  int
	NotFound int
	Invalid  int
}

// RefreshEvents carries audit event names used by the refresh flow.
type RefreshEvents struct {
	Success string
	Failure string
}

// RefreshErrors carries host-level sentinel errors used by the refresh flow.
type RefreshErrors struct {
	EngineNotReady   error
	MissingToken     error
	RefreshNotFound  error
	TokenInvalid     error
	StoreUnavailable error
}

// RefreshDeps captures refresh dependencies.
type RefreshDeps struct {
	StoreContains func(context.Context, string) (bool, error)
	ParseRefresh  func(string) (string, error)
	RemoveRecord  func(context.Context, string) (bool, error)
	MintPair      func(string) (string, string, error)
	Rotate        func(context.Context, string, string) (bool, error)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, error, func() map[string]string)

	Metrics RefreshMetrics
	Events  RefreshEvents
	Errors  RefreshErrors
}

// RunRefresh exchanges a live refresh token for a new pair and rotates the
// store record atomically. The store is consulted before the signature so a
// revoked token reads as "not found" even when its signature still verifies;
// a token that has a record but fails verification gets its record removed.
//
// Under concurrent presentation of one token exactly one caller wins the
// rotation; losers are told the token was not found.
func RunRefresh(ctx context.Context, rawToken string, deps RefreshDeps) (*RefreshResult, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if deps.StoreContains == nil ||
		deps.ParseRefresh == nil ||
		deps.MintPair == nil ||
		deps.Rotate == nil {
		return nil, deps.Errors.EngineNotReady
	}

	if rawToken == "" {
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", deps.Errors.MissingToken, func() map[string]string {
			return map[string]string{"reason": "missing_token"}
		})
		return nil, deps.Errors.MissingToken
	}

	present, err := deps.StoreContains(ctx, rawToken)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", err, func() map[string]string {
			return map[string]string{"reason": "store_failure"}
		})
		return nil, err
	}
	if !present {
		deps.MetricInc(deps.Metrics.NotFound)
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", deps.Errors.RefreshNotFound, func() map[string]string {
			return map[string]string{"reason": "record_absent"}
		})
		return nil, deps.Errors.RefreshNotFound
	}

	userID, err := deps.ParseRefresh(rawToken)
	if err != nil {
		// A record exists for a token that no longer verifies (expired or
		// corrupt). Drop the record so the store cannot accumulate garbage.
		if deps.RemoveRecord != nil {
			_, _ = deps.RemoveRecord(ctx, rawToken)
		}
		deps.MetricInc(deps.Metrics.Invalid)
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", deps.Errors.TokenInvalid, func() map[string]string {
			return map[string]string{"reason": "verification_failed"}
		})
		return nil, deps.Errors.TokenInvalid
	}

	access, refresh, err := deps.MintPair(userID)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.Failure, false, userID, err, func() map[string]string {
			return map[string]string{"reason": "mint_failed"}
		})
		return nil, err
	}

	won, err := deps.Rotate(ctx, rawToken, refresh)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.Failure, false, userID, err, func() map[string]string {
			return map[string]string{"reason": "store_failure"}
		})
		return nil, err
	}
	if !won {
		deps.MetricInc(deps.Metrics.NotFound)
		deps.EmitAudit(ctx, deps.Events.Failure, false, userID, deps.Errors.RefreshNotFound, func() map[string]string {
			return map[string]string{"reason": "lost_rotation"}
		})
		return nil, deps.Errors.RefreshNotFound
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, userID, nil, nil)

	return &RefreshResult{
		UserID:       userID,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}
