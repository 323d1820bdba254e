package flows

import "context"

// LogoutResult reports whether a live record was actually revoked.
type LogoutResult struct {
	Removed bool
}

// LogoutEvents carries audit event names used by the logout flow.
type LogoutEvents struct {
	Logout string
}

// LogoutErrors carries host-level sentinel errors used by the logout flow.
type LogoutErrors struct {
	EngineNotReady error
}

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	RemoveRecord func(context.Context, string) (bool, error)
	ParseRefresh func(string) (string, error)

	MetricInc func(int)
	MetricID  int
	EmitAudit func(context.Context, string, bool, string, error, func() map[string]string)

	Events LogoutEvents
	Errors LogoutErrors
}

// RunLogout revokes the presented refresh token by deleting its record.
// Idempotent: revoking an absent, expired, or garbage token succeeds. Only a
// store failure surfaces as an error.
func RunLogout(ctx context.Context, rawToken string, deps LogoutDeps) (*LogoutResult, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if deps.RemoveRecord == nil {
		return nil, deps.Errors.EngineNotReady
	}

	if rawToken == "" {
		return &LogoutResult{Removed: false}, nil
	}

	removed, err := deps.RemoveRecord(ctx, rawToken)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.Logout, false, "", err, func() map[string]string {
			return map[string]string{"reason": "store_failure"}
		})
		return nil, err
	}

	// Identity is best effort: the token may be expired or garbage, and
	// logout succeeds regardless.
	userID := ""
	if deps.ParseRefresh != nil {
		if uid, err := deps.ParseRefresh(rawToken); err == nil {
			userID = uid
		}
	}

	deps.MetricInc(deps.MetricID)
	deps.EmitAudit(ctx, deps.Events.Logout, true, userID, nil, func() map[string]string {
		if removed {
			return map[string]string{"revoked": "true"}
		}
		return map[string]string{"revoked": "false"}
	})

	return &LogoutResult{Removed: removed}, nil
}
