package flows

import (
	"context"
	"time"
)

// ValidateResult is the flow-local access-token verification result.
type ValidateResult struct {
	UserID    string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ValidateMetrics carries metric IDs needed by the validate flow.
type ValidateMetrics struct {
	Success int
	Failure int
}

// ValidateErrors carries host-level sentinel errors used by the validate flow.
type ValidateErrors struct {
	EngineNotReady error
	Unauthorized   error
}

// ValidateDeps captures validate dependencies.
type ValidateDeps struct {
	ParseAccess func(string) (ValidateResult, error)

	MetricInc func(int)

	Metrics ValidateMetrics
	Errors  ValidateErrors
}

// RunValidate verifies an access token by signature and claims alone. No
// store round-trip happens here; this is the hot path and must stay local.
// All failure modes collapse into a single opaque error.
func RunValidate(_ context.Context, rawToken string, deps ValidateDeps) (*ValidateResult, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.ParseAccess == nil {
		return nil, deps.Errors.EngineNotReady
	}

	if rawToken == "" {
		deps.MetricInc(deps.Metrics.Failure)
		return nil, deps.Errors.Unauthorized
	}

	result, err := deps.ParseAccess(rawToken)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		return nil, deps.Errors.Unauthorized
	}

	deps.MetricInc(deps.Metrics.Success)
	return &result, nil
}
