package tokengate

import "errors"

var (
	// ErrUnauthorized is returned by ValidateAccess for any access-token
	// failure: missing, malformed, wrong class, expired, or bad signature.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned by Login for both unknown
	// identifiers and password mismatches. Intentionally non-specific.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountExists is returned by Register when the identifier is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrValidation is returned when required request fields are missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrMissingToken is returned by Refresh when no refresh token was supplied.
	ErrMissingToken = errors.New("refresh token required")
	// ErrRefreshNotFound is returned by Refresh when no store record matches
	// the presented token. Never-issued and already-revoked tokens are
	// indistinguishable here.
	ErrRefreshNotFound = errors.New("refresh token not found")
	// ErrTokenInvalid is returned when a token fails signature, expiry, or
	// class verification.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrLoginRateLimited is returned when the login attempt budget is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrStoreUnavailable is returned when the token store or identity store
	// fails or times out.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrProviderDuplicateIdentifier must be returned (or wrapped) by
	// UserProvider.CreateUser on identifier collision so Register can map it
	// to ErrAccountExists.
	ErrProviderDuplicateIdentifier = errors.New("provider duplicate identifier")
	// ErrUserNotFound must be returned (or wrapped) by UserProvider lookups
	// when the identifier is unknown. The Engine folds it into
	// ErrInvalidCredentials; any other lookup error maps to
	// ErrStoreUnavailable instead.
	ErrUserNotFound = errors.New("user not found")
	// ErrEngineNotReady is returned when the Engine is used before Build.
	ErrEngineNotReady = errors.New("engine not initialized")
)
