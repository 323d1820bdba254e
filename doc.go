// Package tokengate issues and validates short-lived JWT access tokens and
// longer-lived, revocable JWT refresh tokens for user-authentication APIs.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// tokengate is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (Identity, AuthResult, MetricsSnapshot). Flow orchestration
// lives under internal/ and is never exported. Crypto and persistence
// primitives live in focused subpackages: jwt (signing), password (argon2id
// hashing), tokenstore (refresh-token revocation records), userstore (an
// optional Redis-backed [UserProvider]).
//
// # Token model
//
// Access tokens are stateless: validity is determined purely by signature and
// expiry, so they cannot be revoked before natural expiry. Refresh tokens are
// signed the same way but are additionally backed by a persisted record; a
// refresh token with no matching record is invalid regardless of its
// signature. Deleting the record — on logout or rotation — revokes it.
//
// # Performance contract
//
// ValidateAccess is the hot path and completes without any store round-trip.
// Register, Login, Refresh, and Logout are allowed store round-trips; each
// runs under the bounded timeout in Config.Limits.
package tokengate
