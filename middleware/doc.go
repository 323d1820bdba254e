// Package middleware provides net/http middleware that protects routes with
// access-token verification.
//
// Guard extracts the bearer token, validates it through the Engine, and
// attaches the resulting [tokengate.AuthResult] to the request context where
// handlers read it back with AuthResultFromContext.
package middleware
