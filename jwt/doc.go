// Package jwt signs and verifies the two token classes used by tokengate.
//
// Access and refresh tokens share one claims shape but are signed with
// distinct HMAC secrets and carry a class tag, so a token of one class can
// never verify as the other even if an attacker swaps endpoints.
// Verification is a pure synchronous function of the token string and the
// manager configuration; no I/O, no callbacks.
package jwt
