// Package tokenstore persists refresh-token records in Redis.
//
// The store is a revocation list by absence: a refresh token is only valid
// while its record exists, so deleting the record revokes the token without
// touching its signature. Keys are SHA-256 digests of the raw token — raw
// bearer material is never written server side — and every record carries
// the refresh TTL so Redis expiry tracks token expiry.
//
// Rotate is the concurrency-critical operation: a Lua compare-and-delete
// guarantees that of N concurrent rotations of one token exactly one wins
// and the rest observe the record as already gone.
package tokenstore
