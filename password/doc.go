// Package password hashes and verifies user secrets with argon2id.
//
// Hashes use the PHC string format, so parameters travel with the hash and
// can be tuned without invalidating stored credentials. Comparison is
// constant-time. DummyVerify burns a comparable amount of work for lookups
// that miss, closing the user-enumeration timing channel.
package password
