// Package rate provides Redis-backed fixed-window counters for login
// throttling.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - tg:al:  — login per-identifier
//   - tg:ali: — login per-IP
//
// # What this package must NOT do
//
//   - Decide what to do when a limit trips (the engine maps errors).
//   - Be imported outside the tokengate module.
package rate
