// Package httpapi exposes the engine over HTTP.
//
// NewRouter returns a chi router with the credential and token-lifecycle
// routes plus a guard-protected passthrough route. Engine sentinel errors
// map onto HTTP statuses in one place (statusFromError); handlers never
// leak internal error text to clients.
package httpapi
