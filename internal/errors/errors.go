// Package errors defines sentinel errors shared across the auth and chat
// packages. Callers branch with errors.Is rather than matching message text.
package errors

import "errors"

// Authorization flow errors.
var (
	// ErrMissingClientConfig means no OAuth client configuration is
	// available. This is a setup problem; retrying cannot fix it.
	ErrMissingClientConfig = errors.New("OAuth client configuration not found")

	// ErrUnknownState rejects callbacks whose state matches no pending
	// authorization session: replays, duplicates, and stale links from
	// before a restart.
	ErrUnknownState = errors.New("unknown or expired authorization state")

	// ErrProviderDenied means the provider (or the user at the consent
	// screen) declined the authorization request.
	ErrProviderDenied = errors.New("authorization denied by provider")

	// ErrNoRefreshToken means a token exchange or refresh cannot proceed
	// because no refresh token is available. An exchange that yields only
	// an access token is unusable for an unattended agent.
	ErrNoRefreshToken = errors.New("no refresh token available")
)

// Credential storage and use errors.
var (
	ErrStorageCorrupt  = errors.New("stored token is unreadable")
	ErrUnauthenticated = errors.New("no valid credentials found, authenticate first")
)
