package vault

import "errors"

// Every failure leaving this package wraps one of these sentinels, so callers
// can classify with errors.Is without inspecting messages.
var (
	// ErrAuth covers an unreadable credential file and a rejected login.
	ErrAuth = errors.New("key source authentication failed")

	// ErrKeyFetch covers a missing, empty or malformed unseal key secret.
	ErrKeyFetch = errors.New("unseal key fetch failed")

	// ErrUnreachable marks a transport-level failure talking to a node.
	ErrUnreachable = errors.New("node unreachable")

	// ErrProtocol marks a non-success or malformed response from a node.
	ErrProtocol = errors.New("unexpected node response")

	// ErrUninitialized marks a node that has no master key to reconstruct;
	// submitting shares to it cannot succeed.
	ErrUninitialized = errors.New("node not initialized")
)
