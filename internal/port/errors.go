package port

import "errors"

// Sentinel errors used across ports.
var (
	// ErrUpstreamUnavailable marks embedding/completion endpoint failures
	// (unreachable, non-2xx, or timed out). Handlers map it to 502 so the
	// caller can distinguish "try again" from an empty corpus or bad input.
	ErrUpstreamUnavailable = errors.New("ai service unavailable")

	ErrRepoNotFound   = errors.New("repository not found")
	ErrCommitNotFound = errors.New("commit not found")
	ErrEmptyQuestion  = errors.New("question is empty")
)
