// Package compute drives a single remote compute job from submission to
// terminal outcome and exposes its state to the service layer.
package compute

import "context"

// Provider is the contract the orchestrator requires from a compute
// provider, regardless of what machinery backs it.
//
// # Environment readiness
//
// Providers typically need a non-trivial setup before the first
// submission (account funding, asset publication and indexing,
// compute-tier discovery). EnsureReady performs that setup; it must be
// idempotent so a process restart can safely re-invoke it.
// Implementations are expected to call it internally before Submit.
//
// # Status codes
//
// Status returns the provider's raw numeric status code. The orchestrator
// treats any code at or above its configured terminal threshold as
// terminal success and everything below as "still running"; the taxonomy
// below the threshold is opaque provider detail.
type Provider interface {
	// EnsureReady completes the provider-side environment setup.
	// Safe to call repeatedly; a no-op once the environment is ready.
	EnsureReady(ctx context.Context) error

	// Submit starts a remote computation and returns the provider-assigned
	// job and agreement identifiers.
	Submit(ctx context.Context) (jobID, agreementID string, err error)

	// Status returns the numeric status code for a running computation.
	Status(ctx context.Context, jobID, agreementID string) (int, error)

	// ResultLocator returns the URL where the job's result can be
	// downloaded. The URL may carry a single-use authorization token:
	// callers must fetch it exactly once, immediately.
	ResultLocator(ctx context.Context, jobID string) (string, error)
}
