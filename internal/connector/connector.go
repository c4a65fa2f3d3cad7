package connector

import (
	"context"
	"time"
)

// SystemConnector adapts one external workflow system.
//
// Implementations must be safe for concurrent use: the creation job and the
// completion/claim jobs run on independent timers and may call into the same
// connector at the same time.
type SystemConnector interface {
	// SystemURL returns the stable identity of the external system. Used as
	// the registry key and as the first half of the sync idempotency key.
	SystemURL() string

	// ListCandidateTasks returns tasks created in the external system at or
	// after since. The result is finite and one-shot per call; ordering is
	// not guaranteed. A zero since means "from the beginning of time".
	ListCandidateTasks(ctx context.Context, since time.Time) ([]ExternalTask, error)

	// FetchVariables retrieves the opaque variable payload for one task.
	FetchVariables(ctx context.Context, taskID string) (string, error)

	// Claim claims the task in the external system on behalf of the given
	// assignee. Not assumed to be idempotent.
	Claim(ctx context.Context, task ExternalTask) error

	// Complete completes the task in the external system. Not assumed to be
	// idempotent; the engine guards against double invocation via the ledger.
	Complete(ctx context.Context, task ExternalTask) error
}

// CentralConnector adapts the central task store. Exactly one live instance
// is supported per deployment; the registry enforces this at startup.
type CentralConnector interface {
	// ListClaimedCandidates returns central tasks in callback state Claimed,
	// i.e. claimed by a user but not yet acknowledged to the external system.
	ListClaimedCandidates(ctx context.Context) ([]CentralTask, error)

	// ListCompletedCandidates returns central tasks completed at or after
	// since whose completion may not yet have been propagated.
	ListCompletedCandidates(ctx context.Context, since time.Time) ([]CentralTask, error)

	// Convert maps an enriched external task to a creation request.
	// Returns a ConversionError when required fields are absent.
	Convert(task ExternalTask) (CentralTaskRequest, error)

	// Create submits a creation request and returns the central task id.
	// Returns a CreationError when the central store rejects the request.
	// Creation is NOT assumed idempotent; the ledger provides the at-most-once
	// guarantee.
	Create(ctx context.Context, req CentralTaskRequest) (string, error)

	// SetCallbackState acknowledges propagated state for a set of central
	// tasks in one call.
	SetCallbackState(ctx context.Context, centralIDs []string, state CallbackState) error
}

// SystemProvider constructs the system connectors contributed by one
// integration package. Providers are registered explicitly at startup; see
// Registry.
type SystemProvider func() ([]SystemConnector, error)

// CentralProvider constructs central connectors. Only one connector may be
// contributed across all registered central providers.
type CentralProvider func() ([]CentralConnector, error)
