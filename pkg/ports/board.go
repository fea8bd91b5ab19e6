package ports

import (
	"context"

	"github.com/aretw0/lockstep/pkg/domain"
)

// Board is the shared test state of a run.
// Implementations must be linearizable: both drivers call it concurrently.
type Board interface {
	// Publish sets a milestone. Publishing an already-set milestone is a no-op.
	Publish(ctx context.Context, m domain.Milestone) error

	// IsSet reports whether a milestone was published.
	IsSet(ctx context.Context, m domain.Milestone) (bool, error)

	// Fail records a failure code. The first failure wins and is never overwritten;
	// the returned code is the one in effect after the call.
	Fail(ctx context.Context, code domain.FailureCode) (domain.FailureCode, error)

	// Failure returns the sticky failure code (domain.FailureNone while successful).
	Failure(ctx context.Context) (domain.FailureCode, error)

	// Snapshot returns a copy of every milestone and the failure code.
	Snapshot(ctx context.Context) (domain.Snapshot, error)
}
