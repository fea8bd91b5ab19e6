package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/lockstep/pkg/domain"
)

// Board implements ports.Board in memory.
// Safe for concurrent use.
type Board struct {
	mu         sync.RWMutex
	milestones map[domain.Milestone]bool
	failure    domain.FailureCode
}

// NewBoard creates an empty, successful board.
func NewBoard() *Board {
	return &Board{
		milestones: make(map[domain.Milestone]bool, len(domain.Milestones)),
		failure:    domain.FailureNone,
	}
}

// Publish sets a milestone.
func (b *Board) Publish(ctx context.Context, m domain.Milestone) error {
	if !m.Valid() {
		return fmt.Errorf("unknown milestone %q", m)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.milestones[m] = true
	return nil
}

// IsSet reports whether a milestone was published.
func (b *Board) IsSet(ctx context.Context, m domain.Milestone) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.milestones[m], nil
}

// Fail records code unless a failure is already recorded.
func (b *Board) Fail(ctx context.Context, code domain.FailureCode) (domain.FailureCode, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failure.OK() && !code.OK() {
		b.failure = code
	}
	return b.failure, nil
}

// Failure returns the sticky failure code.
func (b *Board) Failure(ctx context.Context) (domain.FailureCode, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.failure, nil
}

// Snapshot returns a copy of the board.
func (b *Board) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	snap := domain.NewSnapshot()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for m, set := range b.milestones {
		snap.Milestones[m] = set
	}
	snap.Failure = b.failure
	return snap, nil
}
