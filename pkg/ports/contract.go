package ports

import (
	"context"
	"sync"
	"testing"

	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBoardContract runs a suite of tests to verify that a Board implementation
// adheres to the defined interface contract. newBoard must return a fresh, empty board.
func RunBoardContract(t *testing.T, newBoard func(t *testing.T) Board) {
	ctx := context.Background()

	t.Run("Starts Empty", func(t *testing.T) {
		board := newBoard(t)

		code, err := board.Failure(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.FailureNone, code)

		for _, m := range domain.Milestones {
			set, err := board.IsSet(ctx, m)
			require.NoError(t, err)
			assert.False(t, set, "milestone %s should start unset", m)
		}
	})

	t.Run("Publish Is Idempotent", func(t *testing.T) {
		board := newBoard(t)

		require.NoError(t, board.Publish(ctx, domain.MilestoneBlocked))
		require.NoError(t, board.Publish(ctx, domain.MilestoneBlocked))

		set, err := board.IsSet(ctx, domain.MilestoneBlocked)
		require.NoError(t, err)
		assert.True(t, set)

		snap, err := board.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[domain.Milestone]bool{
			domain.MilestoneHoldingLock:  false,
			domain.MilestoneBlocked:      true,
			domain.MilestoneReleasedLock: false,
		}, snap.Milestones)
	})

	t.Run("Rejects Unknown Milestone", func(t *testing.T) {
		board := newBoard(t)
		assert.Error(t, board.Publish(ctx, domain.Milestone("bogus")))
	})

	t.Run("First Failure Wins", func(t *testing.T) {
		board := newBoard(t)

		code, err := board.Fail(ctx, domain.FailureTimeout)
		require.NoError(t, err)
		assert.Equal(t, domain.FailureTimeout, code)

		code, err = board.Fail(ctx, domain.FailureCompanion)
		require.NoError(t, err)
		assert.Equal(t, domain.FailureTimeout, code, "later failures must not overwrite the first")

		code, err = board.Fail(ctx, domain.FailureNone)
		require.NoError(t, err)
		assert.Equal(t, domain.FailureTimeout, code, "success can never be restored")

		code, err = board.Failure(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.FailureTimeout, code)

		snap, err := board.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.FailureTimeout, snap.Failure)
	})

	t.Run("Concurrent Access", func(t *testing.T) {
		board := newBoard(t)

		var wg sync.WaitGroup
		results := make(chan domain.FailureCode, 16)
		codes := []domain.FailureCode{domain.FailureTimeout, domain.FailureProtocolViolation}
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = board.Publish(ctx, domain.Milestones[i%len(domain.Milestones)])
				code, err := board.Fail(ctx, codes[i%len(codes)])
				if err == nil {
					results <- code
				}
			}(i)
		}
		wg.Wait()
		close(results)

		final, err := board.Failure(ctx)
		require.NoError(t, err)
		assert.False(t, final.OK())
		for code := range results {
			assert.Equal(t, final, code, "every caller must observe the single winning failure")
		}

		for _, m := range domain.Milestones {
			set, err := board.IsSet(ctx, m)
			require.NoError(t, err)
			assert.True(t, set)
		}
	})
}
