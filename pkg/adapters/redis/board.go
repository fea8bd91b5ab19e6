package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/lockstep/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Board implements ports.Board on Redis so that the two roles of a run can live in
// separate harness processes. All keys of a run share the prefix "<prefix><runID>:".
type Board struct {
	client *backend.Client
	prefix string
	runID  string
	ttl    time.Duration
}

// Option configures a Board.
type Option func(*Board)

// WithTTL sets the expiration applied to every key of the run.
func WithTTL(ttl time.Duration) Option {
	return func(b *Board) {
		b.ttl = ttl
	}
}

// WithPrefix sets the key prefix for runs.
func WithPrefix(prefix string) Option {
	return func(b *Board) {
		b.prefix = prefix
	}
}

// NewFromClient creates a board for runID on an existing client.
func NewFromClient(client *backend.Client, runID string, opts ...Option) *Board {
	board := &Board{
		client: client,
		prefix: "lockstep:run:",
		runID:  runID,
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(board)
	}
	return board
}

// NewFromURL creates a board for runID from a redis:// URL.
func NewFromURL(url, runID string, opts ...Option) (*Board, error) {
	clientOpts, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewFromClient(backend.NewClient(clientOpts), runID, opts...), nil
}

func (b *Board) milestonesKey() string {
	return b.prefix + b.runID + ":milestones"
}

func (b *Board) failureKey() string {
	return b.prefix + b.runID + ":failure"
}

// Ping verifies the connection.
func (b *Board) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Publish sets a milestone.
func (b *Board) Publish(ctx context.Context, m domain.Milestone) error {
	if !m.Valid() {
		return fmt.Errorf("unknown milestone %q", m)
	}

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, b.milestonesKey(), string(m), 1)
	if b.ttl > 0 {
		pipe.Expire(ctx, b.milestonesKey(), b.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish milestone: %w", err)
	}
	return nil
}

// IsSet reports whether a milestone was published.
func (b *Board) IsSet(ctx context.Context, m domain.Milestone) (bool, error) {
	set, err := b.client.HExists(ctx, b.milestonesKey(), string(m)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read milestone: %w", err)
	}
	return set, nil
}

// Fail records code with SET NX, so the first failure wins across processes.
func (b *Board) Fail(ctx context.Context, code domain.FailureCode) (domain.FailureCode, error) {
	if !code.OK() {
		if err := b.client.SetNX(ctx, b.failureKey(), string(code), b.ttl).Err(); err != nil {
			return domain.FailureNone, fmt.Errorf("failed to record failure: %w", err)
		}
	}
	return b.Failure(ctx)
}

// Failure returns the sticky failure code.
func (b *Board) Failure(ctx context.Context) (domain.FailureCode, error) {
	val, err := b.client.Get(ctx, b.failureKey()).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.FailureNone, nil
		}
		return domain.FailureNone, fmt.Errorf("failed to read failure: %w", err)
	}
	return domain.FailureCode(val), nil
}

// Snapshot returns a copy of the board.
func (b *Board) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	snap := domain.NewSnapshot()

	pipe := b.client.Pipeline()
	milestones := pipe.HGetAll(ctx, b.milestonesKey())
	failure := pipe.Get(ctx, b.failureKey())
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, backend.Nil) {
		return snap, fmt.Errorf("failed to read snapshot: %w", err)
	}

	for field := range milestones.Val() {
		m := domain.Milestone(field)
		if m.Valid() {
			snap.Milestones[m] = true
		}
	}
	if code := failure.Val(); code != "" {
		snap.Failure = domain.FailureCode(code)
	}
	return snap, nil
}

// Reset deletes every key of the run.
func (b *Board) Reset(ctx context.Context) error {
	return b.client.Del(ctx, b.milestonesKey(), b.failureKey()).Err()
}

// Close closes the redis client.
func (b *Board) Close() error {
	return b.client.Close()
}
