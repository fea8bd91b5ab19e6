package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/lockstep/pkg/adapters/redis"
	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/aretw0/lockstep/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisBoard_Contract(t *testing.T) {
	ports.RunBoardContract(t, func(t *testing.T) ports.Board {
		_, client := newClient(t)
		return redis.NewFromClient(client, "contract")
	})
}

func TestRedisBoard_SharedAcrossClients(t *testing.T) {
	mr, client := newClient(t)
	other := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer other.Close()

	ctx := context.Background()
	first := redis.NewFromClient(client, "run-1")
	second := redis.NewFromClient(other, "run-1")
	unrelated := redis.NewFromClient(other, "run-2")

	require.NoError(t, first.Publish(ctx, domain.MilestoneHoldingLock))

	set, err := second.IsSet(ctx, domain.MilestoneHoldingLock)
	require.NoError(t, err)
	assert.True(t, set, "milestone should be visible to the other harness process")

	set, err = unrelated.IsSet(ctx, domain.MilestoneHoldingLock)
	require.NoError(t, err)
	assert.False(t, set, "runs must not share state")

	code, err := second.Fail(ctx, domain.FailureTimeout)
	require.NoError(t, err)
	assert.Equal(t, domain.FailureTimeout, code)

	code, err = first.Fail(ctx, domain.FailureCompanion)
	require.NoError(t, err)
	assert.Equal(t, domain.FailureTimeout, code)
}

func TestRedisBoard_TTLAndReset(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()

	board := redis.NewFromClient(client, "ttl", redis.WithTTL(time.Minute), redis.WithPrefix("test:"))
	require.NoError(t, board.Ping(ctx))
	require.NoError(t, board.Publish(ctx, domain.MilestoneBlocked))
	_, err := board.Fail(ctx, domain.FailureStreamFault)
	require.NoError(t, err)

	assert.True(t, mr.Exists("test:ttl:milestones"))
	assert.True(t, mr.Exists("test:ttl:failure"))
	assert.Equal(t, time.Minute, mr.TTL("test:ttl:failure"))

	mr.FastForward(2 * time.Minute)
	code, err := board.Failure(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.FailureNone, code, "expired run should read as fresh")

	require.NoError(t, board.Publish(ctx, domain.MilestoneBlocked))
	require.NoError(t, board.Reset(ctx))
	assert.False(t, mr.Exists("test:ttl:milestones"))
}

func TestNewFromURL(t *testing.T) {
	mr, _ := newClient(t)

	board, err := redis.NewFromURL("redis://"+mr.Addr()+"/0", "url")
	require.NoError(t, err)
	defer board.Close()
	require.NoError(t, board.Ping(context.Background()))

	_, err = redis.NewFromURL("://bad", "url")
	assert.Error(t, err)
}
