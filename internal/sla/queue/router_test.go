// internal/sla/queue/router_test.go
package queue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-platform/internal/common/logger"
)

func newTestRouter(t *testing.T) (*Router, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	router := NewRouter(client, "q:normal:%s", "q:retry:%s", "q:dead", "q:pending", logger.NewTestLogger(t))
	return router, mr
}

func TestEnqueueDequeue_FIFO(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := context.Background()

	require.NoError(t, router.Enqueue(ctx, "acme", Normal, "m1", "m2", "m3"))

	items, full, err := router.DequeueBatch(ctx, "acme", Normal, 2)
	require.NoError(t, err)
	assert.True(t, full)
	assert.Equal(t, []string{"m1", "m2"}, items)
}

func TestDequeueBatch_PeekDoesNotRemove(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := context.Background()

	require.NoError(t, router.Enqueue(ctx, "acme", Normal, "m1", "m2"))

	first, _, err := router.DequeueBatch(ctx, "acme", Normal, 2)
	require.NoError(t, err)
	second, _, err := router.DequeueBatch(ctx, "acme", Normal, 2)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	depth, err := router.Depth(ctx, "acme", Normal)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)
}

func TestDequeueBatch_PartialBatchNotFull(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := context.Background()

	require.NoError(t, router.Enqueue(ctx, "acme", Normal, "m1"))

	items, full, err := router.DequeueBatch(ctx, "acme", Normal, 5)
	require.NoError(t, err)
	assert.False(t, full)
	assert.Len(t, items, 1)

	// A zero limit is a no-op, not an error.
	items, full, err = router.DequeueBatch(ctx, "acme", Normal, 0)
	require.NoError(t, err)
	assert.False(t, full)
	assert.Empty(t, items)
}

func TestAck_TrimsHeadAndClearsPendingWhenDrained(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := context.Background()

	require.NoError(t, router.Enqueue(ctx, "acme", Normal, "m1", "m2", "m3"))

	pending, err := router.PendingTenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, pending)

	require.NoError(t, router.Ack(ctx, "acme", Normal, 2))

	items, _, err := router.DequeueBatch(ctx, "acme", Normal, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3"}, items)

	// Still pending: one message left.
	pending, err = router.PendingTenants(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, router.Ack(ctx, "acme", Normal, 1))
	pending, err = router.PendingTenants(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAck_KeepsPendingWhileRetryQueueHolds(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := context.Background()

	require.NoError(t, router.Enqueue(ctx, "acme", Normal, "m1"))
	require.NoError(t, router.Enqueue(ctx, "acme", Retry, "r1"))

	require.NoError(t, router.Ack(ctx, "acme", Normal, 1))

	pending, err := router.PendingTenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, pending)
}

func TestQueuesIsolatedByTenantAndKind(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := context.Background()

	require.NoError(t, router.Enqueue(ctx, "acme", Normal, "n1"))
	require.NoError(t, router.Enqueue(ctx, "acme", Retry, "r1"))
	require.NoError(t, router.Enqueue(ctx, "contoso", Normal, "c1"))

	items, _, err := router.DequeueBatch(ctx, "acme", Retry, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, items)

	items, _, err = router.DequeueBatch(ctx, "contoso", Normal, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, items)
}

func TestDeadLetterList(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := context.Background()

	require.NoError(t, router.EnqueueDead(ctx, "d1"))
	require.NoError(t, router.EnqueueDead(ctx, "d2"))

	depth, err := router.DeadLetterDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)
	assert.Equal(t, "q:dead", router.DeadLetterKey())
}
