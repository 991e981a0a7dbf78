// internal/sla/ingest/ingest_test.go
package ingest

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-platform/internal/common/config"
	"search-platform/internal/common/errors"
	"search-platform/internal/common/logger"
	"search-platform/internal/sla/queue"
	"search-platform/internal/sla/retry"
)

func newTestService(t *testing.T, queueThreshold int64) (*Service, *queue.Router) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := logger.NewTestLogger(t)
	router := queue.NewRouter(client, "q:normal:%s", "q:retry:%s", "q:dead", "q:pending", log)

	provider := config.NewProvider(&config.Config{
		SLA: config.SLAConfig{
			Tiers: map[string]config.TierConfig{
				"vip": {MaxCalls: 200, WindowSeconds: 60, IterSize: 50, QueueThreshold: queueThreshold},
			},
		},
		Tenants: map[string]config.TenantConfig{
			"acme": {Tier: "vip"},
		},
	})

	return NewService(provider, router, log), router
}

func TestAccept_EnqueuesEnvelope(t *testing.T) {
	svc, router := newTestService(t, 100)
	ctx := context.Background()

	id, err := svc.Accept(ctx, "acme", []byte(`{"adminId":"ops","sku":"A-1"}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	raws, _, err := router.DequeueBatch(ctx, "acme", queue.Normal, 10)
	require.NoError(t, err)
	require.Len(t, raws, 1)

	env, err := retry.Decode(raws[0])
	require.NoError(t, err)
	assert.Equal(t, id, env.ID)
	assert.Equal(t, "ops", env.AdminID)
	assert.Equal(t, "A-1", env.Payload["sku"])
	assert.NotZero(t, env.Time)

	pending, err := router.PendingTenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, pending)
}

func TestAccept_RejectsMissingAdminID(t *testing.T) {
	svc, router := newTestService(t, 100)
	ctx := context.Background()

	_, err := svc.Accept(ctx, "acme", []byte(`{"sku":"A-1"}`))
	require.Error(t, err)
	assert.True(t, errors.IsParseError(err))

	depth, err := router.Depth(ctx, "acme", queue.Normal)
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestAccept_RejectsMalformedJSON(t *testing.T) {
	svc, _ := newTestService(t, 100)

	_, err := svc.Accept(context.Background(), "acme", []byte(`{not json`))
	require.Error(t, err)
}

func TestAccept_DeniedAtCapacity(t *testing.T) {
	svc, router := newTestService(t, 2)
	ctx := context.Background()

	_, err := svc.Accept(ctx, "acme", []byte(`{"adminId":"ops","n":1}`))
	require.NoError(t, err)
	_, err = svc.Accept(ctx, "acme", []byte(`{"adminId":"ops","n":2}`))
	require.NoError(t, err)

	// Combined depth has reached the threshold: admission denied.
	_, err = svc.Accept(ctx, "acme", []byte(`{"adminId":"ops","n":3}`))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeQueueCapacityExceeded, errors.CodeOf(err))

	depth, err := router.Depth(ctx, "acme", queue.Normal)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)
}

func TestAccept_RetryDepthCountsTowardCapacity(t *testing.T) {
	svc, router := newTestService(t, 2)
	ctx := context.Background()

	require.NoError(t, router.Enqueue(ctx, "acme", queue.Retry, "r1", "r2"))

	_, err := svc.Accept(ctx, "acme", []byte(`{"adminId":"ops","n":1}`))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeQueueCapacityExceeded, errors.CodeOf(err))
}

func TestAccept_ZeroThresholdDisablesAdmissionCheck(t *testing.T) {
	svc, _ := newTestService(t, 0)

	_, err := svc.Accept(context.Background(), "acme", []byte(`{"adminId":"ops"}`))
	require.NoError(t, err)
}
