// internal/sla/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-platform/internal/common/config"
	"search-platform/internal/common/errors"
	"search-platform/internal/common/logger"
	"search-platform/internal/sla/locks"
	"search-platform/internal/sla/queue"
	"search-platform/internal/sla/ratelimit"
	"search-platform/internal/sla/retry"
)

type recordingProcessor struct {
	mu       sync.Mutex
	seen     []string
	failures map[string]error
}

func (p *recordingProcessor) process(ctx context.Context, tenantID string, e *retry.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	sku, _ := e.Payload["sku"].(string)
	p.seen = append(p.seen, sku)
	if p.failures != nil {
		if err, ok := p.failures[sku]; ok {
			return err
		}
	}
	return nil
}

func (p *recordingProcessor) skus() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.seen...)
}

type fixture struct {
	sched     *Scheduler
	router    *queue.Router
	limiter   *ratelimit.Limiter
	lockStore *locks.Store
	engine    *retry.Engine
	proc      *recordingProcessor
	now       time.Time
}

func newFixture(t *testing.T, tier config.TierConfig) *fixture {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := logger.NewTestLogger(t)
	provider := config.NewProvider(&config.Config{
		SLA: config.SLAConfig{
			Tiers: map[string]config.TierConfig{"vip": tier},
		},
		Tenants: map[string]config.TenantConfig{"acme": {Tier: "vip"}},
	})

	f := &fixture{
		router: queue.NewRouter(client, "q:normal:%s", "q:retry:%s", "q:dead", "q:pending", log),
		proc:   &recordingProcessor{},
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.limiter = ratelimit.New(log).WithClock(func() time.Time { return f.now })
	f.lockStore = locks.NewStore(client, "lock:", log)
	f.engine = retry.NewEngine(provider, f.router, nil, nil, log).
		WithClock(func() time.Time { return f.now })
	f.sched = New(provider, f.router, f.limiter, f.lockStore, f.engine, f.proc.process, log)
	return f
}

func (f *fixture) enqueue(t *testing.T, kind queue.Kind, skus ...string) {
	t.Helper()
	for _, sku := range skus {
		env := retry.NewEnvelope(map[string]interface{}{"adminId": "ops", "sku": sku}, f.now.UnixMilli())
		encoded, err := env.Encode()
		require.NoError(t, err)
		require.NoError(t, f.router.Enqueue(context.Background(), "acme", kind, encoded))
	}
}

func (f *fixture) normalDepth(t *testing.T) int64 {
	t.Helper()
	n, err := f.router.Depth(context.Background(), "acme", queue.Normal)
	require.NoError(t, err)
	return n
}

func TestDrainNormal_ProcessesInOrderAndAcks(t *testing.T) {
	f := newFixture(t, config.TierConfig{
		MaxCalls: 50, WindowSeconds: 60, IterSize: 2, Threads: 2,
	})
	f.enqueue(t, queue.Normal, "A-1", "A-2", "A-3")

	f.sched.drainNormal(context.Background(), "acme")

	// Iterates in batches of IterSize until the queue is empty.
	assert.Equal(t, []string{"A-1", "A-2", "A-3"}, f.proc.skus())
	assert.Zero(t, f.normalDepth(t))

	pending, err := f.router.PendingTenants(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDrainNormal_StopsAtRateBudget(t *testing.T) {
	f := newFixture(t, config.TierConfig{
		MaxCalls: 2, WindowSeconds: 60, IterSize: 10, Threads: 2,
	})
	f.enqueue(t, queue.Normal, "A-1", "A-2", "A-3", "A-4")

	f.sched.drainNormal(context.Background(), "acme")

	// Two calls allowed this window; the rest stay queued.
	assert.Equal(t, []string{"A-1", "A-2"}, f.proc.skus())
	assert.Equal(t, int64(2), f.normalDepth(t))

	// A later window picks up where it left off.
	f.now = f.now.Add(61 * time.Second)
	f.sched.drainNormal(context.Background(), "acme")
	assert.Equal(t, []string{"A-1", "A-2", "A-3", "A-4"}, f.proc.skus())
	assert.Zero(t, f.normalDepth(t))
}

func TestDrainNormal_FailureGoesThroughRetryEngine(t *testing.T) {
	f := newFixture(t, config.TierConfig{
		MaxCalls: 50, WindowSeconds: 60, IterSize: 10, Threads: 2,
		Redo: map[string]config.RedoPolicy{
			"es_error": {Enabled: true, Times: 2, IntervalsMinutes: []float64{1, 5}},
		},
	})
	f.proc.failures = map[string]error{
		"A-2": errors.NewESError(assert.AnError),
	}
	f.enqueue(t, queue.Normal, "A-1", "A-2")

	f.sched.drainNormal(context.Background(), "acme")

	assert.Zero(t, f.normalDepth(t))
	raws, _, err := f.router.DequeueBatch(context.Background(), "acme", queue.Retry, 10)
	require.NoError(t, err)
	require.Len(t, raws, 1)
	env, err := retry.Decode(raws[0])
	require.NoError(t, err)
	assert.Equal(t, "A-2", env.Payload["sku"])
	assert.Equal(t, 1, env.RedoNum)
}

func TestDrainNormal_SkipsWhenLockHeld(t *testing.T) {
	f := newFixture(t, config.TierConfig{
		MaxCalls: 50, WindowSeconds: 60, IterSize: 10, Threads: 2,
	})
	f.enqueue(t, queue.Normal, "A-1")

	_, ok, err := f.lockStore.Acquire(context.Background(), "acme", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	f.sched.drainNormal(context.Background(), "acme")

	assert.Empty(t, f.proc.skus())
	assert.Equal(t, int64(1), f.normalDepth(t))
}

func TestDrainRetry_ReplaysDueEntries(t *testing.T) {
	f := newFixture(t, config.TierConfig{
		MaxCalls: 50, WindowSeconds: 60, IterSize: 10, Threads: 2,
		Redo: map[string]config.RedoPolicy{
			"es_error": {Enabled: true, Times: 2, IntervalsMinutes: []float64{1, 5}},
		},
	})

	// Seed a scheduled retry through the engine, then advance past its
	// interval.
	env := retry.NewEnvelope(map[string]interface{}{"adminId": "ops", "sku": "A-1"}, f.now.UnixMilli())
	require.NoError(t, f.engine.OnFailure(context.Background(), "acme",
		env, errors.NewESError(assert.AnError)))
	f.now = f.now.Add(61 * time.Second)

	f.sched.drainRetry(context.Background(), "acme")

	assert.Equal(t, []string{"A-1"}, f.proc.skus())
	raws, _, err := f.router.DequeueBatch(context.Background(), "acme", queue.Retry, 10)
	require.NoError(t, err)
	assert.Empty(t, raws)
}

func TestDrainRetry_RateLimitedPushesBack(t *testing.T) {
	f := newFixture(t, config.TierConfig{
		MaxCalls: 1, WindowSeconds: 60, IterSize: 10, Threads: 2,
		Redo: map[string]config.RedoPolicy{
			"es_error": {Enabled: true, Times: 2, IntervalsMinutes: []float64{1, 5}},
		},
	})

	env := retry.NewEnvelope(map[string]interface{}{"adminId": "ops", "sku": "A-1"}, f.now.UnixMilli())
	require.NoError(t, f.engine.OnFailure(context.Background(), "acme",
		env, errors.NewESError(assert.AnError)))
	f.now = f.now.Add(61 * time.Second)

	// Exhaust the window budget before the retry sweep runs.
	require.True(t, f.limiter.CheckAndConsume("acme", 1, 60))
	f.sched.drainRetry(context.Background(), "acme")

	assert.Empty(t, f.proc.skus())
	raws, _, err := f.router.DequeueBatch(context.Background(), "acme", queue.Retry, 10)
	require.NoError(t, err)
	require.Len(t, raws, 1)
	got, err := retry.Decode(raws[0])
	require.NoError(t, err)
	assert.Equal(t, 1, got.RedoNum)
}

func TestSweep_FullTierPoolDoesNotBlockOtherTiers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := logger.NewTestLogger(t)
	provider := config.NewProvider(&config.Config{
		SLA: config.SLAConfig{
			Tiers: map[string]config.TierConfig{
				"vip":        {MaxCalls: 50, WindowSeconds: 60, IterSize: 10, Threads: 1},
				"experience": {MaxCalls: 50, WindowSeconds: 60, IterSize: 10, Threads: 1},
			},
		},
		Tenants: map[string]config.TenantConfig{
			"busy-1": {Tier: "vip"},
			"busy-2": {Tier: "vip"},
			"quiet":  {Tier: "experience"},
		},
	})

	router := queue.NewRouter(client, "q:normal:%s", "q:retry:%s", "q:dead", "q:pending", log)
	for _, tenant := range []string{"busy-1", "busy-2", "quiet"} {
		env := retry.NewEnvelope(map[string]interface{}{"adminId": "ops"}, time.Now().UnixMilli())
		encoded, err := env.Encode()
		require.NoError(t, err)
		require.NoError(t, router.Enqueue(context.Background(), tenant, queue.Normal, encoded))
	}

	limiter := ratelimit.New(log)
	lockStore := locks.NewStore(client, "lock:", log)
	engine := retry.NewEngine(provider, router, nil, nil, log)
	sched := New(provider, router, limiter, lockStore, engine, nil, log)

	// Both vip drains wait for the quiet tenant. The vip tier has a
	// single thread, so the sweep only completes cleanly when the quiet
	// tenant is dispatched while a vip drain still holds that token.
	quietDone := make(chan struct{})
	var starved atomic.Bool
	sched.sweep(context.Background(), func(ctx context.Context, tenantID string) {
		if tenantID == "quiet" {
			close(quietDone)
			return
		}
		select {
		case <-quietDone:
		case <-time.After(2 * time.Second):
			starved.Store(true)
		}
	})

	assert.False(t, starved.Load())
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, config.TierConfig{
		MaxCalls: 50, WindowSeconds: 60, IterSize: 10, Threads: 2,
	})

	f.sched.Start(context.Background())
	f.sched.Stop()
}
