// Package scheduler drives the message pipeline: periodic sweeps over
// tenants with pending work, a slower sweep over retry queues, and the
// queue-depth threshold check. Tenants of the same tier share a worker
// pool sized by the tier's thread count, and a Redis lock guarantees a
// single drainer per tenant across all runner processes.
package scheduler

import (
	"context"
	"sync"
	"time"

	"search-platform/internal/common/config"
	"search-platform/internal/common/logger"
	"search-platform/internal/common/metrics"
	"search-platform/internal/sla/locks"
	"search-platform/internal/sla/queue"
	"search-platform/internal/sla/ratelimit"
	"search-platform/internal/sla/retry"
)

const lockTTL = 30 * time.Second

// Scheduler owns the three periodic loops of an sla-runner process.
type Scheduler struct {
	cfg     config.Provider
	router  *queue.Router
	limiter *ratelimit.Limiter
	locks   *locks.Store
	engine  *retry.Engine
	process retry.ProcessFunc
	logger  logger.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(cfg config.Provider, router *queue.Router, limiter *ratelimit.Limiter, lockStore *locks.Store, engine *retry.Engine, process retry.ProcessFunc, log logger.Logger) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		router:  router,
		limiter: limiter,
		locks:   lockStore,
		engine:  engine,
		process: process,
		logger:  log.WithFields(map[string]interface{}{"component": "scheduler"}),
	}
}

// Start launches the loops. They run until Stop or context
// cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	schedule := s.cfg.SLA().Schedule

	s.loop(ctx, time.Duration(schedule.NormalIntervalMS)*time.Millisecond, func(ctx context.Context) {
		s.sweep(ctx, s.drainNormal)
	})
	s.loop(ctx, time.Duration(schedule.RetryIntervalMS)*time.Millisecond, func(ctx context.Context) {
		s.sweep(ctx, s.drainRetry)
	})
	s.loop(ctx, time.Duration(schedule.ThresholdIntervalMS)*time.Millisecond, func(ctx context.Context) {
		if err := s.engine.CheckThresholds(ctx); err != nil {
			s.logger.Error("threshold check failed", map[string]interface{}{"error": err.Error()})
		}
	})
}

// Stop cancels the loops and waits for in-flight sweeps to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	if interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick(ctx)
			}
		}
	}()
}

// sweep fans pending tenants out to per-tier worker pools. Each tier's
// pool is bounded by its configured thread count so a noisy tier never
// starves another.
func (s *Scheduler) sweep(ctx context.Context, drain func(context.Context, string)) {
	tenants, err := s.router.PendingTenants(ctx)
	if err != nil {
		s.logger.Error("pending tenant scan failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if len(tenants) == 0 {
		return
	}

	pools := map[string]chan struct{}{}
	var wg sync.WaitGroup
	for _, tenantID := range tenants {
		tierName := s.cfg.TenantTier(tenantID)
		pool, ok := pools[tierName]
		if !ok {
			threads := s.cfg.TenantTierConfig(tenantID).Threads
			if threads <= 0 {
				threads = 1
			}
			pool = make(chan struct{}, threads)
			pools[tierName] = pool
		}

		wg.Add(1)
		go func(tenantID string, pool chan struct{}) {
			defer wg.Done()
			// Token taken here, not in the dispatch loop: a full pool
			// must only delay its own tier, never block dispatch of the
			// remaining tenants.
			pool <- struct{}{}
			defer func() { <-pool }()
			drain(ctx, tenantID)
		}(tenantID, pool)
	}
	wg.Wait()
}

// drainNormal processes the tenant's normal queue under its rate
// budget. Peek-then-ack: only the messages actually handled are
// trimmed, so a denial mid-batch leaves the rest queued.
func (s *Scheduler) drainNormal(ctx context.Context, tenantID string) {
	token, ok, err := s.locks.Acquire(ctx, tenantID, lockTTL)
	if err != nil {
		s.logger.Error("tenant lock acquire failed", map[string]interface{}{
			"tenant": tenantID, "error": err.Error(),
		})
		return
	}
	if !ok {
		return
	}
	defer func() {
		if err := s.locks.Release(ctx, tenantID, token); err != nil {
			s.logger.Warn("tenant lock release failed", map[string]interface{}{
				"tenant": tenantID, "error": err.Error(),
			})
		}
	}()

	tier := s.cfg.TenantTierConfig(tenantID)
	for {
		limit := s.limiter.BatchSize(tenantID, tier.IterSize, tier.MaxCalls, tier.WindowSeconds)
		if limit <= 0 {
			return
		}
		batch, full, err := s.router.DequeueBatch(ctx, tenantID, queue.Normal, limit)
		if err != nil {
			s.logger.Error("dequeue failed", map[string]interface{}{
				"tenant": tenantID, "error": err.Error(),
			})
			return
		}
		if len(batch) == 0 {
			return
		}

		processed := 0
		for _, raw := range batch {
			if !s.limiter.CheckAndConsume(tenantID, tier.MaxCalls, tier.WindowSeconds) {
				break
			}
			s.handleMessage(ctx, tenantID, raw)
			processed++
		}

		if processed > 0 {
			if err := s.router.Ack(ctx, tenantID, queue.Normal, processed); err != nil {
				s.logger.Error("ack failed", map[string]interface{}{
					"tenant": tenantID, "error": err.Error(),
				})
				return
			}
		}
		if processed < len(batch) || !full {
			return
		}
	}
}

func (s *Scheduler) handleMessage(ctx context.Context, tenantID, raw string) {
	env, err := retry.Decode(raw)
	if err != nil {
		s.logger.Warn("dropping undecodable message", map[string]interface{}{
			"tenant": tenantID, "error": err.Error(),
		})
		metrics.MessagesProcessed.WithLabelValues(tenantID, "undecodable").Inc()
		return
	}
	if err := s.process(ctx, tenantID, env); err != nil {
		if err := s.engine.OnFailure(ctx, tenantID, env, err); err != nil {
			s.logger.Error("failure handling failed", map[string]interface{}{
				"tenant": tenantID, "id": env.ID, "error": err.Error(),
			})
		}
		return
	}
	metrics.MessagesProcessed.WithLabelValues(tenantID, "ok").Inc()
}

// drainRetry replays due retry entries for one tenant under the tenant
// lock. The rate budget is shared with the normal queue.
func (s *Scheduler) drainRetry(ctx context.Context, tenantID string) {
	token, ok, err := s.locks.Acquire(ctx, tenantID, lockTTL)
	if err != nil || !ok {
		return
	}
	defer func() {
		if err := s.locks.Release(ctx, tenantID, token); err != nil {
			s.logger.Warn("tenant lock release failed", map[string]interface{}{
				"tenant": tenantID, "error": err.Error(),
			})
		}
	}()

	tier := s.cfg.TenantTierConfig(tenantID)
	limit := s.limiter.BatchSize(tenantID, tier.IterSize, tier.MaxCalls, tier.WindowSeconds)
	if limit <= 0 {
		return
	}
	if _, err := s.engine.ProcessRetryBatch(ctx, tenantID, limit, s.rateLimitedProcess(tier)); err != nil {
		s.logger.Error("retry batch failed", map[string]interface{}{
			"tenant": tenantID, "error": err.Error(),
		})
	}
}

// rateLimitedProcess consumes one rate slot per replay attempt. A
// denied attempt is pushed back untouched by the engine rather than
// charged against the retry budget.
func (s *Scheduler) rateLimitedProcess(tier config.TierConfig) retry.ProcessFunc {
	return func(ctx context.Context, tenantID string, env *retry.Envelope) error {
		if !s.limiter.CheckAndConsume(tenantID, tier.MaxCalls, tier.WindowSeconds) {
			return retry.ErrRateLimited
		}
		return s.process(ctx, tenantID, env)
	}
}
