package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"search-platform/internal/common/config"
	"search-platform/internal/common/logger"
	"search-platform/internal/common/metrics"
	"search-platform/internal/sla/queue"
)

// Archiver persists dead-lettered messages outside Redis for later
// inspection and replay.
type Archiver interface {
	Archive(ctx context.Context, tenantID string, e *Envelope, source FailureSource) error
}

// Alarmer delivers threshold alarms to operators.
type Alarmer interface {
	Alarm(ctx context.Context, subject, message string) error
}

// ProcessFunc attempts to apply one message; a nil return settles it.
type ProcessFunc func(ctx context.Context, tenantID string, e *Envelope) error

// ErrRateLimited signals that the attempt never ran because the tenant
// window is exhausted. The message is pushed back untouched instead of
// consuming retry budget.
var ErrRateLimited = stderrors.New("tenant rate limited")

// Engine runs the per-message retry state machine and the queue-depth
// threshold checks.
type Engine struct {
	cfg      config.Provider
	router   *queue.Router
	archiver Archiver
	alarmer  Alarmer
	logger   logger.Logger
	now      func() time.Time

	mu            sync.Mutex
	lastAlarmDate string
}

func NewEngine(cfg config.Provider, router *queue.Router, archiver Archiver, alarmer Alarmer, log logger.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		router:   router,
		archiver: archiver,
		alarmer:  alarmer,
		logger:   log.WithFields(map[string]interface{}{"component": "retry"}),
		now:      time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// OnFailure decides the fate of a message that just failed: schedule
// another attempt under the tenant's redo policy for this failure
// source, or dead-letter it. A message without an admin id can never
// be retried because nobody could be told about its final failure.
func (e *Engine) OnFailure(ctx context.Context, tenantID string, env *Envelope, procErr error) error {
	source := ClassifyFailure(procErr)

	if env.AdminID == "" || !source.Retryable() {
		return e.deadLetter(ctx, tenantID, env, source, procErr)
	}

	policy, ok := e.cfg.RedoPolicy(tenantID, string(source))
	if !ok || !policy.Enabled {
		return e.deadLetter(ctx, tenantID, env, source, procErr)
	}
	if env.RedoNum >= policy.Times {
		return e.deadLetter(ctx, tenantID, env, source, procErr)
	}

	env.Redo = true
	env.RedoNum++
	env.RedoTimes = policy.Times
	env.RedoIntervals = policy.IntervalsMinutes
	env.RedoTime = append(env.RedoTime, e.now().UnixMilli())
	env.Error = procErr.Error()
	env.Source = string(source)

	encoded, err := env.Encode()
	if err != nil {
		return e.deadLetter(ctx, tenantID, env, source, procErr)
	}
	if err := e.router.Enqueue(ctx, tenantID, queue.Retry, encoded); err != nil {
		return fmt.Errorf("schedule retry for %s: %w", env.ID, err)
	}

	metrics.MessagesRetried.WithLabelValues(tenantID, string(source)).Inc()
	e.logger.Info("message scheduled for retry", map[string]interface{}{
		"tenant": tenantID, "id": env.ID, "source": string(source),
		"attempt": env.RedoNum, "budget": env.RedoTimes,
	})
	return nil
}

// deadLetter moves a message to the shared dead-letter list and the
// durable archive. An archive failure is logged but does not undo the
// dead-lettering; the Redis copy remains the source of truth.
func (e *Engine) deadLetter(ctx context.Context, tenantID string, env *Envelope, source FailureSource, procErr error) error {
	env.Error = procErr.Error()
	env.Source = string(source)

	encoded, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode dead letter %s: %w", env.ID, err)
	}
	if err := e.router.EnqueueDead(ctx, encoded); err != nil {
		return fmt.Errorf("dead letter %s: %w", env.ID, err)
	}
	if e.archiver != nil {
		if err := e.archiver.Archive(ctx, tenantID, env, source); err != nil {
			e.logger.Warn("dead letter archive failed", map[string]interface{}{
				"tenant": tenantID, "id": env.ID, "error": err.Error(),
			})
		}
	}

	metrics.MessagesProcessed.WithLabelValues(tenantID, "dead_letter").Inc()
	e.logger.Warn("message dead lettered", map[string]interface{}{
		"tenant": tenantID, "id": env.ID, "source": string(source),
		"attempts": env.RedoNum, "error": procErr.Error(),
	})
	return nil
}

// ProcessRetryBatch drains up to limit due messages from the tenant's
// retry queue. Messages whose interval has not elapsed are pushed back
// to the tail untouched. The bool reports whether a full batch was
// read.
func (e *Engine) ProcessRetryBatch(ctx context.Context, tenantID string, limit int, process ProcessFunc) (bool, error) {
	batch, full, err := e.router.DequeueBatch(ctx, tenantID, queue.Retry, limit)
	if err != nil {
		return false, err
	}
	if len(batch) == 0 {
		return false, nil
	}

	now := e.now().UnixMilli()
	var notDue []string

	for _, raw := range batch {
		env, err := Decode(raw)
		if err != nil {
			e.logger.Warn("dropping undecodable retry entry", map[string]interface{}{
				"tenant": tenantID, "error": err.Error(),
			})
			continue
		}

		if due, ok := env.NextAttemptDue(); ok && now < due {
			notDue = append(notDue, raw)
			continue
		}

		if err := process(ctx, tenantID, env); err != nil {
			if stderrors.Is(err, ErrRateLimited) {
				notDue = append(notDue, raw)
				continue
			}
			if err := e.OnFailure(ctx, tenantID, env, err); err != nil {
				return false, err
			}
			continue
		}
		metrics.MessagesProcessed.WithLabelValues(tenantID, "retried_ok").Inc()
	}

	if err := e.router.Ack(ctx, tenantID, queue.Retry, len(batch)); err != nil {
		return false, err
	}
	if len(notDue) > 0 {
		if err := e.router.Enqueue(ctx, tenantID, queue.Retry, notDue...); err != nil {
			return false, err
		}
	}
	return full, nil
}

// CheckThresholds compares live queue depths against configured
// limits. Per-tenant alarms fire on every check above threshold; the
// dead-letter alarm fires at most once per calendar day.
func (e *Engine) CheckThresholds(ctx context.Context) error {
	tenants, err := e.router.PendingTenants(ctx)
	if err != nil {
		return err
	}

	for _, tenantID := range tenants {
		tier := e.cfg.TenantTierConfig(tenantID)
		if tier.QueueThreshold <= 0 {
			continue
		}
		normal, err := e.router.Depth(ctx, tenantID, queue.Normal)
		if err != nil {
			return err
		}
		retry, err := e.router.Depth(ctx, tenantID, queue.Retry)
		if err != nil {
			return err
		}
		if depth := normal + retry; depth > tier.QueueThreshold {
			e.raiseAlarm(ctx, "tenant queue over threshold",
				fmt.Sprintf("tenant %s queue depth %d exceeds threshold %d", tenantID, depth, tier.QueueThreshold))
		}
	}

	limit := e.cfg.SLA().DeadLetterLimit
	if limit <= 0 {
		return nil
	}
	depth, err := e.router.DeadLetterDepth(ctx)
	if err != nil {
		return err
	}
	if depth > limit && e.claimDailyAlarm() {
		e.raiseAlarm(ctx, "dead letter queue over threshold",
			fmt.Sprintf("dead letter queue depth %d exceeds limit %d", depth, limit))
	}
	return nil
}

// claimDailyAlarm returns true at most once per calendar day.
func (e *Engine) claimDailyAlarm() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	today := e.now().Format("2006-01-02")
	if e.lastAlarmDate == today {
		return false
	}
	e.lastAlarmDate = today
	return true
}

func (e *Engine) raiseAlarm(ctx context.Context, subject, message string) {
	e.logger.Warn(subject, map[string]interface{}{"detail": message})
	if e.alarmer == nil {
		return
	}
	if err := e.alarmer.Alarm(ctx, subject, message); err != nil {
		e.logger.Error("alarm delivery failed", map[string]interface{}{
			"subject": subject, "error": err.Error(),
		})
	}
}
