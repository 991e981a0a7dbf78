// Package ratelimit implements the per-tenant sliding-window call
// budget. The quota state assumes a single writer per tenant; the
// limiter enforces that structurally with a per-tenant lock rather than
// relying on scheduling discipline.
package ratelimit

import (
	"sync"
	"time"

	"search-platform/internal/common/logger"
	"search-platform/internal/common/metrics"
)

// Quota is the mutable per-tenant window state.
type Quota struct {
	WindowStart time.Time
	Calls       int
	denyLogged  bool
}

// Limiter tracks one quota per tenant.
type Limiter struct {
	mu     sync.Mutex
	quotas map[string]*Quota
	logger logger.Logger
	now    func() time.Time
}

func New(log logger.Logger) *Limiter {
	return &Limiter{
		quotas: make(map[string]*Quota),
		logger: log.WithFields(map[string]interface{}{"component": "ratelimit"}),
		now:    time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// CheckAndConsume decides whether the tenant may make another call in
// the current window, consuming one slot when allowed. Within one
// window exactly maxCalls calls are allowed; the first denial is logged
// once per window.
func (l *Limiter) CheckAndConsume(tenantID string, maxCalls, windowSeconds int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	q := l.quotaLocked(tenantID, windowSeconds)
	if q.Calls >= maxCalls {
		if !q.denyLogged {
			q.denyLogged = true
			l.logger.Warn("tenant rate limited", map[string]interface{}{
				"tenant":   tenantID,
				"maxCalls": maxCalls,
				"windowS":  windowSeconds,
			})
		}
		metrics.RateLimitDenials.WithLabelValues(tenantID).Inc()
		return false
	}

	q.Calls++
	return true
}

// BatchSize caps the next dequeue so a single window's quota is never
// exceeded: min(iterSize, remaining calls in window). Never negative.
func (l *Limiter) BatchSize(tenantID string, iterSize, maxCalls, windowSeconds int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := maxCalls - l.quotaLocked(tenantID, windowSeconds).Calls
	if remaining < 0 {
		remaining = 0
	}
	if iterSize < remaining {
		return iterSize
	}
	return remaining
}

// quotaLocked resolves the tenant's quota, rolling the window forward
// when it has elapsed. Caller holds l.mu.
func (l *Limiter) quotaLocked(tenantID string, windowSeconds int) *Quota {
	now := l.now()
	q := l.quotas[tenantID]
	if q == nil {
		q = &Quota{WindowStart: now}
		l.quotas[tenantID] = q
	}
	if now.Sub(q.WindowStart) >= time.Duration(windowSeconds)*time.Second {
		q.WindowStart = now
		q.Calls = 0
		q.denyLogged = false
	}
	return q
}
