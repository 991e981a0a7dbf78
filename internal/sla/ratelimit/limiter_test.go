// internal/sla/ratelimit/limiter_test.go
package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"search-platform/internal/common/logger"
)

func newTestLimiter(t *testing.T, at *time.Time) *Limiter {
	return New(logger.NewTestLogger(t)).WithClock(func() time.Time { return *at })
}

func TestCheckAndConsume_ExactBudgetThenDenied(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(t, &now)

	for i := 0; i < 5; i++ {
		assert.True(t, l.CheckAndConsume("acme", 5, 60), "call %d", i)
	}
	assert.False(t, l.CheckAndConsume("acme", 5, 60))
	assert.False(t, l.CheckAndConsume("acme", 5, 60))
}

func TestCheckAndConsume_WindowResetRestoresBudget(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(t, &now)

	for i := 0; i < 3; i++ {
		assert.True(t, l.CheckAndConsume("acme", 3, 60))
	}
	assert.False(t, l.CheckAndConsume("acme", 3, 60))

	// One second short of the window boundary: still denied.
	now = now.Add(59 * time.Second)
	assert.False(t, l.CheckAndConsume("acme", 3, 60))

	now = now.Add(time.Second)
	assert.True(t, l.CheckAndConsume("acme", 3, 60))
}

func TestCheckAndConsume_TenantsIsolated(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(t, &now)

	assert.True(t, l.CheckAndConsume("acme", 1, 60))
	assert.False(t, l.CheckAndConsume("acme", 1, 60))
	assert.True(t, l.CheckAndConsume("contoso", 1, 60))
}

func TestBatchSize(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(t, &now)

	// Fresh tenant: bounded by the iteration size.
	assert.Equal(t, 10, l.BatchSize("acme", 10, 50, 60))

	// Three consumed of five: remaining budget wins over iterSize.
	for i := 0; i < 3; i++ {
		l.CheckAndConsume("acme", 5, 60)
	}
	assert.Equal(t, 2, l.BatchSize("acme", 10, 5, 60))

	// Exhausted budget never goes negative.
	l.CheckAndConsume("acme", 5, 60)
	l.CheckAndConsume("acme", 5, 60)
	assert.Equal(t, 0, l.BatchSize("acme", 10, 5, 60))
	assert.Equal(t, 0, l.BatchSize("acme", 10, 3, 60))
}

func TestBatchSize_WindowExpiryRestoresBudget(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(t, &now)

	for i := 0; i < 5; i++ {
		l.CheckAndConsume("acme", 5, 60)
	}
	assert.Equal(t, 0, l.BatchSize("acme", 10, 5, 60))

	now = now.Add(61 * time.Second)
	assert.Equal(t, 5, l.BatchSize("acme", 10, 5, 60))
}
