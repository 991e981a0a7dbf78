// Package queue routes tenant messages through Redis lists. Each
// tenant owns one normal queue and one retry queue; a shared set tracks
// tenants with pending work so the scheduler never scans key space.
//
// Delivery is peek-then-ack: DequeueBatch reads without removing, and
// Ack trims only after the batch outcome is settled, so a crash between
// the two redelivers instead of losing messages.
package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"search-platform/internal/common/logger"
	"search-platform/internal/common/metrics"
)

// Kind selects which per-tenant list a call addresses.
type Kind string

const (
	Normal Kind = "normal"
	Retry  Kind = "retry"
)

// Router owns the key layout and the Redis list operations.
type Router struct {
	client         *redis.Client
	normalTemplate string
	retryTemplate  string
	deadLetterKey  string
	pendingSetKey  string
	logger         logger.Logger
}

func NewRouter(client *redis.Client, normalTemplate, retryTemplate, deadLetterKey, pendingSetKey string, log logger.Logger) *Router {
	return &Router{
		client:         client,
		normalTemplate: normalTemplate,
		retryTemplate:  retryTemplate,
		deadLetterKey:  deadLetterKey,
		pendingSetKey:  pendingSetKey,
		logger:         log.WithFields(map[string]interface{}{"component": "queue"}),
	}
}

func (r *Router) key(tenantID string, kind Kind) string {
	if kind == Retry {
		return fmt.Sprintf(r.retryTemplate, tenantID)
	}
	return fmt.Sprintf(r.normalTemplate, tenantID)
}

// DeadLetterKey exposes the shared dead-letter list key.
func (r *Router) DeadLetterKey() string {
	return r.deadLetterKey
}

// Enqueue appends payloads to the tenant's list and registers the
// tenant in the pending set.
func (r *Router) Enqueue(ctx context.Context, tenantID string, kind Kind, payloads ...string) error {
	if len(payloads) == 0 {
		return nil
	}
	values := make([]interface{}, len(payloads))
	for i, p := range payloads {
		values[i] = p
	}
	if err := r.client.RPush(ctx, r.key(tenantID, kind), values...).Err(); err != nil {
		return fmt.Errorf("enqueue %s/%s: %w", tenantID, kind, err)
	}
	if err := r.client.SAdd(ctx, r.pendingSetKey, tenantID).Err(); err != nil {
		return fmt.Errorf("register pending tenant %s: %w", tenantID, err)
	}
	return nil
}

// EnqueueDead appends a payload to the shared dead-letter list.
func (r *Router) EnqueueDead(ctx context.Context, payload string) error {
	if err := r.client.RPush(ctx, r.deadLetterKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue dead letter: %w", err)
	}
	return nil
}

// DequeueBatch peeks up to limit messages from the head of the
// tenant's list without removing them. The bool reports whether the
// list held a full batch, which the scheduler uses to decide whether
// another iteration is worthwhile.
func (r *Router) DequeueBatch(ctx context.Context, tenantID string, kind Kind, limit int) ([]string, bool, error) {
	if limit <= 0 {
		return nil, false, nil
	}
	items, err := r.client.LRange(ctx, r.key(tenantID, kind), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("dequeue %s/%s: %w", tenantID, kind, err)
	}
	return items, len(items) == limit, nil
}

// Ack removes count messages from the head of the tenant's list. When
// the list drains and the normal queue is also empty, the tenant is
// dropped from the pending set.
func (r *Router) Ack(ctx context.Context, tenantID string, kind Kind, count int) error {
	if count <= 0 {
		return nil
	}
	key := r.key(tenantID, kind)
	if err := r.client.LTrim(ctx, key, int64(count), -1).Err(); err != nil {
		return fmt.Errorf("ack %s/%s: %w", tenantID, kind, err)
	}

	normalLen, err := r.client.LLen(ctx, r.key(tenantID, Normal)).Result()
	if err != nil {
		return fmt.Errorf("ack depth check %s: %w", tenantID, err)
	}
	retryLen, err := r.client.LLen(ctx, r.key(tenantID, Retry)).Result()
	if err != nil {
		return fmt.Errorf("ack depth check %s: %w", tenantID, err)
	}
	if normalLen == 0 && retryLen == 0 {
		if err := r.client.SRem(ctx, r.pendingSetKey, tenantID).Err(); err != nil {
			r.logger.Warn("failed to clear pending tenant", map[string]interface{}{
				"tenant": tenantID, "error": err.Error(),
			})
		}
	}
	return nil
}

// Depth reports the current length of the tenant's list and records it
// as a gauge.
func (r *Router) Depth(ctx context.Context, tenantID string, kind Kind) (int64, error) {
	n, err := r.client.LLen(ctx, r.key(tenantID, kind)).Result()
	if err != nil {
		return 0, fmt.Errorf("depth %s/%s: %w", tenantID, kind, err)
	}
	metrics.QueueDepth.WithLabelValues(tenantID, string(kind)).Set(float64(n))
	return n, nil
}

// DeadLetterDepth reports the shared dead-letter list length.
func (r *Router) DeadLetterDepth(ctx context.Context) (int64, error) {
	n, err := r.client.LLen(ctx, r.deadLetterKey).Result()
	if err != nil {
		return 0, fmt.Errorf("dead letter depth: %w", err)
	}
	metrics.QueueDepth.WithLabelValues("all", "dead").Set(float64(n))
	return n, nil
}

// PendingTenants lists tenants that currently have queued work.
func (r *Router) PendingTenants(ctx context.Context) ([]string, error) {
	tenants, err := r.client.SMembers(ctx, r.pendingSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("pending tenants: %w", err)
	}
	return tenants, nil
}
