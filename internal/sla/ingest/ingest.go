// Package ingest accepts change-events into the message pipeline:
// schema validation, envelope wrapping, capacity admission, enqueue.
package ingest

import (
	"context"
	"encoding/json"
	"time"

	"search-platform/internal/common/config"
	"search-platform/internal/common/errors"
	"search-platform/internal/common/logger"
	"search-platform/internal/common/validation"
	"search-platform/internal/sla/queue"
	"search-platform/internal/sla/retry"
)

// Service admits raw event bodies into a tenant's normal queue.
type Service struct {
	cfg    config.Provider
	router *queue.Router
	logger logger.Logger
	now    func() time.Time
}

func NewService(cfg config.Provider, router *queue.Router, log logger.Logger) *Service {
	return &Service{
		cfg:    cfg,
		router: router,
		logger: log.WithFields(map[string]interface{}{"component": "ingest"}),
		now:    time.Now,
	}
}

// Accept validates one raw event and enqueues it. Admission is denied
// when the tenant's combined queue depth already exceeds its tier
// threshold, so producers see backpressure instead of the queue
// growing without bound.
func (s *Service) Accept(ctx context.Context, tenantID string, raw []byte) (string, error) {
	if err := validation.ValidateEnvelope(raw); err != nil {
		return "", errors.NewParseError(err.Error())
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", errors.NewParseError("event body is not a JSON object")
	}

	tier := s.cfg.TenantTierConfig(tenantID)
	if tier.QueueThreshold > 0 {
		normal, err := s.router.Depth(ctx, tenantID, queue.Normal)
		if err != nil {
			return "", err
		}
		retryDepth, err := s.router.Depth(ctx, tenantID, queue.Retry)
		if err != nil {
			return "", err
		}
		if depth := normal + retryDepth; depth >= tier.QueueThreshold {
			return "", errors.NewQueueCapacityExceededError(tenantID, depth, tier.QueueThreshold)
		}
	}

	env := retry.NewEnvelope(payload, s.now().UnixMilli())
	encoded, err := env.Encode()
	if err != nil {
		return "", err
	}
	if err := s.router.Enqueue(ctx, tenantID, queue.Normal, encoded); err != nil {
		return "", err
	}

	s.logger.Debug("event accepted", map[string]interface{}{
		"tenant": tenantID, "id": env.ID, "adminId": env.AdminID,
	})
	return env.ID, nil
}
