// Package processor applies accepted change-events to the tenant's
// search index. This is the replayable unit of work the pipeline rate
// limits and retries.
package processor

import (
	"context"

	"search-platform/internal/common/config"
	"search-platform/internal/common/errors"
	"search-platform/internal/common/logger"
	"search-platform/internal/search/backend"
	"search-platform/internal/sla/retry"
)

// Indexer writes one envelope into the tenant's index.
type Indexer struct {
	cfg     config.Provider
	backend backend.SearchBackend
	logger  logger.Logger
}

func NewIndexer(cfg config.Provider, be backend.SearchBackend, log logger.Logger) *Indexer {
	return &Indexer{
		cfg:     cfg,
		backend: be,
		logger:  log.WithFields(map[string]interface{}{"component": "processor"}),
	}
}

// Process indexes the envelope payload. The document id comes from the
// payload when present so repeated deliveries overwrite rather than
// duplicate. A payload with action "delete" removes the document.
func (p *Indexer) Process(ctx context.Context, tenantID string, env *retry.Envelope) error {
	index := p.cfg.TenantIndex(tenantID)
	if index == "" {
		return errors.NewProcessError(errors.NewParseError("tenant has no index"))
	}

	op := backend.BulkOp{
		Action: "index",
		Index:  index,
		ID:     documentID(env),
		Doc:    env.Payload,
	}
	if action, _ := env.Payload["action"].(string); action == "delete" {
		op.Action = "delete"
		op.Doc = nil
	}

	if _, err := p.backend.Bulk(ctx, []backend.BulkOp{op}); err != nil {
		return err
	}

	p.logger.Debug("event applied", map[string]interface{}{
		"tenant": tenantID, "id": env.ID, "index": index, "action": op.Action,
	})
	return nil
}

func documentID(env *retry.Envelope) string {
	if id, ok := env.Payload["id"].(string); ok && id != "" {
		return id
	}
	return env.ID
}
