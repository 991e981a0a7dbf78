// Package deadletter persists terminally failed messages to Postgres.
// The Redis dead-letter list is a working queue for operators; the
// archive is the durable record that survives Redis eviction and
// supports offline inspection and replay.
package deadletter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"search-platform/internal/common/logger"
	"search-platform/internal/sla/retry"
)

const insertQuery = `
	INSERT INTO dead_letters (id, tenant_id, admin_id, source, error, attempts, payload, accepted_at, failed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO NOTHING`

// Archive writes dead-lettered envelopes into the dead_letters table.
type Archive struct {
	db     *sql.DB
	logger logger.Logger
}

func NewArchive(db *sql.DB, log logger.Logger) *Archive {
	return &Archive{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "deadletter"}),
	}
}

// Archive inserts one envelope. Re-inserting the same message id is a
// no-op so redelivered dead letters stay idempotent.
func (a *Archive) Archive(ctx context.Context, tenantID string, e *retry.Envelope, source retry.FailureSource) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal dead letter payload %s: %w", e.ID, err)
	}

	acceptedAt := time.UnixMilli(e.Time).UTC()
	_, err = a.db.ExecContext(ctx, insertQuery,
		e.ID, tenantID, e.AdminID, string(source), e.Error, e.RedoNum,
		payload, acceptedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("archive dead letter %s: %w", e.ID, err)
	}

	a.logger.Info("dead letter archived", map[string]interface{}{
		"tenant": tenantID, "id": e.ID, "source": string(source),
	})
	return nil
}

// Recent returns the newest archived dead letters for a tenant, used
// by the operator digest.
func (a *Archive) Recent(ctx context.Context, tenantID string, limit int) ([]Record, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, tenant_id, admin_id, source, error, attempts, failed_at
		FROM dead_letters
		WHERE tenant_id = $1
		ORDER BY failed_at DESC
		LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("query dead letters for %s: %w", tenantID, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.TenantID, &r.AdminID, &r.Source, &r.Error, &r.Attempts, &r.FailedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Record is one archived dead letter row.
type Record struct {
	ID       string
	TenantID string
	AdminID  string
	Source   string
	Error    string
	Attempts int
	FailedAt time.Time
}
