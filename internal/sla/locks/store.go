// Package locks provides tenant-scoped Redis locks so that at most one
// runner drains a given tenant's queue at a time, even with multiple
// runner processes. Locks are fenced with a random token: release only
// succeeds for the holder, and expiry bounds the damage of a crashed
// holder.
package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"search-platform/internal/common/logger"
)

// releaseScript deletes the lock only when the stored token matches,
// so an expired-and-reacquired lock is never released by the old
// holder.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// Store acquires and releases per-tenant locks.
type Store struct {
	client *redis.Client
	prefix string
	logger logger.Logger
}

func NewStore(client *redis.Client, prefix string, log logger.Logger) *Store {
	return &Store{
		client: client,
		prefix: prefix,
		logger: log.WithFields(map[string]interface{}{"component": "locks"}),
	}
}

func (s *Store) key(tenantID string) string {
	return s.prefix + tenantID
}

// Acquire attempts to take the tenant lock for ttl. It returns the
// fencing token on success and ok=false when another holder owns the
// lock.
func (s *Store) Acquire(ctx context.Context, tenantID string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := s.client.SetNX(ctx, s.key(tenantID), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", tenantID, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the tenant lock if token still holds it.
func (s *Store) Release(ctx context.Context, tenantID, token string) error {
	res, err := s.client.Eval(ctx, releaseScript, []string{s.key(tenantID)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", tenantID, err)
	}
	if n, ok := res.(int64); ok && n == 0 {
		s.logger.Warn("lock already lost at release", map[string]interface{}{"tenant": tenantID})
	}
	return nil
}

// Refresh extends the holder's ttl; ok=false means the lock was lost.
func (s *Store) Refresh(ctx context.Context, tenantID, token string, ttl time.Duration) (bool, error) {
	current, err := s.client.Get(ctx, s.key(tenantID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("refresh lock %s: %w", tenantID, err)
	}
	if current != token {
		return false, nil
	}
	if err := s.client.Expire(ctx, s.key(tenantID), ttl).Err(); err != nil {
		return false, fmt.Errorf("refresh lock %s: %w", tenantID, err)
	}
	return true, nil
}
