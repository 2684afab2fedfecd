// Package lock provides a per-tenant advisory lock and a light
// read-through cache over Redis, used alongside gorm+postgres for
// cross-process coordination and hot-value caching.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iaros/vintage-crm-core/internal/corerr"
)

const (
	lockPrefix     = "vcrm:lock:tenant:"
	popularityKey  = "vcrm:cache:popularity:"
	defaultTTL     = 10 * time.Minute
	renewInterval  = 3 * time.Minute
)

// TenantLocker serializes one pipeline run per tenant: at most one
// in-flight run per tenant; a second request observes Conflict.
type TenantLocker struct {
	rdb *redis.Client
}

// New wraps an existing *redis.Client.
func New(rdb *redis.Client) *TenantLocker {
	return &TenantLocker{rdb: rdb}
}

// Lease represents a held tenant lock. Release must be called exactly
// once to free it early; otherwise it expires after its TTL.
type Lease struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Release stops the renewal goroutine and deletes the lock key.
func (l *Lease) Release() {
	l.cancel()
	<-l.done
}

// Acquire takes the per-tenant lock or returns a Conflict error if
// another run already holds it. The lock auto-renews until Release is
// called, bounding orphaned locks to at most defaultTTL past a crash.
func (l *TenantLocker) Acquire(ctx context.Context, tenantID int64, runID string) (*Lease, error) {
	key := fmt.Sprintf("%s%d", lockPrefix, tenantID)
	ok, err := l.rdb.SetNX(ctx, key, runID, defaultTTL).Result()
	if err != nil {
		return nil, corerr.NewStorageError("lock.Acquire", err)
	}
	if !ok {
		return nil, corerr.New(corerr.Conflict, "lock.Acquire", "tenant already has a run in flight")
	}

	leaseCtx, cancel := context.WithCancel(context.Background())
	lease := &Lease{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(lease.done)
		ticker := time.NewTicker(renewInterval)
		defer ticker.Stop()
		for {
			select {
			case <-leaseCtx.Done():
				delCtx, delCancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer delCancel()
				_ = l.rdb.Del(delCtx, key).Err()
				return
			case <-ticker.C:
				_ = l.rdb.Expire(leaseCtx, key, defaultTTL).Err()
			}
		}
	}()

	return lease, nil
}

// PopularityCache is a read-through cache over each product's
// global_popularity_score, avoiding a full products scan on every scoring
// call within a single pipeline run.
type PopularityCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPopularityCache wraps rdb with the default TTL.
func NewPopularityCache(rdb *redis.Client) *PopularityCache {
	return &PopularityCache{rdb: rdb, ttl: defaultTTL}
}

func cacheKey(tenantID int64, productKey string) string {
	return fmt.Sprintf("%s%d:%s", popularityKey, tenantID, productKey)
}

// Get returns the cached score and true, or false on a cache miss.
func (c *PopularityCache) Get(ctx context.Context, tenantID int64, productKey string) (float64, bool, error) {
	v, err := c.rdb.Get(ctx, cacheKey(tenantID, productKey)).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, corerr.NewStorageError("lock.PopularityCache.Get", err)
	}
	return v, true, nil
}

// Set stores score for productKey with the cache TTL.
func (c *PopularityCache) Set(ctx context.Context, tenantID int64, productKey string, score float64) error {
	if err := c.rdb.Set(ctx, cacheKey(tenantID, productKey), score, c.ttl).Err(); err != nil {
		return corerr.NewStorageError("lock.PopularityCache.Set", err)
	}
	return nil
}
