// Package rediscache mirrors a Store's topology index into Redis so a
// separate reader process (e.g. a UI) can serve the tree shape without
// contending with the filesystem store's writer. It is purely a read
// replica: it never becomes a second writer of root/node records, preserving
// the single-writer assumption in the specification.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arcreflex/loomforest/store"
)

// Mirror wraps a store.Store and, on every ListAllNodeStructures call,
// writes the wrapped Store's result into Redis under a single key. Its own
// ListAllNodeStructures always reads from the wrapped Store; the Redis copy
// is read back only through ReadMirror (for example, from a second process
// that shares the same Redis instance but not the same fsstore.Store value).
type Mirror struct {
	store.Store
	rdb *redis.Client
	key string
	ttl time.Duration
}

// New wraps next, mirroring its topology index into rdb under key.
func New(next store.Store, rdb *redis.Client, key string, ttl time.Duration) *Mirror {
	if key == "" {
		key = "loomforest:topology"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Mirror{Store: next, rdb: rdb, key: key, ttl: ttl}
}

// ListAllNodeStructures delegates to the wrapped Store and republishes the
// result to Redis so other readers see the same view without hitting the
// filesystem.
func (m *Mirror) ListAllNodeStructures(ctx context.Context) ([]store.NodeStructure, error) {
	structures, err := m.Store.ListAllNodeStructures(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(structures)
	if err != nil {
		return structures, fmt.Errorf("rediscache: marshal topology: %w", err)
	}
	if err := m.rdb.Set(ctx, m.key, data, m.ttl).Err(); err != nil {
		// Redis is a best-effort read replica; a publish failure must not
		// fail the authoritative call.
		return structures, nil
	}
	return structures, nil
}

// ReadMirror fetches the last-published topology snapshot directly from
// Redis, for readers that do not hold a reference to the underlying
// fsstore.Store (e.g. a separate UI process). Returns (nil, false, nil) on a
// cache miss.
func (m *Mirror) ReadMirror(ctx context.Context) ([]store.NodeStructure, bool, error) {
	data, err := m.rdb.Get(ctx, m.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("rediscache: get %s: %w", m.key, err)
	}
	var structures []store.NodeStructure
	if err := json.Unmarshal(data, &structures); err != nil {
		return nil, false, fmt.Errorf("rediscache: decode cached topology: %w", err)
	}
	return structures, true, nil
}

var _ store.Store = (*Mirror)(nil)
