package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SnapshotStore is the narrow persistence contract spec.md §1 leaves
// unspecified ("only the in-memory snapshot contract is specified"). The
// Registry never depends on it directly; it's wired in by a caller that
// wants snapshots to survive a process restart or be shared read-only by
// another process.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, key Key, snap Snapshot) error
	LoadSnapshot(ctx context.Context, key Key) (Snapshot, bool, error)
}

// RedisStore is a SnapshotStore backed by Redis, grounded on the teacher's
// infrastructure/cache.RedisCache wrapper. It stores one JSON blob per key
// under a fixed TTL so a stale persisted snapshot self-expires rather than
// being served forever after a key goes quiet.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore dials addr/db and returns a RedisStore with the given TTL
// for persisted snapshots. A zero ttl disables expiry.
func NewRedisStore(addr string, db int, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		ttl:    ttl,
		prefix: "marketready:registry:",
	}
}

func (s *RedisStore) redisKey(k Key) string {
	return fmt.Sprintf("%s%s:%s", s.prefix, k.Symbol, k.MarketType)
}

// SaveSnapshot persists snap under key, overwriting any prior value.
func (s *RedisStore) SaveSnapshot(ctx context.Context, key Key, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot for %s/%s: %w", key.Symbol, key.MarketType, err)
	}
	if err := s.client.Set(ctx, s.redisKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot for %s/%s: %w", key.Symbol, key.MarketType, err)
	}
	return nil
}

// LoadSnapshot returns the last persisted snapshot for key, if any.
func (s *RedisStore) LoadSnapshot(ctx context.Context, key Key) (Snapshot, bool, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err == redis.Nil {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load snapshot for %s/%s: %w", key.Symbol, key.MarketType, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("unmarshal snapshot for %s/%s: %w", key.Symbol, key.MarketType, err)
	}
	return snap, true, nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
