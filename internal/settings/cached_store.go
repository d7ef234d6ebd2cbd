package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// cacheClient is the subset of *redis.Client the cache needs.
type cacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type cachedEntry struct {
	Found  bool              `json:"found"`
	Values map[string]string `json:"values,omitempty"`
}

// CachedStore is a read-through Redis cache in front of another Store.
// Values are cached as stored, so encrypted secrets stay encrypted in Redis.
type CachedStore struct {
	next   Store
	client cacheClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedStore wraps next with a Redis cache of the given TTL.
func NewCachedStore(next Store, client cacheClient, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{next: next, client: client, ttl: ttl, logger: logger}
}

func cacheKey(itemID uint64, entityType string, keys []string) string {
	return fmt.Sprintf("psp:settings:%s:%d:%v", entityType, itemID, keys)
}

// GetDetails implements Store. Cache failures fall back to the underlying store.
func (s *CachedStore) GetDetails(ctx context.Context, itemID uint64, entityType string, keys ...string) (map[string]string, bool, error) {
	key := cacheKey(itemID, entityType, keys)

	cached, err := s.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		var entry cachedEntry
		if jsonErr := json.Unmarshal([]byte(cached), &entry); jsonErr == nil {
			return entry.Values, entry.Found, nil
		}
		s.logger.Warn("Discarding unreadable settings cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		s.logger.Warn("Settings cache read failed", zap.String("key", key), zap.Error(err))
	}

	values, found, err := s.next.GetDetails(ctx, itemID, entityType, keys...)
	if err != nil {
		return nil, false, err
	}

	payload, _ := json.Marshal(cachedEntry{Found: found, Values: values})
	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		s.logger.Warn("Settings cache write failed", zap.String("key", key), zap.Error(err))
	}
	return values, found, nil
}
