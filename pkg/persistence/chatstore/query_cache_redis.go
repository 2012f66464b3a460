package chatstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/go-go-golems/parley/pkg/chat"
)

// RedisQueryCache stores cache entries as JSON values under fingerprint-scoped
// keys. Redis key expiry backs the TTL; Lookup re-checks the stored expiry so
// behavior matches the SQL stores even when a key outlives its entry.
type RedisQueryCache struct {
	rdb *redis.Client
}

var _ QueryCacheStore = &RedisQueryCache{}

func NewRedisQueryCache(rdb *redis.Client) (*RedisQueryCache, error) {
	if rdb == nil {
		return nil, errors.New("redis query cache: client is nil")
	}
	return &RedisQueryCache{rdb: rdb}, nil
}

func redisCacheKey(questionHash, userID, conversationID string) string {
	return fmt.Sprintf("parley:qc:%s:%s:%s", userID, conversationID, questionHash)
}

func (r *RedisQueryCache) Lookup(ctx context.Context, questionHash, userID, conversationID string) (*chat.CacheEntry, error) {
	raw, err := r.rdb.Get(ctx, redisCacheKey(questionHash, userID, conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "redis query cache: lookup")
	}
	var entry chat.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, errors.Wrap(err, "redis query cache: decode entry")
	}
	if entry.Expired(time.Now()) {
		return nil, nil
	}
	return &entry, nil
}

func (r *RedisQueryCache) Insert(ctx context.Context, entry chat.CacheEntry) error {
	if entry.HitCount <= 0 {
		entry.HitCount = 1
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "redis query cache: encode entry")
	}
	var ttl time.Duration
	if !entry.ExpiresAt.IsZero() {
		ttl = time.Until(entry.ExpiresAt)
		if ttl <= 0 {
			return nil
		}
	}
	key := redisCacheKey(entry.QuestionHash, entry.UserID, entry.ConversationID)
	ok, err := r.rdb.SetNX(ctx, key, raw, ttl).Result()
	if err != nil {
		return errors.Wrap(err, "redis query cache: insert")
	}
	_ = ok // first writer wins; a lost race is not an error
	return nil
}

func (r *RedisQueryCache) RecordHit(ctx context.Context, questionHash, userID, conversationID string) error {
	key := redisCacheKey(questionHash, userID, conversationID)
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return errors.Wrap(err, "redis query cache: record hit")
	}
	var entry chat.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return errors.Wrap(err, "redis query cache: decode entry")
	}
	entry.HitCount++
	updated, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "redis query cache: encode entry")
	}
	// KEEPTTL preserves the remaining expiry set at insert time.
	if err := r.rdb.Set(ctx, key, updated, redis.KeepTTL).Err(); err != nil {
		return errors.Wrap(err, "redis query cache: record hit")
	}
	return nil
}
