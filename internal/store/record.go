package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"newscache/internal/model"

	"github.com/redis/go-redis/v9"
)

const expiryIndexKey = "idx:expiry"

// RedisRecordStore keeps cache entries and asset records in Redis.
// Entries live under article:{identifier} with their expiry mirrored into a
// sorted set so the sweep can list stale identifiers without scanning.
type RedisRecordStore struct {
	rdb *redis.Client
}

// NewRedisRecordStore connects to Redis and verifies the connection.
func NewRedisRecordStore(addr string) (*RedisRecordStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisRecordStore{rdb: rdb}, nil
}

// Close cleans up the connection.
func (s *RedisRecordStore) Close() {
	if s.rdb != nil {
		s.rdb.Close()
	}
}

func entryKey(id string) string {
	return fmt.Sprintf("article:%s", id)
}

func assetsKey(articleUID string) string {
	return fmt.Sprintf("assets:%s", articleUID)
}

// PutEntry upserts the entry, replacing any previous value in full. The value
// write and the expiry-index update go through one pipeline.
func (s *RedisRecordStore) PutEntry(ctx context.Context, entry *model.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, entryKey(entry.Identifier), data, 0)
	pipe.ZAdd(ctx, expiryIndexKey, redis.Z{
		Score:  float64(entry.ExpiresAt.UnixMilli()),
		Member: entry.Identifier,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return nil
}

// GetEntry returns the entry for the identifier, expired or not. Freshness is
// the caller's concern.
func (s *RedisRecordStore) GetEntry(ctx context.Context, id string) (*model.CacheEntry, error) {
	val, err := s.rdb.Get(ctx, entryKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	var entry model.CacheEntry
	if err := json.Unmarshal(val, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeleteEntry removes the entry and its expiry-index member.
func (s *RedisRecordStore) DeleteEntry(ctx context.Context, id string) error {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, entryKey(id))
	pipe.ZRem(ctx, expiryIndexKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

// ListExpiredBefore returns every identifier whose expiry is strictly before t.
// A plain range read over the index, so it never blocks concurrent puts/gets.
func (s *RedisRecordStore) ListExpiredBefore(ctx context.Context, t time.Time) ([]string, error) {
	return s.rdb.ZRangeByScore(ctx, expiryIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("(%d", t.UnixMilli()),
	}).Result()
}

// PutAsset upserts one asset record into the article's hash, keyed by role.
func (s *RedisRecordStore) PutAsset(ctx context.Context, rec *model.AssetRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, assetsKey(rec.ArticleUID), string(rec.Role), data).Err()
}

// ListAssets returns every asset record owned by the article.
func (s *RedisRecordStore) ListAssets(ctx context.Context, articleUID string) ([]model.AssetRecord, error) {
	vals, err := s.rdb.HGetAll(ctx, assetsKey(articleUID)).Result()
	if err != nil {
		return nil, err
	}

	records := make([]model.AssetRecord, 0, len(vals))
	for _, v := range vals {
		var rec model.AssetRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// DeleteAssets removes every asset record owned by the article.
func (s *RedisRecordStore) DeleteAssets(ctx context.Context, articleUID string) error {
	return s.rdb.Del(ctx, assetsKey(articleUID)).Err()
}
