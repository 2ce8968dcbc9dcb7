// Package ledger provides a Redis-backed unlock ledger.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"storylock/internal/store"
)

// RedisStore keeps one hash per chapter, keyed by user id. HSETNX gives the
// compare-and-set that makes the first successful unlock the only one.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a ledger from an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "storylock:",
	}
}

func (s *RedisStore) unlocksKey(chapterID string) string {
	return s.prefix + "unlocks:" + chapterID
}

func (s *RedisStore) attemptsKey(chapterID string) string {
	return s.prefix + "attempts:" + chapterID
}

type recordData struct {
	UnlockedAt time.Time `json:"unlocked_at"`
	Method     string    `json:"method"`
}

func (s *RedisStore) LookupUnlock(ctx context.Context, chapterID, userID string) (store.UnlockRecord, bool, error) {
	raw, err := s.client.HGet(ctx, s.unlocksKey(chapterID), userID).Result()
	if errors.Is(err, redis.Nil) {
		return store.UnlockRecord{}, false, nil
	}
	if err != nil {
		return store.UnlockRecord{}, false, fmt.Errorf("lookup unlock: %w", err)
	}
	record, err := decodeRecord(chapterID, userID, raw)
	if err != nil {
		return store.UnlockRecord{}, false, err
	}
	return record, true, nil
}

// RecordUnlock stores record unless the user already has one for the
// chapter, returning the stored record and whether this call wrote it.
func (s *RedisStore) RecordUnlock(ctx context.Context, record store.UnlockRecord) (store.UnlockRecord, bool, error) {
	payload, err := json.Marshal(recordData{UnlockedAt: record.UnlockedAt.UTC(), Method: record.Method})
	if err != nil {
		return store.UnlockRecord{}, false, fmt.Errorf("marshal unlock: %w", err)
	}

	created, err := s.client.HSetNX(ctx, s.unlocksKey(record.ChapterID), record.UserID, payload).Result()
	if err != nil {
		return store.UnlockRecord{}, false, fmt.Errorf("record unlock: %w", err)
	}
	if created {
		stored := record
		stored.UnlockedAt = record.UnlockedAt.UTC()
		return stored, true, nil
	}

	existing, ok, err := s.LookupUnlock(ctx, record.ChapterID, record.UserID)
	if err != nil {
		return store.UnlockRecord{}, false, err
	}
	if !ok {
		return store.UnlockRecord{}, false, fmt.Errorf("record unlock: conflicting entry for %s/%s vanished", record.ChapterID, record.UserID)
	}
	return existing, false, nil
}

func (s *RedisStore) IncrementAttempts(ctx context.Context, chapterID string) (int64, error) {
	count, err := s.client.Incr(ctx, s.attemptsKey(chapterID)).Result()
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	return count, nil
}

func (s *RedisStore) AttemptCount(ctx context.Context, chapterID string) (int64, error) {
	count, err := s.client.Get(ctx, s.attemptsKey(chapterID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read attempt count: %w", err)
	}
	return count, nil
}

// ListUnlocks returns the chapter's records ordered by unlock time.
func (s *RedisStore) ListUnlocks(ctx context.Context, chapterID string) ([]store.UnlockRecord, error) {
	entries, err := s.client.HGetAll(ctx, s.unlocksKey(chapterID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}

	items := make([]store.UnlockRecord, 0, len(entries))
	for userID, raw := range entries {
		record, err := decodeRecord(chapterID, userID, raw)
		if err != nil {
			return nil, err
		}
		items = append(items, record)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].UnlockedAt.Equal(items[j].UnlockedAt) {
			return items[i].UserID < items[j].UserID
		}
		return items[i].UnlockedAt.Before(items[j].UnlockedAt)
	})
	return items, nil
}

func decodeRecord(chapterID, userID, raw string) (store.UnlockRecord, error) {
	var data recordData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return store.UnlockRecord{}, fmt.Errorf("unmarshal unlock %s/%s: %w", chapterID, userID, err)
	}
	return store.UnlockRecord{
		ChapterID:  chapterID,
		UserID:     userID,
		UnlockedAt: data.UnlockedAt,
		Method:     data.Method,
	}, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
