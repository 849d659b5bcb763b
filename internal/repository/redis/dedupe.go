package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "dedupe:"

// DedupeStore implements repository.DedupeStore and kafka.IdempotencyStore
// with SET NX keys.
type DedupeStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDedupeStore creates a store. ttl applies to keys added through Add.
func NewDedupeStore(client *redis.Client, ttl time.Duration) *DedupeStore {
	return &DedupeStore{client: client, ttl: ttl}
}

// Claim sets key if absent.
func (s *DedupeStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, dedupeKeyPrefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim %s: %w", key, err)
	}
	return ok, nil
}

// Release deletes key.
func (s *DedupeStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, dedupeKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis release %s: %w", key, err)
	}
	return nil
}

// Contains reports whether an event id was recorded.
func (s *DedupeStore) Contains(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, dedupeKeyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", eventID, err)
	}
	return n > 0, nil
}

// Add records an event id for the store ttl.
func (s *DedupeStore) Add(ctx context.Context, eventID string) error {
	if err := s.client.Set(ctx, dedupeKeyPrefix+eventID, "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("redis add %s: %w", eventID, err)
	}
	return nil
}
