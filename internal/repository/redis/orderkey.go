package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	orderKeyPrefix = "idempotency:order:"
	inFlight       = "pending"
)

// OrderKeyStore implements repository.OrderKeyStore using Redis.
type OrderKeyStore struct {
	client *redis.Client
}

// NewOrderKeyStore creates an idempotency key store for checkouts.
func NewOrderKeyStore(client *redis.Client) *OrderKeyStore {
	return &OrderKeyStore{client: client}
}

// Reserve sets the key to a placeholder when absent. Otherwise it returns
// the stored order id, or "" while the first request is still running.
func (s *OrderKeyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	k := orderKeyPrefix + key
	ok, err := s.client.SetNX(ctx, k, inFlight, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis reserve idempotency key: %w", err)
	}
	if ok {
		return "", true, nil
	}

	val, err := s.client.Get(ctx, k).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET; treat it as in flight.
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get idempotency key: %w", err)
	}
	if val == inFlight {
		return "", false, nil
	}
	return val, false, nil
}

// Complete stores orderID under key.
func (s *OrderKeyStore) Complete(ctx context.Context, key, orderID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, orderKeyPrefix+key, orderID, ttl).Err(); err != nil {
		return fmt.Errorf("redis complete idempotency key: %w", err)
	}
	return nil
}

// Release deletes key.
func (s *OrderKeyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, orderKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis release idempotency key: %w", err)
	}
	return nil
}
