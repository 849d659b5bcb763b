package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/utafrali/glowskin/pkg/errors"
)

const (
	resetKeyPrefix = "reset:"
	tokenKeyPrefix = "token:"
)

// ResetTokenStore implements repository.ResetTokenStore using Redis.
type ResetTokenStore struct {
	client *redis.Client
}

// NewResetTokenStore creates a reset token store.
func NewResetTokenStore(client *redis.Client) *ResetTokenStore {
	return &ResetTokenStore{client: client}
}

// Save stores tokenHash -> userID.
func (s *ResetTokenStore) Save(ctx context.Context, tokenHash, userID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, resetKeyPrefix+tokenHash, userID, ttl).Err(); err != nil {
		return fmt.Errorf("redis set reset token: %w", err)
	}
	return nil
}

// Consume atomically reads and deletes the token.
func (s *ResetTokenStore) Consume(ctx context.Context, tokenHash string) (string, error) {
	userID, err := s.client.GetDel(ctx, resetKeyPrefix+tokenHash).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperrors.InvalidInput("reset token is invalid or has expired")
		}
		return "", fmt.Errorf("redis consume reset token: %w", err)
	}
	return userID, nil
}

// TokenCache implements repository.TokenCache using Redis.
type TokenCache struct {
	client *redis.Client
}

// NewTokenCache creates a provider token cache.
func NewTokenCache(client *redis.Client) *TokenCache {
	return &TokenCache{client: client}
}

// Get returns the cached token or "".
func (c *TokenCache) Get(ctx context.Context, name string) (string, error) {
	token, err := c.client.Get(ctx, tokenKeyPrefix+name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis get token: %w", err)
	}
	return token, nil
}

// Set caches token.
func (c *TokenCache) Set(ctx context.Context, name, token string, ttl time.Duration) error {
	if err := c.client.Set(ctx, tokenKeyPrefix+name, token, ttl).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}

// Delete drops the cached token.
func (c *TokenCache) Delete(ctx context.Context, name string) error {
	if err := c.client.Del(ctx, tokenKeyPrefix+name).Err(); err != nil {
		return fmt.Errorf("redis del token: %w", err)
	}
	return nil
}
