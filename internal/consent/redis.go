package consent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"relay/internal/constants"
	"relay/pkg/models"
)

// RedisStore persists consent records as JSON so state survives restarts
// and is shared across service instances.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, identifier string) (*models.ConsentStatus, error) {
	raw, err := s.client.Get(ctx, consentKey(identifier)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}

	var status models.ConsentStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal consent record: %w", err)
	}
	return &status, nil
}

func (s *RedisStore) Set(ctx context.Context, identifier string, status models.ConsentStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal consent record: %w", err)
	}
	if err := s.client.Set(ctx, consentKey(identifier), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, identifier string) error {
	if err := s.client.Del(ctx, consentKey(identifier)).Err(); err != nil {
		return fmt.Errorf("redis DEL failed: %w", err)
	}
	return nil
}

func consentKey(identifier string) string {
	return constants.ConsentKeyPrefix + identifier
}
