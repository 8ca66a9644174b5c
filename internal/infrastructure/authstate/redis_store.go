package authstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"crm-visma-sync-layer/internal/ports"
)

const keyPrefix = "visma:auth_state:"

// RedisStore keeps OAuth CSRF states in Redis so callbacks survive a
// process restart mid-consent and the TTL handles expiry for free.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a state store on client.
func NewRedisStore(client *redis.Client) ports.AuthStateStore {
	return &RedisStore{client: client}
}

// SaveAuthState parks a state token until the callback consumes it.
func (s *RedisStore) SaveAuthState(ctx context.Context, state string, ttl time.Duration) error {
	if err := s.client.Set(ctx, keyPrefix+state, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to save auth state: %w", err)
	}
	return nil
}

// ConsumeAuthState atomically removes the state and reports whether it
// existed, so each state validates exactly once.
func (s *RedisStore) ConsumeAuthState(ctx context.Context, state string) (bool, error) {
	err := s.client.GetDel(ctx, keyPrefix+state).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to consume auth state: %w", err)
	}
	return true, nil
}
