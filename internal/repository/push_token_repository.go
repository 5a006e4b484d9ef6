package repository

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const pushTokenKeyPrefix = "push_tokens:"

// PushTokenRepository stores per-user push destination tokens.
// Registration is an idempotent set add; stale tokens are removed
// individually after failed deliveries.
type PushTokenRepository interface {
	Add(ctx context.Context, userID, token string) error
	List(ctx context.Context, userID string) ([]string, error)
	Remove(ctx context.Context, userID string, tokens ...string) error
}

type pushTokenRepository struct {
	client *redis.Client
}

// NewPushTokenRepository builds a Redis-backed implementation.
func NewPushTokenRepository(client *redis.Client) PushTokenRepository {
	return &pushTokenRepository{client: client}
}

func (r *pushTokenRepository) Add(ctx context.Context, userID, token string) error {
	return r.client.SAdd(ctx, pushTokenKeyPrefix+userID, token).Err()
}

func (r *pushTokenRepository) List(ctx context.Context, userID string) ([]string, error) {
	return r.client.SMembers(ctx, pushTokenKeyPrefix+userID).Result()
}

func (r *pushTokenRepository) Remove(ctx context.Context, userID string, tokens ...string) error {
	if len(tokens) == 0 {
		return nil
	}
	members := make([]any, 0, len(tokens))
	for _, token := range tokens {
		members = append(members, token)
	}
	return r.client.SRem(ctx, pushTokenKeyPrefix+userID, members...).Err()
}
