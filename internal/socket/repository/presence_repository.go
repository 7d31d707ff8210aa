package repository

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// PresenceRepository 追蹤每個 user 目前存活的 connection id 集合
type PresenceRepository interface {
	Attach(ctx context.Context, userID, connID string) error
	Detach(ctx context.Context, userID, connID string) error
	ConnectionsOf(ctx context.Context, userID string) ([]string, error)
}

type redisPresenceRepository struct {
	client *redis.Client
}

// NewRedisPresenceRepository create redis presence repository
func NewRedisPresenceRepository(client *redis.Client) PresenceRepository {
	return &redisPresenceRepository{client: client}
}

// Attach add connID to the user's live set. SADD 天然冪等，
// 同一組 (user, conn) 加兩次集合不變
func (r *redisPresenceRepository) Attach(ctx context.Context, userID, connID string) error {
	return r.client.SAdd(ctx, onlineKey(userID), connID).Err()
}

// Detach remove connID from the user's live set.
// pair 不存在也不算錯; redis 會自動清掉空集合
func (r *redisPresenceRepository) Detach(ctx context.Context, userID, connID string) error {
	return r.client.SRem(ctx, onlineKey(userID), connID).Err()
}

// ConnectionsOf return the live connection set, empty means offline
func (r *redisPresenceRepository) ConnectionsOf(ctx context.Context, userID string) ([]string, error) {
	return r.client.SMembers(ctx, onlineKey(userID)).Result()
}
