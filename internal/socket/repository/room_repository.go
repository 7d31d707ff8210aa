package repository

import (
	"context"
	"fmt"

	"github.com/spoonbobo/talkact-sub002/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RoomRepository 維護 room <-> user 的雙向關係
// 兩個方向存在不同 key，redis 不會幫忙保持一致，靠這裡的寫入順序
type RoomRepository interface {
	Join(ctx context.Context, roomID, userID string) error
	Invite(ctx context.Context, roomID string, userIDs []string) error
	Leave(ctx context.Context, roomID, userID string) error
	MembersOf(ctx context.Context, roomID string) ([]string, error)
	RoomsOf(ctx context.Context, userID string) ([]string, error)
}

// roomStore membership 用到的 redis 指令子集，測試可以注入壞掉的 store
type roomStore interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

type redisRoomRepository struct {
	store roomStore
}

// NewRedisRoomRepository create redis room repository
func NewRedisRoomRepository(client *redis.Client) RoomRepository {
	return &redisRoomRepository{store: client}
}

// Join add user to room members AND room to user's rooms.
// 第一筆成功、第二筆失敗時 membership 會暫時不對稱，要跟整體失敗分開記
func (r *redisRoomRepository) Join(ctx context.Context, roomID, userID string) error {
	if err := r.store.SAdd(ctx, roomMembersKey(roomID), userID).Err(); err != nil {
		return fmt.Errorf("join room %s: add member %s: %w", roomID, userID, err)
	}
	if err := r.store.SAdd(ctx, userRoomsKey(userID), roomID).Err(); err != nil {
		logger.Log.Error("room membership partial write, room->user side committed",
			zap.String("roomID", roomID),
			zap.String("userID", userID),
			zap.Error(err),
		)
		return fmt.Errorf("join room %s: add room to user %s: %w", roomID, userID, err)
	}
	return nil
}

// Invite batched join, best-effort: 一個 user 失敗不中斷其他人
func (r *redisRoomRepository) Invite(ctx context.Context, roomID string, userIDs []string) error {
	var firstErr error
	for _, userID := range userIDs {
		if err := r.Join(ctx, roomID, userID); err != nil {
			logger.Log.Error("invite user failed",
				zap.String("roomID", roomID),
				zap.String("userID", userID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Leave symmetric removal from both directions
func (r *redisRoomRepository) Leave(ctx context.Context, roomID, userID string) error {
	if err := r.store.SRem(ctx, roomMembersKey(roomID), userID).Err(); err != nil {
		return fmt.Errorf("leave room %s: remove member %s: %w", roomID, userID, err)
	}
	if err := r.store.SRem(ctx, userRoomsKey(userID), roomID).Err(); err != nil {
		logger.Log.Error("room membership partial remove, room->user side committed",
			zap.String("roomID", roomID),
			zap.String("userID", userID),
			zap.Error(err),
		)
		return fmt.Errorf("leave room %s: remove room from user %s: %w", roomID, userID, err)
	}
	return nil
}

// MembersOf point-in-time read, no iteration order guarantee
func (r *redisRoomRepository) MembersOf(ctx context.Context, roomID string) ([]string, error) {
	return r.store.SMembers(ctx, roomMembersKey(roomID)).Result()
}

// RoomsOf rooms the user currently belongs to
func (r *redisRoomRepository) RoomsOf(ctx context.Context, userID string) ([]string, error) {
	return r.store.SMembers(ctx, userRoomsKey(userID)).Result()
}
