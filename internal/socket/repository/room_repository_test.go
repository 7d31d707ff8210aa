package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
)

// faultRoomStore 指定的 key 寫入必定失敗，其他照常成功並記錄順序
type faultRoomStore struct {
	failKey string
	calls   []string
}

func (s *faultRoomStore) result(key string) *redis.IntCmd {
	s.calls = append(s.calls, key)
	if key == s.failKey {
		return redis.NewIntResult(0, errors.New("connection refused"))
	}
	return redis.NewIntResult(1, nil)
}

func (s *faultRoomStore) SAdd(_ context.Context, key string, _ ...interface{}) *redis.IntCmd {
	return s.result(key)
}

func (s *faultRoomStore) SRem(_ context.Context, key string, _ ...interface{}) *redis.IntCmd {
	return s.result(key)
}

func (s *faultRoomStore) SMembers(_ context.Context, _ string) *redis.StringSliceCmd {
	return redis.NewStringSliceResult(nil, nil)
}

// 第一筆 (room->member) 已 commit、第二筆 (user->rooms) 失敗:
// 要回傳錯誤讓 caller 知道 membership 暫時不對稱，而不是假裝成功
func TestRedisRoomRepository_JoinPartialWrite(t *testing.T) {
	store := &faultRoomStore{failKey: userRoomsKey("u1")}
	repo := &redisRoomRepository{store: store}

	err := repo.Join(context.Background(), "r1", "u1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "add room to user")

	// 兩邊都試過了，member 那邊已寫進去
	assert.Equal(t, []string{roomMembersKey("r1"), userRoomsKey("u1")}, store.calls)
}

// 第一筆就失敗: 直接回傳，不會再碰第二個 key
func TestRedisRoomRepository_JoinFirstWriteFails(t *testing.T) {
	store := &faultRoomStore{failKey: roomMembersKey("r1")}
	repo := &redisRoomRepository{store: store}

	err := repo.Join(context.Background(), "r1", "u1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "add member")
	assert.Equal(t, []string{roomMembersKey("r1")}, store.calls)
}

// Leave 的對稱情境: member 端已移除、user->rooms 端失敗
func TestRedisRoomRepository_LeavePartialRemove(t *testing.T) {
	store := &faultRoomStore{failKey: userRoomsKey("u1")}
	repo := &redisRoomRepository{store: store}

	err := repo.Leave(context.Background(), "r1", "u1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "remove room from user")
	assert.Equal(t, []string{roomMembersKey("r1"), userRoomsKey("u1")}, store.calls)
}

// Invite 裡某個 user 的 join 失敗: 其他人照常進房，錯誤回報第一個
func TestRedisRoomRepository_InviteContinuesAfterFailure(t *testing.T) {
	store := &faultRoomStore{failKey: userRoomsKey("u2")}
	repo := &redisRoomRepository{store: store}

	err := repo.Invite(context.Background(), "r1", []string{"u1", "u2", "u3"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "u2")

	// u3 還是試了，沒有因 u2 中斷
	assert.Contains(t, store.calls, userRoomsKey("u3"))
}
