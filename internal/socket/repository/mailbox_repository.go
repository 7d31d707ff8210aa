package repository

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// MailboxRepository 每個 (room, recipient) 一條離線訊息 queue.
// Backlog/Clear 分開給 dispatcher 控制順序: 先讀、推完 transport 再刪，
// 中間掛掉頂多重送 (at-least-once)，不會掉訊息
type MailboxRepository interface {
	Enqueue(ctx context.Context, roomID, userID string, payload []byte) error
	Backlog(ctx context.Context, roomID, userID string) ([][]byte, error)
	Clear(ctx context.Context, roomID, userID string) error
}

type redisMailboxRepository struct {
	client *redis.Client
	maxLen int64
}

// NewRedisMailboxRepository create redis mailbox repository.
// maxLen bounds each queue, oldest entries dropped first; <=0 falls back to 1000
func NewRedisMailboxRepository(client *redis.Client, maxLen int64) MailboxRepository {
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &redisMailboxRepository{client: client, maxLen: maxLen}
}

// Enqueue append payload to the recipient's queue for that room.
// RPUSH 讓 index 0 永遠是最舊的一筆，之後 LRANGE 直接就是收件順序
func (r *redisMailboxRepository) Enqueue(ctx context.Context, roomID, userID string, payload []byte) error {
	key := mailboxKey(roomID, userID)
	if err := r.client.RPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("mailbox enqueue %s: %w", key, err)
	}
	// 超過上限時丟最舊的 (保留尾端 maxLen 筆)
	if err := r.client.LTrim(ctx, key, -r.maxLen, -1).Err(); err != nil {
		return fmt.Errorf("mailbox trim %s: %w", key, err)
	}
	return nil
}

// Backlog read the full backlog in receipt order (oldest first)
func (r *redisMailboxRepository) Backlog(ctx context.Context, roomID, userID string) ([][]byte, error) {
	key := mailboxKey(roomID, userID)
	vals, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("mailbox backlog %s: %w", key, err)
	}
	payloads := make([][]byte, 0, len(vals))
	for _, v := range vals {
		payloads = append(payloads, []byte(v))
	}
	return payloads, nil
}

// Clear delete the queue after the backlog has been handed off
func (r *redisMailboxRepository) Clear(ctx context.Context, roomID, userID string) error {
	if err := r.client.Del(ctx, mailboxKey(roomID, userID)).Err(); err != nil {
		return fmt.Errorf("mailbox clear %s:%s: %w", roomID, userID, err)
	}
	return nil
}
