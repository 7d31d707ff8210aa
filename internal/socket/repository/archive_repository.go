package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/spoonbobo/talkact-sub002/internal/socket/domain"

	"github.com/gofiber/fiber/v2"
)

// ArchiveRepository 把訊息的正本交給外部 system-of-record 保存.
// dispatcher 只負責打一次，失敗記 log，不影響即時派送
type ArchiveRepository interface {
	SaveMessage(ctx context.Context, msg domain.ChatMessage) error
}

type httpArchiveRepository struct {
	endpoint string
	timeout  time.Duration
}

// NewHTTPArchiveRepository create archive repository posting to the insert endpoint
func NewHTTPArchiveRepository(endpoint string, timeout time.Duration) ArchiveRepository {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &httpArchiveRepository{endpoint: endpoint, timeout: timeout}
}

// SaveMessage POST the message JSON to the configured endpoint
func (r *httpArchiveRepository) SaveMessage(_ context.Context, msg domain.ChatMessage) error {
	agent := fiber.Post(r.endpoint)
	agent.Timeout(r.timeout)
	agent.JSON(msg)

	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("archive message %s: %w", msg.ID, errs[0])
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("archive message %s: insert endpoint returned %d", msg.ID, code)
	}
	return nil
}
