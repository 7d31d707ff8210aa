package app

import (
	"github.com/spoonbobo/talkact-sub002/internal/socket/domain"
	"github.com/spoonbobo/talkact-sub002/pkg/logger"
	"github.com/spoonbobo/talkact-sub002/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// NotifyHandler HTTP 入口，讓 web application 不開 socket 也能發 notification
type NotifyHandler struct {
	dispatcher *Dispatcher
}

// NewNotifyHandler create NotifyHandler
func NewNotifyHandler(dispatcher *Dispatcher) *NotifyHandler {
	return &NotifyHandler{dispatcher: dispatcher}
}

// Notify handle POST /notify
// body 跟 websocket 的 notification contract 相同
func (h *NotifyHandler) Notify(c *fiber.Ctx) error {
	var n domain.Notification
	if err := c.BodyParser(&n); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed payload",
		})
	}
	if n.RoomID == "" && len(n.Receivers) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "room_id or receivers required",
		})
	}

	if n.SenderID == "" {
		if userID, ok := c.Locals(middlewares.TokenUserID).(string); ok {
			n.SenderID = userID
		}
	}

	if err := h.dispatcher.Notify(c.Context(), n); err != nil {
		logger.Log.Error("notify ingress failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"success": true})
}
