package router

import (
	"context"

	"github.com/spoonbobo/talkact-sub002/internal/socket/app"
	"github.com/spoonbobo/talkact-sub002/pkg/middlewares"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 註冊 socket service 的路由
func RegisterRoutes(r *fiber.App, socketHandler *app.SocketHandler, notifyHandler *app.NotifyHandler, redisClient *redis.Client) {
	// health check 不過 JWT
	r.Get("/healthz", func(c *fiber.Ctx) error {
		if err := redisClient.Ping(c.Context()).Err(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "degraded",
				"redis":  err.Error(),
			})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	r.Use(middlewares.JWTMiddleware())

	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		socketHandler.HandleConnection(context.Background(), c)
	}))

	r.Post("/notify", notifyHandler.Notify)
}
