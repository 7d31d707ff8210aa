package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spoonbobo/talkact-sub002/internal/socket/app"
	"github.com/spoonbobo/talkact-sub002/internal/socket/repository"
	"github.com/spoonbobo/talkact-sub002/internal/socket/router"
	"github.com/spoonbobo/talkact-sub002/pkg/config"
	"github.com/spoonbobo/talkact-sub002/pkg/database"
	"github.com/spoonbobo/talkact-sub002/pkg/logger"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.SocketService, config.EnvConfig.SocketServiceLogPath)
	cfg := config.LoadConfig[config.Socket](config.EnvConfig.SocketService, config.EnvConfig.SocketServiceYAMLPath)

	// 1. 建立 Redis 連線 (presence / membership / mailbox)
	masterName, sentinel := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(database.RedisConnection{
		MasterName:    masterName,
		SentinelAddrs: sentinel,
		DB:            cfg.Redis.RedisDB,
		RetryCount:    cfg.Redis.RetryCount,
		RetryInterval: time.Duration(cfg.Redis.RetryInterval) * time.Second,
	})
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}

	// 2. 初始化 Repository
	presenceRepo := repository.NewRedisPresenceRepository(redisClient)
	roomRepo := repository.NewRedisRoomRepository(redisClient)
	mailboxRepo := repository.NewRedisMailboxRepository(redisClient, cfg.MailboxMaxLen)
	archiveRepo := repository.NewHTTPArchiveRepository(cfg.Archive.Endpoint, cfg.Archive.Timeout)

	// 3. 初始化 Dispatcher 跟 handler
	conns := app.NewConnRegistry()
	dispatcher := app.NewDispatcher(presenceRepo, roomRepo, mailboxRepo, archiveRepo, conns, cfg.StoreTimeout)
	socketHandler := app.NewSocketHandler(dispatcher)
	notifyHandler := app.NewNotifyHandler(dispatcher)

	// 4. 啟動 Fiber
	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.SocketServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r, socketHandler, notifyHandler, redisClient)

	port := ":" + cfg.ListenPort()
	log.Printf("Socket Service listening on %s", port)
	if err := r.Listen(port); err != nil {
		log.Fatalf("Failed to start Fiber: %v", err)
	}
}
