package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"alumnichat/server/internal/authz"
	"alumnichat/server/internal/chat"
	"alumnichat/server/internal/config"
	"alumnichat/server/internal/database"
	"alumnichat/server/internal/handlers"
	"alumnichat/server/internal/logger"
	"alumnichat/server/internal/middleware"
	"alumnichat/server/internal/notify"
	"alumnichat/server/internal/presence"
	"alumnichat/server/internal/routes"
	"alumnichat/server/internal/social"
	"alumnichat/server/internal/store"
	"alumnichat/server/internal/utils"
	ws "alumnichat/server/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// Storage
	var (
		chats store.ChatStore
		users social.Directory
	)
	switch cfg.StoreDriver {
	case "memory":
		zlog.Warn("using in-memory store; data is lost on restart")
		chats = store.NewMemoryStore()
		users = social.NewMemoryDirectory()
	default:
		pool, err := database.Connect(ctx, cfg.DatabaseURL, zlog)
		if err != nil {
			return err
		}
		closers = append(closers, pool.Close)
		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
		users = social.NewPGDirectory(pool)

		mc, err := database.ConnectMongo(ctx, cfg.MongoURI, zlog)
		if err != nil {
			return err
		}
		closers = append(closers, func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mc.Disconnect(dctx)
		})
		ms := store.NewMongoStore(mc.Database(cfg.MongoDB))
		if err := ms.EnsureIndexes(ctx); err != nil {
			return err
		}
		chats = ms
	}

	// Presence mirror
	var mirror presence.Mirror = presence.NopMirror{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		closers = append(closers, func() { _ = rdb.Close() })
		mirror = presence.NewRedisMirror(rdb, "alumnichat", 24*time.Hour)
		zlog.Info("redis presence mirror enabled", zap.String("addr", cfg.RedisAddr))
	}

	// Offline notifications
	var notifier notify.Notifier = notify.NewLogNotifier(zlog)
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		notifier = notify.NewKafkaNotifier(brokers, cfg.KafkaNotifyTopic, zlog)
		zlog.Info("kafka offline notifications enabled", zap.Strings("brokers", brokers), zap.String("topic", cfg.KafkaNotifyTopic))
	}
	closers = append(closers, func() { _ = notifier.Close() })

	// Live layer and chat core
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := ws.NewHub(mirror, zlog)
	go hub.Run(hubCtx)

	tokens := utils.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
	service := chat.NewService(chats, users, authz.NewGate(users), hub, notifier, zlog)
	gateway := ws.NewGateway(hub, service, users, tokens, cfg.WS, zlog)

	app := fiber.New(fiber.Config{
		AppName: "Alumni Chat API v1.0",
	})

	// Middleware
	app.Use(recover.New())
	app.Use(middleware.RequestLogger(zlog.Named("http")))
	app.Use(middleware.Metrics())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowCredentials: true,
	}))

	routes.SetupRoutes(app, routes.Handlers{
		Auth:        handlers.NewAuthHandler(users, tokens, cfg.JWTTTL, cfg.IsProduction(), zlog),
		Chats:       handlers.NewChatHandler(service, zlog),
		Connections: handlers.NewConnectionHandler(users, zlog),
		Uploads:     handlers.NewUploadHandler(cfg.UploadDir, zlog),
		Presence:    handlers.NewPresenceHandler(hub, mirror, zlog),
		Gateway:     gateway,
		Tokens:      tokens,
		Limits:      middleware.NewRateLimits(cfg.RateLimits),
	})

	errs := make(chan error, 1)
	go func() {
		zlog.Info("server starting", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))
		errs <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		zlog.Info("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zlog.Warn("fiber shutdown", zap.Error(err))
	}
	stopHub()
	zlog.Info("shutdown complete")
	return nil
}
