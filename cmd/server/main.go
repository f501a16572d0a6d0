package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Baaaki/mealmender/internal/broker"
	"github.com/Baaaki/mealmender/internal/chat"
	"github.com/Baaaki/mealmender/internal/config"
	"github.com/Baaaki/mealmender/internal/database"
	"github.com/Baaaki/mealmender/internal/handler"
	"github.com/Baaaki/mealmender/internal/middleware"
	"github.com/Baaaki/mealmender/internal/repository"
	"github.com/Baaaki/mealmender/internal/service"
	"github.com/Baaaki/mealmender/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	if err := logger.InitForEnvironment(cfg.Environment); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatal("Failed to connect to database", zap.String("driver", cfg.DatabaseDriver), zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Log.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Redis is optional: without it chat stays on this node and requests are not rate limited.
	var redisClient *redis.Client
	var roomBroker broker.RoomBroker
	hub := chat.NewHub()
	if cfg.RedisURL != "" {
		redisClient, err = broker.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()

		redisBroker := broker.NewRedisRoomBroker(redisClient)
		if err := redisBroker.Relay(ctx, hub); err != nil {
			logger.Log.Fatal("Failed to subscribe to chat channel", zap.Error(err))
		}
		roomBroker = redisBroker
		logger.Log.Info("Redis connected", zap.String("node_id", redisBroker.NodeID()))
	} else {
		logger.Log.Warn("REDIS_URL not set, running single-node without rate limiting")
	}

	store := repository.NewStore(db)

	authService := service.NewAuthService(store, cfg.JWTSecret, cfg.JWTExpiry)
	profileService := service.NewProfileService(store, authService)
	donationService := service.NewDonationService(store)
	requestService := service.NewRequestService(store)
	notificationService := service.NewNotificationService(store)
	expiryService := service.NewExpiryService(store, notificationService, cfg.SweepInterval)
	chatService := service.NewChatService(store, hub, roomBroker)
	adminService := service.NewAdminService(store, donationService, expiryService)

	routerCfg := handler.RouterConfig{
		JWTSecret:    cfg.JWTSecret,
		Users:        store.Users,
		CORSOrigins:  cfg.CORSOrigins,
		IsProduction: cfg.IsProduction(),
	}
	if redisClient != nil {
		routerCfg.RateLimiter = middleware.NewRateLimiter(redisClient, middleware.RateLimiterConfig{
			MaxRequests: cfg.RateLimitMaxRequests,
			Window:      cfg.RateLimitWindow,
			BlockTime:   cfg.RateLimitBlockTime,
		})
	}

	router := handler.NewRouter(routerCfg, handler.Handlers{
		Auth:          handler.NewAuthHandler(authService, int(cfg.JWTExpiry.Seconds()), cfg.IsProduction()),
		Profile:       handler.NewProfileHandler(profileService),
		Donations:     handler.NewDonationHandler(donationService),
		Requests:      handler.NewRequestHandler(requestService),
		Messages:      handler.NewMessageHandler(chatService),
		Notifications: handler.NewNotificationHandler(notificationService),
		Admin:         handler.NewAdminHandler(adminService),
		WebSocket:     handler.NewWebSocketHandler(chatService, cfg.CORSOrigins),
		Health:        handler.NewHealthHandler(db, redisClient),
	})

	expiryService.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Server starting",
			zap.String("addr", cfg.ServerPort),
			zap.String("environment", cfg.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Graceful shutdown failed", zap.Error(err))
	}
	if roomBroker != nil {
		_ = roomBroker.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
