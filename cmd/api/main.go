package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/griothouse/storymarket/internal/adapter"
	"github.com/griothouse/storymarket/internal/api/middleware"
	"github.com/griothouse/storymarket/internal/api/server"
	"github.com/griothouse/storymarket/internal/cache"
	"github.com/griothouse/storymarket/internal/config"
	"github.com/griothouse/storymarket/internal/ipfs"
	"github.com/griothouse/storymarket/internal/logger"
	"github.com/griothouse/storymarket/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags: map[string]string{
			"service": "api-server",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting StoryMarket API")

	// Connect to database. TranslateError surfaces unique violations as
	// gorm.ErrDuplicatedKey for the handlers.
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{TranslateError: true})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	// Initialize store
	dataStore := store.NewPGStore(db)

	// Initialize adapters
	jsonAdapter := adapter.NewJSON()

	// Redis is optional; without it caching is a pass-through and upload
	// rate limiting is disabled
	apiCache := cache.NewNopCache()
	var rateLimiter adapter.RedisRateLimiter
	if cfg.Redis.URL != "" {
		redisClient, err := adapter.NewRedisClient(cfg.Redis.URL)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.FatalCtx(ctx, "Failed to connect to Redis", zap.Error(err))
		}

		apiCache = cache.NewRedisCache(redisClient, jsonAdapter)
		rateLimiter = redisClient.NewRateLimiter()
		logger.InfoCtx(ctx, "Connected to Redis")
	} else {
		logger.WarnCtx(ctx, "Redis URL not configured, caching and rate limiting disabled")
	}

	// Initialize IPFS client
	httpClient := adapter.NewHTTPClient(cfg.IPFS.Timeout)
	ipfsClient := ipfs.NewClient(cfg.IPFS.NodeURL, cfg.IPFS.GatewayURL, httpClient, jsonAdapter)

	// Create server config
	serverConfig := server.Config{
		Debug:        cfg.Debug,
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		Auth: middleware.AuthConfig{
			JWTPublicKey: cfg.Auth.JWTPublicKey,
			APIKeys:      cfg.Auth.APIKeys,
		},
		UploadMaxSize: cfg.Upload.MaxSize,
		UploadRate: middleware.RateLimitConfig{
			Requests: cfg.Upload.RateLimit,
			Period:   cfg.Upload.RatePeriod,
		},
		CacheTTL: cfg.Redis.CacheTTL,
	}

	// Create and start server
	srv := server.New(serverConfig, dataStore, apiCache, ipfsClient, rateLimiter, adapter.NewClock())

	// Start server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "server"))
		cancel()
	}

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// Shutdown server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.FatalCtx(shutdownCtx, "Server forced to shutdown", zap.Error(err))
	}

	// Use non-context logger for final message since original ctx is canceled
	logger.Info("API server stopped")
}
