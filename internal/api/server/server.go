package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/griothouse/storymarket/internal/adapter"
	"github.com/griothouse/storymarket/internal/api/middleware"
	"github.com/griothouse/storymarket/internal/api/rest"
	"github.com/griothouse/storymarket/internal/cache"
	"github.com/griothouse/storymarket/internal/ipfs"
	"github.com/griothouse/storymarket/internal/logger"
	"github.com/griothouse/storymarket/internal/store"
)

// Config holds the server configuration
type Config struct {
	Debug        bool
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	Auth          middleware.AuthConfig
	UploadMaxSize int64
	UploadRate    middleware.RateLimitConfig
	CacheTTL      time.Duration
}

// Server wraps the HTTP server
type Server struct {
	config     Config
	store      store.Store
	cache      cache.Cache
	ipfs       ipfs.Client
	limiter    adapter.RedisRateLimiter
	clock      adapter.Clock
	httpServer *http.Server
}

// New creates a new API server. limiter may be nil, which disables upload
// rate limiting.
func New(cfg Config, st store.Store, ch cache.Cache, ipfsClient ipfs.Client, limiter adapter.RedisRateLimiter, clock adapter.Clock) *Server {
	return &Server{
		config:  cfg,
		store:   st,
		cache:   ch,
		ipfs:    ipfsClient,
		limiter: limiter,
		clock:   clock,
	}
}

// Start initializes and starts the HTTP server
func (s *Server) Start() error {
	// Set Gin mode based on debug flag
	if s.config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Setup middleware
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.SetupCORS())

	// Create REST handler
	restHandler := rest.NewHandler(rest.Config{
		Debug:         s.config.Debug,
		UploadMaxSize: s.config.UploadMaxSize,
		CacheTTL:      s.config.CacheTTL,
	}, s.store, s.cache, s.ipfs, s.clock)

	// Setup REST routes
	uploadLimit := middleware.RateLimit(s.limiter, s.config.UploadRate)
	rest.SetupRoutes(router, restHandler, s.config.Auth, uploadLimit)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	logger.Info("Starting API server",
		zap.String("address", addr),
	)

	// Start server
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down API server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	return nil
}
