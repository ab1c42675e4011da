package main

import (
	"context"
	"errors"
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
	"github.com/griothouse/storymarket/internal/block"
	"github.com/griothouse/storymarket/internal/config"
	"github.com/griothouse/storymarket/internal/listener"
	"github.com/griothouse/storymarket/internal/logger"
	"github.com/griothouse/storymarket/internal/messaging"
	"github.com/griothouse/storymarket/internal/providers/ethereum"
	"github.com/griothouse/storymarket/internal/providers/jetstream"
	"github.com/griothouse/storymarket/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadListenerConfig(*configFile, *envPath)
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
			"service": "chain-listener",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting StoryMarket chain listener")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{TranslateError: true})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}

	// Run migrations; the listener owns the schema
	if err := store.AutoMigrate(db); err != nil {
		logger.FatalCtx(ctx, "Failed to run migrations", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database")

	// Initialize store
	dataStore := store.NewPGStore(db)

	// Initialize adapters
	clockAdapter := adapter.NewClock()
	jsonAdapter := adapter.NewJSON()

	// Initialize ethereum client
	ethDialer := adapter.NewEthClientDialer()
	ethClient, err := ethDialer.Dial(ctx, cfg.Ethereum.WebSocketURL)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to dial Ethereum RPC", zap.Error(err), zap.String("websocket_url", cfg.Ethereum.WebSocketURL))
	}
	defer ethClient.Close()

	marketClient := ethereum.NewMarketClient(ethereum.Config{
		ChainID:             cfg.Ethereum.ChainID,
		MarketplaceContract: cfg.Ethereum.MarketplaceContract,
		StoryNFTContract:    cfg.Ethereum.StoryNFTContract,
		FilterChunkSize:     cfg.Ethereum.FilterChunkSize,
	}, ethClient, clockAdapter)
	logger.InfoCtx(ctx, "Connected to Ethereum WebSocket",
		zap.String("chain", string(cfg.Ethereum.ChainID)),
		zap.String("marketplace_contract", cfg.Ethereum.MarketplaceContract))

	ethSubscriber := ethereum.NewSubscriber(marketClient)

	headProvider := block.NewHeadProvider(
		ethereum.NewHeadFetcher(marketClient),
		block.Config{
			TTL:         cfg.Ethereum.BlockHeadTTL,
			StaleWindow: cfg.Ethereum.BlockHeadStaleWindow,
		},
		clockAdapter,
	)

	// The NATS feed is optional; without a URL applied events are not
	// re-published
	var natsPublisher messaging.Publisher
	if cfg.NATS.URL != "" {
		natsJS := adapter.NewNatsJetStream()
		natsPublisher, err = jetstream.NewPublisher(
			ctx,
			jetstream.Config{
				URL:            cfg.NATS.URL,
				StreamName:     cfg.NATS.StreamName,
				MaxReconnects:  cfg.NATS.MaxReconnects,
				ReconnectWait:  cfg.NATS.ReconnectWait,
				ConnectionName: cfg.NATS.ConnectionName,
			}, natsJS, jsonAdapter)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to create NATS publisher", zap.Error(err), zap.String("url", cfg.NATS.URL))
		}
		logger.InfoCtx(ctx, "Connected to NATS JetStream")
	} else {
		logger.WarnCtx(ctx, "NATS URL not configured, event feed disabled")
	}

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	chainListener := listener.NewListener(
		marketClient,
		ethSubscriber,
		natsPublisher,
		headProvider,
		dataStore,
		listener.Config{
			ChainID:             cfg.Ethereum.ChainID,
			StartBlock:          cfg.Ethereum.StartBlock,
			MaxBackfillBlocks:   cfg.Ethereum.MaxBackfillBlocks,
			CursorSaveBlocks:    cfg.CursorSaveBlocks,
			CursorSaveInterval:  cfg.CursorSaveInterval,
			OfferExpiryInterval: cfg.OfferExpiryInterval,
			WorkerPoolSize:      cfg.Worker.WorkerPoolSize,
			WorkerQueueSize:     cfg.Worker.WorkerQueueSize,
		},
		clockAdapter,
	)
	defer chainListener.Close()

	// Channel for listener errors
	errCh := make(chan error, 1)

	// Start the listener
	go func() {
		if err := chainListener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "listener"))
		cancel()
	}

	// Give some time for graceful shutdown
	time.Sleep(time.Second)

	// Use non-context logger for final shutdown message since context is already canceled
	logger.Info("Chain listener stopped")
}
