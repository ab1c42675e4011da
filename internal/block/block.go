package block

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/griothouse/storymarket/internal/adapter"
	"github.com/griothouse/storymarket/internal/logger"
)

// HeadInfo represents the cached chain head
type HeadInfo struct {
	Number   uint64
	CachedAt time.Time
}

// HeadProvider provides cached access to the latest block number. It reduces
// RPC calls to the chain provider by caching the head for a configurable TTL.
//
//go:generate mockgen -source=block.go -destination=../mocks/head_provider.go -package=mocks -mock_names=HeadProvider=MockHeadProvider
type HeadProvider interface {
	// GetLatestBlock returns the latest block number, potentially from cache
	GetLatestBlock(ctx context.Context) (uint64, error)
}

// HeadFetcher is the interface for fetching the chain head from the blockchain
//
//go:generate mockgen -source=block.go -destination=../mocks/head_provider.go -package=mocks -mock_names=HeadFetcher=MockHeadFetcher
type HeadFetcher interface {
	// FetchLatestBlock fetches the latest block number from the blockchain
	FetchLatestBlock(ctx context.Context) (uint64, error)
}

// Config holds configuration for the HeadProvider
type Config struct {
	// TTL is how long to cache the head block number
	TTL time.Duration

	// StaleWindow is how long to serve stale data if fetching fails.
	// If the cached head is older than this and fetch fails, return error.
	StaleWindow time.Duration
}

type headProvider struct {
	fetcher HeadFetcher
	config  Config
	clock   adapter.Clock

	mu   sync.RWMutex
	head *HeadInfo
}

// NewHeadProvider creates a new HeadProvider with TTL caching
func NewHeadProvider(fetcher HeadFetcher, config Config, clock adapter.Clock) HeadProvider {
	return &headProvider{
		fetcher: fetcher,
		config:  config,
		clock:   clock,
	}
}

// GetLatestBlock returns the latest block number, using cache if valid
func (p *headProvider) GetLatestBlock(ctx context.Context) (uint64, error) {
	p.mu.RLock()
	cached := p.head
	p.mu.RUnlock()

	now := p.clock.Now()

	if cached != nil && now.Sub(cached.CachedAt) < p.config.TTL {
		logger.DebugCtx(ctx, "using cached head block", zap.Uint64("block_number", cached.Number))
		return cached.Number, nil
	}

	blockNumber, err := p.fetcher.FetchLatestBlock(ctx)
	if err != nil {
		// Fall back to stale cache within the stale window
		if cached != nil && now.Sub(cached.CachedAt) < p.config.StaleWindow {
			logger.DebugCtx(ctx, "using stale head block", zap.Uint64("block_number", cached.Number))
			return cached.Number, nil
		}
		return 0, fmt.Errorf("failed to fetch latest block and no valid cache available: %w", err)
	}

	p.mu.Lock()
	p.head = &HeadInfo{
		Number:   blockNumber,
		CachedAt: now,
	}
	p.mu.Unlock()

	return blockNumber, nil
}
