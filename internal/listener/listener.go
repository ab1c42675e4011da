package listener

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/griothouse/storymarket/internal/adapter"
	"github.com/griothouse/storymarket/internal/block"
	"github.com/griothouse/storymarket/internal/domain"
	"github.com/griothouse/storymarket/internal/logger"
	"github.com/griothouse/storymarket/internal/messaging"
	"github.com/griothouse/storymarket/internal/providers/ethereum"
	"github.com/griothouse/storymarket/internal/store"
)

// Config holds the configuration for the chain listener
type Config struct {
	ChainID             domain.Chain
	StartBlock          uint64
	MaxBackfillBlocks   uint64
	CursorSaveBlocks    uint64        // Save cursor every N blocks
	CursorSaveInterval  time.Duration // Or save cursor every N seconds
	OfferExpiryInterval time.Duration
	WorkerPoolSize      int
	WorkerQueueSize     int
}

// Listener reconciles marketplace contract events into the store
//
//go:generate mockgen -source=listener.go -destination=../mocks/listener.go -package=mocks -mock_names=Listener=MockListener
type Listener interface {
	// Run backfills missed blocks and then follows the live event stream
	// until ctx is cancelled or the subscription fails
	Run(ctx context.Context) error
	// Close closes the listener and cleans up resources
	Close()
}

type listener struct {
	client     ethereum.MarketClient
	subscriber messaging.Subscriber
	publisher  messaging.Publisher // nil when the event feed is disabled
	head       block.HeadProvider
	store      store.Store
	config     Config
	clock      adapter.Clock

	lastSavedBlock uint64
	lastSaveTime   time.Time
}

// NewListener creates a new chain listener
func NewListener(
	client ethereum.MarketClient,
	sub messaging.Subscriber,
	pub messaging.Publisher,
	head block.HeadProvider,
	st store.Store,
	cfg Config,
	clock adapter.Clock,
) Listener {
	return &listener{
		client:     client,
		subscriber: sub,
		publisher:  pub,
		head:       head,
		store:      st,
		config:     cfg,
		clock:      clock,
	}
}

// Run backfills the gap between the saved cursor and the chain head, then
// subscribes to live events
func (l *listener) Run(ctx context.Context) error {
	startBlock, resumed, err := l.resolveStartBlock(ctx)
	if err != nil {
		return err
	}

	l.lastSaveTime = l.clock.Now()

	head, err := l.head.GetLatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain head: %w", err)
	}

	// Only a resumed or configured start can be behind the head
	if (resumed || l.config.StartBlock > 0) && startBlock < head {
		if err := l.backfill(ctx, startBlock, head); err != nil {
			return fmt.Errorf("backfill failed: %w", err)
		}
		startBlock = head + 1
	}

	if l.config.OfferExpiryInterval > 0 {
		go l.expireOffersLoop(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting live event subscription",
			zap.String("chain", string(l.config.ChainID)),
			zap.Uint64("fromBlock", startBlock))

		errCh <- l.subscriber.SubscribeEvents(ctx, startBlock, func(event *domain.MarketEvent) error {
			return l.handleEvent(ctx, event)
		})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolveStartBlock determines where processing starts: the configured start
// block, else the saved cursor + 1, else the chain head
func (l *listener) resolveStartBlock(ctx context.Context) (uint64, bool, error) {
	if l.config.StartBlock > 0 {
		logger.Info("starting from configured block",
			zap.String("chain", string(l.config.ChainID)),
			zap.Uint64("block", l.config.StartBlock))
		return l.config.StartBlock, false, nil
	}

	lastBlock, err := l.store.GetBlockCursor(ctx, string(l.config.ChainID))
	if err != nil {
		return 0, false, fmt.Errorf("failed to get block cursor: %w", err)
	}
	if lastBlock > 0 {
		logger.Info("resuming from last processed block",
			zap.String("chain", string(l.config.ChainID)),
			zap.Uint64("block", lastBlock+1))
		return lastBlock + 1, true, nil
	}

	latestBlock, err := l.subscriber.GetLatestBlock(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to get latest block number: %w", err)
	}
	logger.Info("starting from latest block",
		zap.String("chain", string(l.config.ChainID)),
		zap.Uint64("block", latestBlock))
	return latestBlock, false, nil
}

// backfill fetches and applies all marketplace logs in [fromBlock, toBlock].
// Logs are parsed concurrently on a worker pool, then applied strictly in
// (block, txIndex, logIndex) order.
func (l *listener) backfill(ctx context.Context, fromBlock, toBlock uint64) error {
	if l.config.MaxBackfillBlocks > 0 && toBlock-fromBlock > l.config.MaxBackfillBlocks {
		bounded := toBlock - l.config.MaxBackfillBlocks
		logger.Warn("backfill gap exceeds bound, skipping ahead",
			zap.Uint64("cursorBlock", fromBlock),
			zap.Uint64("boundedStart", bounded),
			zap.Uint64("headBlock", toBlock))
		fromBlock = bounded
	}

	logger.Info("backfilling missed blocks",
		zap.String("chain", string(l.config.ChainID)),
		zap.Uint64("fromBlock", fromBlock),
		zap.Uint64("toBlock", toBlock))

	logs, err := l.client.FilterMarketLogs(ctx, fromBlock, toBlock)
	if err != nil {
		return fmt.Errorf("failed to fetch logs: %w", err)
	}

	events, err := l.parseLogs(ctx, logs)
	if err != nil {
		return err
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		if events[i].TxIndex != events[j].TxIndex {
			return events[i].TxIndex < events[j].TxIndex
		}
		return events[i].LogIndex < events[j].LogIndex
	})

	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.handleEvent(ctx, event); err != nil {
			logger.Error(err, zap.String("message", "failed to apply backfill event"),
				zap.String("txHash", event.TxHash))
		}
	}

	if err := l.store.SetBlockCursor(ctx, string(l.config.ChainID), toBlock); err != nil {
		return fmt.Errorf("failed to save cursor after backfill: %w", err)
	}
	l.lastSavedBlock = toBlock
	l.lastSaveTime = l.clock.Now()

	logger.Info("backfill complete",
		zap.String("chain", string(l.config.ChainID)),
		zap.Int("events", len(events)),
		zap.Uint64("cursorBlock", toBlock))
	return nil
}

// parseLogs decodes raw logs concurrently. Decode failures are logged and
// dropped so one malformed log never aborts a backfill.
func (l *listener) parseLogs(ctx context.Context, logs []types.Log) ([]*domain.MarketEvent, error) {
	poolSize := l.config.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 20
	}

	pool := pond.NewPool(poolSize,
		pond.WithQueueSize(l.config.WorkerQueueSize),
		pond.WithContext(ctx),
	)
	defer pool.StopAndWait()

	var mu sync.Mutex
	events := make([]*domain.MarketEvent, 0, len(logs))

	group := pool.NewGroup()
	for _, vLog := range logs {
		vLog := vLog
		group.SubmitErr(func() error {
			event, err := l.client.ParseMarketLog(ctx, vLog)
			if err != nil {
				logger.Error(err, zap.String("message", "failed to parse backfill log"),
					zap.String("txHash", vLog.TxHash.Hex()))
				return nil
			}
			if event == nil {
				return nil
			}

			mu.Lock()
			events = append(events, event)
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("parse pool failed: %w", err)
	}

	return events, nil
}

// handleEvent applies one event to the store with retry, publishes it to the
// outbound feed, and advances the cursor per the save policy
func (l *listener) handleEvent(ctx context.Context, event *domain.MarketEvent) error {
	operation := func() error {
		return l.store.ApplyMarketEvent(ctx, event)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("failed to apply event %s: %w", event.TxHash, err)
	}

	if l.publisher != nil {
		if err := l.publisher.Publish(ctx, event); err != nil {
			// The feed is best effort; the store already holds the truth
			logger.Error(err, zap.String("message", "failed to publish event"),
				zap.String("txHash", event.TxHash))
		}
	}

	l.maybeSaveCursor(ctx, event.BlockNumber)
	return nil
}

// maybeSaveCursor saves the block cursor every N blocks or T seconds
func (l *listener) maybeSaveCursor(ctx context.Context, blockNumber uint64) {
	shouldSave := blockNumber-l.lastSavedBlock >= l.config.CursorSaveBlocks ||
		l.clock.Since(l.lastSaveTime) >= l.config.CursorSaveInterval

	if !shouldSave {
		return
	}

	if err := l.store.SetBlockCursor(ctx, string(l.config.ChainID), blockNumber); err != nil {
		logger.Error(err, zap.String("message", "failed to save block cursor"),
			zap.Uint64("block", blockNumber))
		return
	}

	l.lastSavedBlock = blockNumber
	l.lastSaveTime = l.clock.Now()
}

// expireOffersLoop periodically lapses pending offers past their expiry
func (l *listener) expireOffersLoop(ctx context.Context) {
	ticker := time.NewTicker(l.config.OfferExpiryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := l.store.ExpireOffers(ctx, l.clock.Now())
			if err != nil {
				logger.Error(err, zap.String("message", "failed to expire offers"))
				continue
			}
			if expired > 0 {
				logger.Info("expired pending offers", zap.Int64("count", expired))
			}
		}
	}
}

// Close closes the listener and cleans up resources
func (l *listener) Close() {
	l.subscriber.Close()
	if l.publisher != nil {
		l.publisher.Close()
	}
}
