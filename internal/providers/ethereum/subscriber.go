package ethereum

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/griothouse/storymarket/internal/logger"
	"github.com/griothouse/storymarket/internal/messaging"
)

type ethSubscriber struct {
	client MarketClient
}

// NewSubscriber creates a live marketplace event subscriber over a market client
func NewSubscriber(client MarketClient) messaging.Subscriber {
	return &ethSubscriber{client: client}
}

// SubscribeEvents subscribes to marketplace contract logs and invokes handler
// for each decoded event. Decode failures are logged and skipped so one bad
// log never stalls the stream.
func (s *ethSubscriber) SubscribeEvents(ctx context.Context, fromBlock uint64, handler messaging.EventHandler) error {
	logs := make(chan types.Log)
	sub, err := s.client.SubscribeMarketLogs(ctx, fromBlock, logs)
	if err != nil {
		return fmt.Errorf("failed to subscribe to filter logs: %w", err)
	}
	defer func() {
		logger.InfoCtx(ctx, "unsubscribing from marketplace logs")
		sub.Unsubscribe()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("subscription error: %w", err)
		case vLog := <-logs:
			event, err := s.client.ParseMarketLog(ctx, vLog)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.ErrorCtx(ctx, err, zap.String("message", "error parsing log"),
					zap.String("txHash", vLog.TxHash.Hex()))
				continue
			}

			if event == nil {
				continue
			}

			if err := handler(event); err != nil {
				logger.ErrorCtx(ctx, err, zap.String("message", "error handling event"),
					zap.String("txHash", vLog.TxHash.Hex()))
			}
		}
	}
}

// GetLatestBlock returns the latest block number
func (s *ethSubscriber) GetLatestBlock(ctx context.Context) (uint64, error) {
	return s.client.LatestBlock(ctx)
}

// Close closes the connection
func (s *ethSubscriber) Close() {
	if s.client == nil {
		return
	}
	s.client.Close()
	logger.Info("ethereum websocket connection closed")
}
