package messaging

import (
	"context"

	"github.com/griothouse/storymarket/internal/domain"
)

// EventHandler is called for each decoded marketplace event
type EventHandler func(event *domain.MarketEvent) error

// Subscriber defines the interface for live marketplace event subscriptions
//
//go:generate mockgen -source=messaging.go -destination=../mocks/messaging.go -package=mocks -mock_names=Subscriber=MockSubscriber
type Subscriber interface {
	// SubscribeEvents subscribes to marketplace events from the given block
	// (0 for latest) and invokes handler for each decoded event
	SubscribeEvents(ctx context.Context, fromBlock uint64, handler EventHandler) error

	// GetLatestBlock returns the latest block number
	GetLatestBlock(ctx context.Context) (uint64, error)

	// Close closes the connection and cleans up resources
	Close()
}

// Publisher defines the interface for the outbound applied-event feed
//
//go:generate mockgen -source=messaging.go -destination=../mocks/messaging.go -package=mocks -mock_names=Publisher=MockPublisher
type Publisher interface {
	// Publish emits one applied marketplace event
	Publish(ctx context.Context, event *domain.MarketEvent) error

	// Close closes the underlying connection
	Close()
}
