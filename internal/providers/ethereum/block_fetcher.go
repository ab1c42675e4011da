package ethereum

import (
	"context"

	"github.com/griothouse/storymarket/internal/block"
)

// headFetcher adapts a MarketClient to the block.HeadFetcher interface
type headFetcher struct {
	client MarketClient
}

// NewHeadFetcher creates a chain head fetcher backed by the market client
func NewHeadFetcher(client MarketClient) block.HeadFetcher {
	return &headFetcher{client: client}
}

func (f *headFetcher) FetchLatestBlock(ctx context.Context) (uint64, error) {
	return f.client.LatestBlock(ctx)
}
