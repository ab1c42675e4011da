package store

import (
	"context"
	"time"

	"github.com/griothouse/storymarket/internal/domain"
	"github.com/griothouse/storymarket/internal/store/schema"
)

// Page holds pagination parameters for list queries
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps pagination parameters into safe values
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	return p
}

// Offset returns the row offset for the page
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// StoryFilter holds filters for listing stories
type StoryFilter struct {
	Chain    domain.Chain
	Tribe    string
	Language string
	Author   string
	Minted   *bool
	Page     Page
}

// ListingFilter holds filters for listing marketplace listings
type ListingFilter struct {
	Chain  domain.Chain
	Status schema.ListingStatus
	Type   schema.ListingType
	Seller string
	Page   Page
}

// SaleFilter holds filters for listing sales
type SaleFilter struct {
	Chain       domain.Chain
	TokenNumber string
	Seller      string
	Buyer       string
	Page        Page
}

// OfferFilter holds filters for listing offers
type OfferFilter struct {
	Chain       domain.Chain
	TokenNumber string
	Offerer     string
	Status      schema.OfferStatus
	Page        Page
}

// StoryMetaUpdate holds the off-chain story fields the API may change
type StoryMetaUpdate struct {
	Title       *string
	Description *string
	Tribe       *string
	Language    *string
	Metadata    []byte
}

// Store defines the persistence interface shared by the chain listener and
// the API server. The listener is the only writer of chain-derived rows;
// the API writes off-chain fields only.
type Store interface {
	// ApplyMarketEvent reconciles one decoded contract event into the
	// database. Safe to call repeatedly with the same event.
	ApplyMarketEvent(ctx context.Context, event *domain.MarketEvent) error

	// ExpireOffers transitions pending offers whose expiry has passed and
	// returns the number of rows changed.
	ExpireOffers(ctx context.Context, now time.Time) (int64, error)

	// GetBlockCursor retrieves the last processed block number for a chain
	GetBlockCursor(ctx context.Context, chain string) (uint64, error)
	// SetBlockCursor stores the last processed block number for a chain
	SetBlockCursor(ctx context.Context, chain string, blockNumber uint64) error

	// Stories
	ListStories(ctx context.Context, filter StoryFilter) ([]*schema.Story, int64, error)
	GetStory(ctx context.Context, chain domain.Chain, tokenNumber string) (*schema.Story, error)
	CreateStoryDraft(ctx context.Context, story *schema.Story) error
	UpdateStoryMeta(ctx context.Context, chain domain.Chain, tokenNumber string, update StoryMetaUpdate) (*schema.Story, error)

	// Marketplace
	ListListings(ctx context.Context, filter ListingFilter) ([]*schema.Listing, int64, error)
	GetListing(ctx context.Context, chain domain.Chain, listingNumber string) (*schema.Listing, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]*schema.Sale, int64, error)
	ListOffers(ctx context.Context, filter OfferFilter) ([]*schema.Offer, int64, error)
	CreateOffer(ctx context.Context, offer *schema.Offer) error

	// Notifications
	ListNotifications(ctx context.Context, recipient string, page Page) ([]*schema.Notification, int64, error)
	MarkNotificationRead(ctx context.Context, id string) error

	// Lazy mints
	CreateLazyMint(ctx context.Context, lazyMint *schema.LazyMint) error
	GetLazyMint(ctx context.Context, id string) (*schema.LazyMint, error)
	ListLazyMints(ctx context.Context, author string, page Page) ([]*schema.LazyMint, int64, error)
	MarkLazyMintMinted(ctx context.Context, id string, tokenNumber string, txHash string, mintedAt time.Time) error
}
