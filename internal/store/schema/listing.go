package schema

import (
	"time"
)

// ListingStatus represents the lifecycle state of a listing
type ListingStatus string

const (
	// ListingStatusActive means the listing is open for purchase
	ListingStatusActive ListingStatus = "active"
	// ListingStatusSold means the listing has been purchased
	ListingStatusSold ListingStatus = "sold"
	// ListingStatusCancelled means the seller cancelled the listing
	ListingStatusCancelled ListingStatus = "cancelled"
)

// ListingType represents the pricing mechanism of a listing
type ListingType string

const (
	// ListingTypeFixed is a fixed-price listing
	ListingTypeFixed ListingType = "fixed"
	// ListingTypeAuction is a timed auction listing
	ListingTypeAuction ListingType = "auction"
)

// Listing represents the listings table. Status transitions are monotonic:
// active may become sold or cancelled, terminal states never change.
type Listing struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Chain identifies the blockchain network
	Chain string `gorm:"column:chain;not null;type:text;index:idx_listings_chain_listing,unique,priority:1"`
	// ListingNumber is the on-chain listing ID (string to support very large numbers)
	ListingNumber string `gorm:"column:listing_number;not null;type:text;index:idx_listings_chain_listing,unique,priority:2"`
	// TokenNumber references the listed story token
	TokenNumber string `gorm:"column:token_number;not null;type:text;index"`
	// Seller is the listing creator's address
	Seller string `gorm:"column:seller;not null;type:text;index"`
	// PriceWei is the asking price in wei as a decimal string
	PriceWei string `gorm:"column:price_wei;not null;type:text"`
	// Type is fixed or auction
	Type ListingType `gorm:"column:type;not null;type:text"`
	// Status is active, sold or cancelled
	Status ListingStatus `gorm:"column:status;not null;type:text;index"`
	// AuctionStart is the auction window start, nil for fixed-price listings
	AuctionStart *time.Time `gorm:"column:auction_start"`
	// AuctionEnd is the auction window end, nil for fixed-price listings
	AuctionEnd *time.Time `gorm:"column:auction_end"`
	CreatedAt  time.Time  `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;not null;default:now()"`
}

// TableName specifies the table name for the Listing model
func (Listing) TableName() string {
	return "listings"
}
