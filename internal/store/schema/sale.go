package schema

import (
	"time"
)

// Sale represents the sales table. Rows are append-only; the unique tx hash
// makes replayed ListingSold events a no-op.
type Sale struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Chain identifies the blockchain network
	Chain string `gorm:"column:chain;not null;type:text"`
	// TxHash is the sale transaction hash, unique across all sales
	TxHash string `gorm:"column:tx_hash;not null;uniqueIndex;type:text"`
	// ListingNumber references the sold listing
	ListingNumber string `gorm:"column:listing_number;not null;type:text;index"`
	// TokenNumber references the sold story token
	TokenNumber string `gorm:"column:token_number;not null;type:text;index"`
	// Seller is the seller's address
	Seller string `gorm:"column:seller;not null;type:text;index"`
	// Buyer is the buyer's address
	Buyer string `gorm:"column:buyer;not null;type:text;index"`
	// PriceWei is the gross sale price in wei as a decimal string
	PriceWei string `gorm:"column:price_wei;not null;type:text"`
	// PlatformFeeWei is the marketplace fee portion in wei
	PlatformFeeWei string `gorm:"column:platform_fee_wei;not null;type:text"`
	// RoyaltyWei is the author royalty portion in wei
	RoyaltyWei string `gorm:"column:royalty_wei;not null;type:text"`
	// BlockNumber is the block in which the sale was included
	BlockNumber uint64 `gorm:"column:block_number;not null"`
	// SoldAt is the block timestamp of the sale
	SoldAt    time.Time `gorm:"column:sold_at;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
}

// TableName specifies the table name for the Sale model
func (Sale) TableName() string {
	return "sales"
}
