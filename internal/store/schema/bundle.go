package schema

import (
	"time"
)

// Bundle represents the bundles table - one row per bundle purchase
// transaction. A bundle and its items are always written in one transaction.
type Bundle struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Chain identifies the blockchain network
	Chain string `gorm:"column:chain;not null;type:text"`
	// TxHash is the bundle purchase transaction hash, unique across all bundles
	TxHash string `gorm:"column:tx_hash;not null;uniqueIndex;type:text"`
	// Buyer is the purchaser's address
	Buyer string `gorm:"column:buyer;not null;type:text;index"`
	// TotalPriceWei is the discounted total paid in wei as a decimal string
	TotalPriceWei string `gorm:"column:total_price_wei;not null;type:text"`
	// DiscountWei is the bundle discount applied in wei
	DiscountWei string `gorm:"column:discount_wei;not null;type:text"`
	// BlockNumber is the block in which the purchase was included
	BlockNumber uint64 `gorm:"column:block_number;not null"`
	// PurchasedAt is the block timestamp of the purchase
	PurchasedAt time.Time `gorm:"column:purchased_at;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;default:now()"`

	// Associations
	Items []BundleItem `gorm:"foreignKey:BundleID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the Bundle model
func (Bundle) TableName() string {
	return "bundles"
}

// BundleItem represents the bundle_items table - one row per listing included
// in a bundle purchase.
type BundleItem struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// BundleID references the owning bundle row
	BundleID int64 `gorm:"column:bundle_id;not null;index:idx_bundle_items_bundle_listing,unique,priority:1"`
	// ListingNumber is the on-chain listing ID included in the bundle
	ListingNumber string `gorm:"column:listing_number;not null;type:text;index:idx_bundle_items_bundle_listing,unique,priority:2"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;default:now()"`
}

// TableName specifies the table name for the BundleItem model
func (BundleItem) TableName() string {
	return "bundle_items"
}
