package schema

import (
	"time"

	"gorm.io/datatypes"
)

// LazyMint represents the lazy_mints table - author-signed mint vouchers
// registered off chain. Minted flips false to true exactly once, when the
// voucher is consumed on chain.
type LazyMint struct {
	// ID is a ULID assigned at registration
	ID string `gorm:"column:id;primaryKey;type:text"`
	// Chain identifies the blockchain network the voucher is valid on
	Chain string `gorm:"column:chain;not null;type:text"`
	// Author is the voucher signer's address
	Author string `gorm:"column:author;not null;type:text;index"`
	// ContentCID is the IPFS CID of the story content the voucher mints
	ContentCID string `gorm:"column:content_cid;not null;type:text;index"`
	// Voucher holds the signed mint voucher document
	Voucher datatypes.JSON `gorm:"column:voucher;type:jsonb"`
	// Minted indicates the voucher has been consumed on chain
	Minted bool `gorm:"column:minted;not null;default:false"`
	// TokenNumber is the token ID assigned at consumption, empty until minted
	TokenNumber string `gorm:"column:token_number;type:text"`
	// MintTxHash is the consuming transaction hash, empty until minted
	MintTxHash string     `gorm:"column:mint_tx_hash;type:text"`
	MintedAt   *time.Time `gorm:"column:minted_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;not null;default:now()"`
}

// TableName specifies the table name for the LazyMint model
func (LazyMint) TableName() string {
	return "lazy_mints"
}
