package schema

import (
	"time"

	"gorm.io/datatypes"
)

// Story represents the stories table - one row per story NFT. On-chain facts
// (token number, author, content CID) are written only by the chain listener;
// off-chain fields (title, description, tribe, language) are owned by the API.
type Story struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Chain identifies the blockchain network (e.g., "eip155:1")
	Chain string `gorm:"column:chain;not null;type:text;index:idx_stories_chain_token,unique,priority:1"`
	// TokenNumber is the token ID within the story NFT contract (string to support very large numbers)
	TokenNumber string `gorm:"column:token_number;not null;type:text;index:idx_stories_chain_token,unique,priority:2"`
	// ContentCID is the IPFS CID of the story content document
	ContentCID string `gorm:"column:content_cid;not null;type:text"`
	// Author is the minting author's address
	Author string `gorm:"column:author;not null;type:text;index"`
	// Minted indicates the token exists on chain; drafts created via the API start false
	Minted bool `gorm:"column:minted;not null;default:false"`
	// MintTxHash is the transaction hash of the mint, empty for drafts
	MintTxHash string `gorm:"column:mint_tx_hash;type:text"`
	// Title is the off-chain display title
	Title string `gorm:"column:title;type:text"`
	// Description is the off-chain story description
	Description string `gorm:"column:description;type:text"`
	// Tribe is the cultural-community tag used for discovery filters
	Tribe string `gorm:"column:tribe;type:text;index"`
	// Language is the BCP-47 language tag of the story content
	Language string `gorm:"column:language;type:text;index"`
	// Metadata holds the full off-chain metadata document
	Metadata  datatypes.JSON `gorm:"column:metadata;type:jsonb"`
	CreatedAt time.Time      `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null;default:now()"`
}

// TableName specifies the table name for the Story model
func (Story) TableName() string {
	return "stories"
}
