package schema

import (
	"time"
)

// OfferStatus represents the lifecycle state of an offer
type OfferStatus string

const (
	// OfferStatusPending means the offer is open and may be accepted
	OfferStatusPending OfferStatus = "pending"
	// OfferStatusAccepted means the offer was accepted on chain
	OfferStatusAccepted OfferStatus = "accepted"
	// OfferStatusRejected means the offer was rejected or displaced by an accepted one
	OfferStatusRejected OfferStatus = "rejected"
	// OfferStatusExpired means the offer expiry passed before acceptance
	OfferStatusExpired OfferStatus = "expired"
)

// Offer represents the offers table. Only pending offers transition; at most
// one offer per (chain, token, offerer) ever reaches accepted.
type Offer struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Chain identifies the blockchain network
	Chain string `gorm:"column:chain;not null;type:text;index:idx_offers_chain_token_offerer,unique,priority:1"`
	// TokenNumber references the story token the offer targets
	TokenNumber string `gorm:"column:token_number;not null;type:text;index:idx_offers_chain_token_offerer,unique,priority:2"`
	// Offerer is the address making the offer
	Offerer string `gorm:"column:offerer;not null;type:text;index:idx_offers_chain_token_offerer,unique,priority:3"`
	// PriceWei is the offered amount in wei as a decimal string
	PriceWei string `gorm:"column:price_wei;not null;type:text"`
	// Status is pending, accepted, rejected or expired
	Status OfferStatus `gorm:"column:status;not null;type:text;index"`
	// ExpiresAt is when a pending offer lapses
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`
}

// TableName specifies the table name for the Offer model
func (Offer) TableName() string {
	return "offers"
}
