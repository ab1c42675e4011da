package dto

import (
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/griothouse/storymarket/internal/domain"
)

// CreateStoryDraftRequest is the body of POST /stories
type CreateStoryDraftRequest struct {
	Chain       string          `json:"chain" binding:"required"`
	TokenNumber string          `json:"token_number" binding:"required"`
	ContentCID  string          `json:"content_cid" binding:"required"`
	Author      string          `json:"author" binding:"required"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Tribe       string          `json:"tribe"`
	Language    string          `json:"language"`
	Metadata    json.RawMessage `json:"metadata"`
}

// Validate checks the draft request fields
func (r *CreateStoryDraftRequest) Validate() error {
	if !domain.IsValidChain(domain.Chain(r.Chain)) {
		return errors.New("unsupported chain")
	}
	if !common.IsHexAddress(r.Author) {
		return errors.New("invalid author address")
	}
	return nil
}

// UpdateStoryMetaRequest is the body of PATCH /stories/:chain/:token_number.
// Only the fields present in the body are changed.
type UpdateStoryMetaRequest struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Tribe       *string         `json:"tribe"`
	Language    *string         `json:"language"`
	Metadata    json.RawMessage `json:"metadata"`
}

// Empty reports whether the request changes nothing
func (r *UpdateStoryMetaRequest) Empty() bool {
	return r.Title == nil && r.Description == nil && r.Tribe == nil &&
		r.Language == nil && r.Metadata == nil
}

// CreateOfferRequest is the body of POST /marketplace/offers
type CreateOfferRequest struct {
	Chain       string    `json:"chain" binding:"required"`
	TokenNumber string    `json:"token_number" binding:"required"`
	Offerer     string    `json:"offerer" binding:"required"`
	PriceWei    string    `json:"price_wei" binding:"required"`
	ExpiresAt   time.Time `json:"expires_at" binding:"required"`
}

// Validate checks the offer request fields
func (r *CreateOfferRequest) Validate() error {
	if !domain.IsValidChain(domain.Chain(r.Chain)) {
		return errors.New("unsupported chain")
	}
	if !common.IsHexAddress(r.Offerer) {
		return errors.New("invalid offerer address")
	}
	if n, ok := new(big.Int).SetString(r.PriceWei, 10); !ok || n.Sign() <= 0 {
		return errors.New("price_wei must be a positive decimal string")
	}
	if r.ExpiresAt.Before(time.Now()) {
		return errors.New("expires_at must be in the future")
	}
	return nil
}

// CreateLazyMintRequest is the body of POST /lazy-mints
type CreateLazyMintRequest struct {
	Chain      string          `json:"chain" binding:"required"`
	Author     string          `json:"author" binding:"required"`
	ContentCID string          `json:"content_cid" binding:"required"`
	Voucher    json.RawMessage `json:"voucher" binding:"required"`
}

// Validate checks the lazy mint request fields
func (r *CreateLazyMintRequest) Validate() error {
	if !domain.IsValidChain(domain.Chain(r.Chain)) {
		return errors.New("unsupported chain")
	}
	if !common.IsHexAddress(r.Author) {
		return errors.New("invalid author address")
	}
	return nil
}

// MarkLazyMintMintedRequest is the body of PATCH /lazy-mints/:id/minted
type MarkLazyMintMintedRequest struct {
	TokenNumber string `json:"token_number" binding:"required"`
	MintTxHash  string `json:"mint_tx_hash" binding:"required"`
}
