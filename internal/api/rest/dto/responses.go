package dto

import (
	"encoding/json"
	"time"

	"github.com/griothouse/storymarket/internal/domain"
	"github.com/griothouse/storymarket/internal/store/schema"
)

// StoryResponse represents a story NFT
type StoryResponse struct {
	Chain       string          `json:"chain"`
	TokenNumber string          `json:"token_number"`
	ContentCID  string          `json:"content_cid"`
	ContentURL  string          `json:"content_url,omitempty"`
	Author      string          `json:"author"`
	Minted      bool            `json:"minted"`
	MintTxHash  string          `json:"mint_tx_hash,omitempty"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Tribe       string          `json:"tribe,omitempty"`
	Language    string          `json:"language,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// StoryListResponse represents a paginated list of stories
type StoryListResponse struct {
	Items []StoryResponse `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// MapStoryToDTO maps a schema.Story to StoryResponse. contentURL resolves the
// content CID to a public gateway URL and may be empty.
func MapStoryToDTO(story *schema.Story, contentURL string) *StoryResponse {
	dto := &StoryResponse{
		Chain:       story.Chain,
		TokenNumber: story.TokenNumber,
		ContentCID:  story.ContentCID,
		ContentURL:  contentURL,
		Author:      story.Author,
		Minted:      story.Minted,
		MintTxHash:  story.MintTxHash,
		Title:       story.Title,
		Description: story.Description,
		Tribe:       story.Tribe,
		Language:    story.Language,
		CreatedAt:   story.CreatedAt,
		UpdatedAt:   story.UpdatedAt,
	}

	if story.Metadata != nil {
		dto.Metadata = json.RawMessage(story.Metadata)
	}

	return dto
}

// ListingResponse represents a marketplace listing
type ListingResponse struct {
	Chain         string     `json:"chain"`
	ListingNumber string     `json:"listing_number"`
	TokenNumber   string     `json:"token_number"`
	Seller        string     `json:"seller"`
	PriceWei      string     `json:"price_wei"`
	Price         string     `json:"price"`
	Type          string     `json:"type"`
	Status        string     `json:"status"`
	AuctionStart  *time.Time `json:"auction_start,omitempty"`
	AuctionEnd    *time.Time `json:"auction_end,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ListingListResponse represents a paginated list of listings
type ListingListResponse struct {
	Items []ListingResponse `json:"items"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

// MapListingToDTO maps a schema.Listing to ListingResponse
func MapListingToDTO(listing *schema.Listing) *ListingResponse {
	return &ListingResponse{
		Chain:         listing.Chain,
		ListingNumber: listing.ListingNumber,
		TokenNumber:   listing.TokenNumber,
		Seller:        listing.Seller,
		PriceWei:      listing.PriceWei,
		Price:         domain.WeiToDisplay(listing.PriceWei),
		Type:          string(listing.Type),
		Status:        string(listing.Status),
		AuctionStart:  listing.AuctionStart,
		AuctionEnd:    listing.AuctionEnd,
		CreatedAt:     listing.CreatedAt,
		UpdatedAt:     listing.UpdatedAt,
	}
}

// SaleResponse represents a completed sale
type SaleResponse struct {
	Chain          string    `json:"chain"`
	TxHash         string    `json:"tx_hash"`
	ListingNumber  string    `json:"listing_number"`
	TokenNumber    string    `json:"token_number"`
	Seller         string    `json:"seller"`
	Buyer          string    `json:"buyer"`
	PriceWei       string    `json:"price_wei"`
	Price          string    `json:"price"`
	PlatformFeeWei string    `json:"platform_fee_wei"`
	RoyaltyWei     string    `json:"royalty_wei"`
	BlockNumber    uint64    `json:"block_number"`
	SoldAt         time.Time `json:"sold_at"`
}

// SaleListResponse represents a paginated list of sales
type SaleListResponse struct {
	Items []SaleResponse `json:"items"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// MapSaleToDTO maps a schema.Sale to SaleResponse
func MapSaleToDTO(sale *schema.Sale) *SaleResponse {
	return &SaleResponse{
		Chain:          sale.Chain,
		TxHash:         sale.TxHash,
		ListingNumber:  sale.ListingNumber,
		TokenNumber:    sale.TokenNumber,
		Seller:         sale.Seller,
		Buyer:          sale.Buyer,
		PriceWei:       sale.PriceWei,
		Price:          domain.WeiToDisplay(sale.PriceWei),
		PlatformFeeWei: sale.PlatformFeeWei,
		RoyaltyWei:     sale.RoyaltyWei,
		BlockNumber:    sale.BlockNumber,
		SoldAt:         sale.SoldAt,
	}
}

// OfferResponse represents an offer on a story token
type OfferResponse struct {
	ID          int64     `json:"id"`
	Chain       string    `json:"chain"`
	TokenNumber string    `json:"token_number"`
	Offerer     string    `json:"offerer"`
	PriceWei    string    `json:"price_wei"`
	Price       string    `json:"price"`
	Status      string    `json:"status"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OfferListResponse represents a paginated list of offers
type OfferListResponse struct {
	Items []OfferResponse `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// MapOfferToDTO maps a schema.Offer to OfferResponse
func MapOfferToDTO(offer *schema.Offer) *OfferResponse {
	return &OfferResponse{
		ID:          offer.ID,
		Chain:       offer.Chain,
		TokenNumber: offer.TokenNumber,
		Offerer:     offer.Offerer,
		PriceWei:    offer.PriceWei,
		Price:       domain.WeiToDisplay(offer.PriceWei),
		Status:      string(offer.Status),
		ExpiresAt:   offer.ExpiresAt,
		CreatedAt:   offer.CreatedAt,
		UpdatedAt:   offer.UpdatedAt,
	}
}

// NotificationResponse represents a notification
type NotificationResponse struct {
	ID        string          `json:"id"`
	Recipient string          `json:"recipient"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
}

// NotificationListResponse represents a paginated list of notifications
type NotificationListResponse struct {
	Items []NotificationResponse `json:"items"`
	Total int64                  `json:"total"`
	Page  int                    `json:"page"`
	Limit int                    `json:"limit"`
}

// MapNotificationToDTO maps a schema.Notification to NotificationResponse
func MapNotificationToDTO(notification *schema.Notification) *NotificationResponse {
	dto := &NotificationResponse{
		ID:        notification.ID,
		Recipient: notification.Recipient,
		Type:      string(notification.Type),
		Read:      notification.Read,
		CreatedAt: notification.CreatedAt,
	}

	if notification.Data != nil {
		dto.Data = json.RawMessage(notification.Data)
	}

	return dto
}

// LazyMintResponse represents a registered lazy mint voucher
type LazyMintResponse struct {
	ID          string          `json:"id"`
	Chain       string          `json:"chain"`
	Author      string          `json:"author"`
	ContentCID  string          `json:"content_cid"`
	Voucher     json.RawMessage `json:"voucher,omitempty"`
	Minted      bool            `json:"minted"`
	TokenNumber string          `json:"token_number,omitempty"`
	MintTxHash  string          `json:"mint_tx_hash,omitempty"`
	MintedAt    *time.Time      `json:"minted_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// LazyMintListResponse represents a paginated list of lazy mints
type LazyMintListResponse struct {
	Items []LazyMintResponse `json:"items"`
	Total int64              `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

// MapLazyMintToDTO maps a schema.LazyMint to LazyMintResponse
func MapLazyMintToDTO(lazyMint *schema.LazyMint) *LazyMintResponse {
	dto := &LazyMintResponse{
		ID:          lazyMint.ID,
		Chain:       lazyMint.Chain,
		Author:      lazyMint.Author,
		ContentCID:  lazyMint.ContentCID,
		Minted:      lazyMint.Minted,
		TokenNumber: lazyMint.TokenNumber,
		MintTxHash:  lazyMint.MintTxHash,
		MintedAt:    lazyMint.MintedAt,
		CreatedAt:   lazyMint.CreatedAt,
		UpdatedAt:   lazyMint.UpdatedAt,
	}

	if lazyMint.Voucher != nil {
		dto.Voucher = json.RawMessage(lazyMint.Voucher)
	}

	return dto
}

// UploadResponse represents the result of pinning content on IPFS
type UploadResponse struct {
	CID      string `json:"cid"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size"`
}

// HealthResponse represents the health check result
type HealthResponse struct {
	Status string `json:"status"`
}
