package domain

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Chain represents the blockchain network identifier using CAIP-2 format
type Chain string

const (
	ChainEthereumMainnet Chain = "eip155:1"
	ChainEthereumSepolia Chain = "eip155:11155111"
	ChainPolygonMainnet  Chain = "eip155:137"
)

// ZeroAddress is the Ethereum zero address, used for mint/burn detection
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// IsValidChain checks if a chain is supported
func IsValidChain(chain Chain) bool {
	return chain == ChainEthereumMainnet ||
		chain == ChainEthereumSepolia ||
		chain == ChainPolygonMainnet
}

// EventKind identifies a marketplace contract event
type EventKind string

const (
	EventStoryMinted      EventKind = "story_minted"
	EventListingCreated   EventKind = "listing_created"
	EventListingSold      EventKind = "listing_sold"
	EventListingCancelled EventKind = "listing_cancelled"
	EventOfferMade        EventKind = "offer_made"
	EventOfferAccepted    EventKind = "offer_accepted"
	EventBundlePurchased  EventKind = "bundle_purchased"
	EventLazyMintConsumed EventKind = "lazy_mint_consumed"
)

// ListingType distinguishes fixed-price listings from auctions
type ListingType string

const (
	ListingTypeFixed   ListingType = "fixed"
	ListingTypeAuction ListingType = "auction"
)

// MarketEvent is the normalized representation of a marketplace contract log.
// Logs are decoded exactly once at the chain-client boundary; everything past
// that point works with this tagged form. Exactly one payload field is non-nil,
// matching Kind.
type MarketEvent struct {
	Kind            EventKind `json:"kind"`
	Chain           Chain     `json:"chain"`
	ContractAddress string    `json:"contract_address"`
	TxHash          string    `json:"tx_hash"`
	BlockNumber     uint64    `json:"block_number"`
	TxIndex         uint64    `json:"tx_index"`
	LogIndex        uint64    `json:"log_index"`
	Timestamp       time.Time `json:"timestamp"`

	StoryMinted      *StoryMintedPayload      `json:"story_minted,omitempty"`
	ListingCreated   *ListingCreatedPayload   `json:"listing_created,omitempty"`
	ListingSold      *ListingSoldPayload      `json:"listing_sold,omitempty"`
	ListingCancelled *ListingCancelledPayload `json:"listing_cancelled,omitempty"`
	OfferMade        *OfferMadePayload        `json:"offer_made,omitempty"`
	OfferAccepted    *OfferAcceptedPayload    `json:"offer_accepted,omitempty"`
	BundlePurchased  *BundlePurchasedPayload  `json:"bundle_purchased,omitempty"`
	LazyMintConsumed *LazyMintConsumedPayload `json:"lazy_mint_consumed,omitempty"`
}

// StoryMintedPayload carries a StoryMinted(tokenId, author, contentCID) event
type StoryMintedPayload struct {
	TokenID    string `json:"token_id"`
	Author     string `json:"author"`
	ContentCID string `json:"content_cid"`
}

// ListingCreatedPayload carries a ListingCreated event
type ListingCreatedPayload struct {
	ListingID    string      `json:"listing_id"`
	TokenID      string      `json:"token_id"`
	Seller       string      `json:"seller"`
	PriceWei     string      `json:"price_wei"`
	ListingType  ListingType `json:"listing_type"`
	AuctionStart *time.Time  `json:"auction_start,omitempty"`
	AuctionEnd   *time.Time  `json:"auction_end,omitempty"`
}

// ListingSoldPayload carries a ListingSold event
type ListingSoldPayload struct {
	ListingID      string `json:"listing_id"`
	TokenID        string `json:"token_id"`
	Seller         string `json:"seller"`
	Buyer          string `json:"buyer"`
	PriceWei       string `json:"price_wei"`
	PlatformFeeWei string `json:"platform_fee_wei"`
	RoyaltyWei     string `json:"royalty_wei"`
}

// ListingCancelledPayload carries a ListingCancelled event
type ListingCancelledPayload struct {
	ListingID string `json:"listing_id"`
	TokenID   string `json:"token_id"`
}

// OfferMadePayload carries an OfferMade event
type OfferMadePayload struct {
	TokenID  string    `json:"token_id"`
	Offerer  string    `json:"offerer"`
	PriceWei string    `json:"price_wei"`
	Expiry   time.Time `json:"expiry"`
}

// OfferAcceptedPayload carries an OfferAccepted event
type OfferAcceptedPayload struct {
	TokenID   string `json:"token_id"`
	Offerer   string `json:"offerer"`
	ListingID string `json:"listing_id"`
	PriceWei  string `json:"price_wei"`
}

// BundlePurchasedPayload carries a BundlePurchased event
type BundlePurchasedPayload struct {
	Buyer         string   `json:"buyer"`
	ListingIDs    []string `json:"listing_ids"`
	TotalPriceWei string   `json:"total_price_wei"`
	DiscountWei   string   `json:"discount_wei"`
}

// LazyMintConsumedPayload carries a LazyMintConsumed event
type LazyMintConsumedPayload struct {
	TokenID    string `json:"token_id"`
	Author     string `json:"author"`
	ContentCID string `json:"content_cid"`
}

// Valid reports whether the event envelope is well formed and carries exactly
// the payload its Kind requires.
func (e *MarketEvent) Valid() bool {
	if !IsValidChain(e.Chain) {
		return false
	}
	if e.TxHash == "" || !common.IsHexAddress(e.ContractAddress) {
		return false
	}

	switch e.Kind {
	case EventStoryMinted:
		return e.StoryMinted != nil &&
			validTokenNumber(e.StoryMinted.TokenID) &&
			common.IsHexAddress(e.StoryMinted.Author) &&
			e.StoryMinted.ContentCID != ""
	case EventListingCreated:
		if e.ListingCreated == nil {
			return false
		}
		p := e.ListingCreated
		if !validTokenNumber(p.ListingID) || !validTokenNumber(p.TokenID) {
			return false
		}
		if !common.IsHexAddress(p.Seller) || !validWei(p.PriceWei) {
			return false
		}
		switch p.ListingType {
		case ListingTypeFixed:
			return true
		case ListingTypeAuction:
			// Auctions require a window
			return p.AuctionStart != nil && p.AuctionEnd != nil && p.AuctionEnd.After(*p.AuctionStart)
		default:
			return false
		}
	case EventListingSold:
		return e.ListingSold != nil &&
			validTokenNumber(e.ListingSold.ListingID) &&
			validTokenNumber(e.ListingSold.TokenID) &&
			common.IsHexAddress(e.ListingSold.Seller) &&
			common.IsHexAddress(e.ListingSold.Buyer) &&
			validWei(e.ListingSold.PriceWei) &&
			validWei(e.ListingSold.PlatformFeeWei) &&
			validWei(e.ListingSold.RoyaltyWei)
	case EventListingCancelled:
		return e.ListingCancelled != nil &&
			validTokenNumber(e.ListingCancelled.ListingID) &&
			validTokenNumber(e.ListingCancelled.TokenID)
	case EventOfferMade:
		return e.OfferMade != nil &&
			validTokenNumber(e.OfferMade.TokenID) &&
			common.IsHexAddress(e.OfferMade.Offerer) &&
			validWei(e.OfferMade.PriceWei) &&
			!e.OfferMade.Expiry.IsZero()
	case EventOfferAccepted:
		return e.OfferAccepted != nil &&
			validTokenNumber(e.OfferAccepted.TokenID) &&
			common.IsHexAddress(e.OfferAccepted.Offerer) &&
			validTokenNumber(e.OfferAccepted.ListingID) &&
			validWei(e.OfferAccepted.PriceWei)
	case EventBundlePurchased:
		if e.BundlePurchased == nil {
			return false
		}
		p := e.BundlePurchased
		if !common.IsHexAddress(p.Buyer) || len(p.ListingIDs) == 0 {
			return false
		}
		for _, id := range p.ListingIDs {
			if !validTokenNumber(id) {
				return false
			}
		}
		return validWei(p.TotalPriceWei) && validWei(p.DiscountWei)
	case EventLazyMintConsumed:
		return e.LazyMintConsumed != nil &&
			validTokenNumber(e.LazyMintConsumed.TokenID) &&
			common.IsHexAddress(e.LazyMintConsumed.Author) &&
			e.LazyMintConsumed.ContentCID != ""
	default:
		return false
	}
}

// NormalizeAddress normalizes an address to EIP-55 checksum form
func NormalizeAddress(address string) string {
	if strings.HasPrefix(address, "0x") {
		return common.HexToAddress(address).String()
	}
	return address
}

// WeiToDisplay converts a wei amount (decimal string) into an ether display
// string, e.g. "1000000000000000000" -> "1", "1500000000000000000" -> "1.5".
func WeiToDisplay(wei string) string {
	n, ok := new(big.Int).SetString(wei, 10)
	if !ok {
		return "0"
	}

	r := new(big.Rat).SetFrac(n, big.NewInt(1e18))
	s := r.FloatString(18)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// validTokenNumber checks if a token/listing number is a non-empty decimal string
func validTokenNumber(n string) bool {
	if n == "" {
		return false
	}
	for _, c := range n {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// validWei checks if a wei amount is a non-negative decimal string
func validWei(wei string) bool {
	n, ok := new(big.Int).SetString(wei, 10)
	return ok && n.Sign() >= 0
}
