package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/griothouse/storymarket/internal/domain"
	"github.com/griothouse/storymarket/internal/store"
	"github.com/griothouse/storymarket/internal/store/schema"
)

const MAX_PAGE_SIZE = 100

// PageQueryParams holds shared pagination query parameters
type PageQueryParams struct {
	Page  int `form:"page,default=1"`
	Limit int `form:"limit,default=20"`
}

// ToPage converts the raw query values into a normalized store page
func (p PageQueryParams) ToPage() store.Page {
	if p.Limit > MAX_PAGE_SIZE {
		p.Limit = MAX_PAGE_SIZE
	}
	return store.Page{Page: p.Page, Limit: p.Limit}.Normalize()
}

// ListStoriesQueryParams holds query parameters for GET /stories
type ListStoriesQueryParams struct {
	PageQueryParams

	// Filters
	Chain    string `form:"chain"`
	Tribe    string `form:"tribe"`
	Language string `form:"language"`
	Author   string `form:"author"`
	Minted   *bool  `form:"minted"`
}

// ParseListStoriesQuery parses query parameters for GET /stories
func ParseListStoriesQuery(c *gin.Context) (*ListStoriesQueryParams, error) {
	var params ListStoriesQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}

	params.Author = domain.NormalizeAddress(params.Author)
	return &params, nil
}

// ToFilter converts the query parameters into a store filter
func (p *ListStoriesQueryParams) ToFilter() store.StoryFilter {
	return store.StoryFilter{
		Chain:    domain.Chain(p.Chain),
		Tribe:    p.Tribe,
		Language: p.Language,
		Author:   p.Author,
		Minted:   p.Minted,
		Page:     p.ToPage(),
	}
}

// ListListingsQueryParams holds query parameters for GET /marketplace/listings
type ListListingsQueryParams struct {
	PageQueryParams

	// Filters
	Chain  string `form:"chain"`
	Status string `form:"status"`
	Type   string `form:"type"`
	Seller string `form:"seller"`
}

// ParseListListingsQuery parses query parameters for GET /marketplace/listings
func ParseListListingsQuery(c *gin.Context) (*ListListingsQueryParams, error) {
	var params ListListingsQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}

	params.Seller = domain.NormalizeAddress(params.Seller)
	return &params, nil
}

// ToFilter converts the query parameters into a store filter
func (p *ListListingsQueryParams) ToFilter() store.ListingFilter {
	return store.ListingFilter{
		Chain:  domain.Chain(p.Chain),
		Status: schema.ListingStatus(p.Status),
		Type:   schema.ListingType(p.Type),
		Seller: p.Seller,
		Page:   p.ToPage(),
	}
}

// ListSalesQueryParams holds query parameters for GET /marketplace/sales
type ListSalesQueryParams struct {
	PageQueryParams

	// Filters
	Chain       string `form:"chain"`
	TokenNumber string `form:"token_number"`
	Seller      string `form:"seller"`
	Buyer       string `form:"buyer"`
}

// ParseListSalesQuery parses query parameters for GET /marketplace/sales
func ParseListSalesQuery(c *gin.Context) (*ListSalesQueryParams, error) {
	var params ListSalesQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}

	params.Seller = domain.NormalizeAddress(params.Seller)
	params.Buyer = domain.NormalizeAddress(params.Buyer)
	return &params, nil
}

// ToFilter converts the query parameters into a store filter
func (p *ListSalesQueryParams) ToFilter() store.SaleFilter {
	return store.SaleFilter{
		Chain:       domain.Chain(p.Chain),
		TokenNumber: p.TokenNumber,
		Seller:      p.Seller,
		Buyer:       p.Buyer,
		Page:        p.ToPage(),
	}
}

// ListOffersQueryParams holds query parameters for GET /marketplace/offers
type ListOffersQueryParams struct {
	PageQueryParams

	// Filters
	Chain       string `form:"chain"`
	TokenNumber string `form:"token_number"`
	Offerer     string `form:"offerer"`
	Status      string `form:"status"`
}

// ParseListOffersQuery parses query parameters for GET /marketplace/offers
func ParseListOffersQuery(c *gin.Context) (*ListOffersQueryParams, error) {
	var params ListOffersQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}

	params.Offerer = domain.NormalizeAddress(params.Offerer)
	return &params, nil
}

// ToFilter converts the query parameters into a store filter
func (p *ListOffersQueryParams) ToFilter() store.OfferFilter {
	return store.OfferFilter{
		Chain:       domain.Chain(p.Chain),
		TokenNumber: p.TokenNumber,
		Offerer:     p.Offerer,
		Status:      schema.OfferStatus(p.Status),
		Page:        p.ToPage(),
	}
}
