package rest

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/griothouse/storymarket/internal/adapter"
	"github.com/griothouse/storymarket/internal/api/rest/dto"
	"github.com/griothouse/storymarket/internal/cache"
	"github.com/griothouse/storymarket/internal/domain"
	"github.com/griothouse/storymarket/internal/ipfs"
	"github.com/griothouse/storymarket/internal/logger"
	"github.com/griothouse/storymarket/internal/store"
	"github.com/griothouse/storymarket/internal/store/schema"
)

// Config holds handler configuration
type Config struct {
	Debug         bool
	UploadMaxSize int64
	CacheTTL      time.Duration
}

// Handler defines the interface for REST API handlers
//
//go:generate mockgen -source=handler.go -destination=../../mocks/api_handler.go -package=mocks -mock_names=Handler=MockAPIHandler
type Handler interface {
	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)

	// ListStories retrieves stories with optional filters
	// GET /api/v1/stories?chain=<chain>&tribe=<tribe>&language=<lang>&author=<address>&minted=<bool>&page=<page>&limit=<limit>
	ListStories(c *gin.Context)

	// GetStory retrieves a single story by chain and token number
	// GET /api/v1/stories/:chain/:token_number
	GetStory(c *gin.Context)

	// CreateStoryDraft registers an unminted story draft
	// POST /api/v1/stories
	CreateStoryDraft(c *gin.Context)

	// UpdateStoryMeta updates the off-chain fields of a story
	// PATCH /api/v1/stories/:chain/:token_number
	UpdateStoryMeta(c *gin.Context)

	// Upload pins a content blob on IPFS and returns its CID
	// POST /api/v1/stories/upload
	Upload(c *gin.Context)

	// UploadMetadata pins a JSON metadata document on IPFS
	// POST /api/v1/stories/upload/metadata
	UploadMetadata(c *gin.Context)

	// ListListings retrieves marketplace listings with optional filters
	// GET /api/v1/marketplace/listings?chain=<chain>&status=<status>&type=<type>&seller=<address>&page=<page>&limit=<limit>
	ListListings(c *gin.Context)

	// GetListing retrieves a single listing by chain and listing number
	// GET /api/v1/marketplace/listings/:chain/:listing_number
	GetListing(c *gin.Context)

	// ListSales retrieves completed sales with optional filters
	// GET /api/v1/marketplace/sales?chain=<chain>&token_number=<token>&seller=<address>&buyer=<address>&page=<page>&limit=<limit>
	ListSales(c *gin.Context)

	// ListOffers retrieves offers with optional filters
	// GET /api/v1/marketplace/offers?chain=<chain>&token_number=<token>&offerer=<address>&status=<status>&page=<page>&limit=<limit>
	ListOffers(c *gin.Context)

	// CreateOffer records a pending offer ahead of its on-chain confirmation
	// POST /api/v1/marketplace/offers
	CreateOffer(c *gin.Context)

	// ListNotifications retrieves a recipient's notifications
	// GET /api/v1/notifications?address=<address>&page=<page>&limit=<limit>
	ListNotifications(c *gin.Context)

	// MarkNotificationRead sets the read flag on a notification
	// PATCH /api/v1/notifications/:id/read
	MarkNotificationRead(c *gin.Context)

	// CreateLazyMint registers an author-signed mint voucher
	// POST /api/v1/lazy-mints
	CreateLazyMint(c *gin.Context)

	// ListLazyMints retrieves lazy mints, optionally filtered by author
	// GET /api/v1/lazy-mints?author=<address>&page=<page>&limit=<limit>
	ListLazyMints(c *gin.Context)

	// GetLazyMint retrieves a lazy mint by ID
	// GET /api/v1/lazy-mints/:id
	GetLazyMint(c *gin.Context)

	// MarkLazyMintMinted marks a voucher consumed after its on-chain mint
	// PATCH /api/v1/lazy-mints/:id/minted
	MarkLazyMintMinted(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	config Config
	store  store.Store
	cache  cache.Cache
	ipfs   ipfs.Client
	clock  adapter.Clock
}

// NewHandler creates a new REST API handler
func NewHandler(cfg Config, st store.Store, ch cache.Cache, ipfsClient ipfs.Client, clock adapter.Clock) Handler {
	return &handler{
		config: cfg,
		store:  st,
		cache:  ch,
		ipfs:   ipfsClient,
		clock:  clock,
	}
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{Status: "ok"})
}

// ListStories retrieves stories with optional filters
func (h *handler) ListStories(c *gin.Context) {
	params, err := ParseListStoriesQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	cacheKey := fmt.Sprintf("stories:%s", c.Request.URL.RawQuery)

	var cached dto.StoryListResponse
	if hit, err := h.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		c.JSON(http.StatusOK, cached)
		return
	}

	filter := params.ToFilter()
	stories, total, err := h.store.ListStories(ctx, filter)
	if err != nil {
		respondInternalError(c, err, "Failed to list stories")
		return
	}

	response := dto.StoryListResponse{
		Items: make([]dto.StoryResponse, 0, len(stories)),
		Total: total,
		Page:  filter.Page.Page,
		Limit: filter.Page.Limit,
	}
	for _, story := range stories {
		response.Items = append(response.Items, *dto.MapStoryToDTO(story, h.contentURL(story.ContentCID)))
	}

	if err := h.cache.Set(ctx, cacheKey, response, h.config.CacheTTL); err != nil {
		logger.Warn("failed to cache story list", zap.Error(err))
	}

	c.JSON(http.StatusOK, response)
}

// GetStory retrieves a single story by chain and token number
func (h *handler) GetStory(c *gin.Context) {
	chain := domain.Chain(c.Param("chain"))
	tokenNumber := c.Param("token_number")
	if !domain.IsValidChain(chain) {
		respondBadRequest(c, "Unsupported chain")
		return
	}

	story, err := h.store.GetStory(c.Request.Context(), chain, tokenNumber)
	if err != nil {
		respondInternalError(c, err, "Failed to get story")
		return
	}
	if story == nil {
		respondNotFound(c, "Story not found")
		return
	}

	c.JSON(http.StatusOK, dto.MapStoryToDTO(story, h.contentURL(story.ContentCID)))
}

// CreateStoryDraft registers an unminted story draft
func (h *handler) CreateStoryDraft(c *gin.Context) {
	var req dto.CreateStoryDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	story := &schema.Story{
		Chain:       req.Chain,
		TokenNumber: req.TokenNumber,
		ContentCID:  req.ContentCID,
		Author:      req.Author,
		Title:       req.Title,
		Description: req.Description,
		Tribe:       req.Tribe,
		Language:    req.Language,
	}
	if req.Metadata != nil {
		story.Metadata = datatypes.JSON(req.Metadata)
	}

	if err := h.store.CreateStoryDraft(c.Request.Context(), story); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			respondConflict(c, "Story already exists")
			return
		}
		respondInternalError(c, err, "Failed to create story draft")
		return
	}

	c.JSON(http.StatusCreated, dto.MapStoryToDTO(story, h.contentURL(story.ContentCID)))
}

// UpdateStoryMeta updates the off-chain fields of a story
func (h *handler) UpdateStoryMeta(c *gin.Context) {
	chain := domain.Chain(c.Param("chain"))
	tokenNumber := c.Param("token_number")
	if !domain.IsValidChain(chain) {
		respondBadRequest(c, "Unsupported chain")
		return
	}

	var req dto.UpdateStoryMetaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	if req.Empty() {
		respondBadRequest(c, "No fields to update")
		return
	}

	update := store.StoryMetaUpdate{
		Title:       req.Title,
		Description: req.Description,
		Tribe:       req.Tribe,
		Language:    req.Language,
	}
	if req.Metadata != nil {
		update.Metadata = []byte(req.Metadata)
	}

	story, err := h.store.UpdateStoryMeta(c.Request.Context(), chain, tokenNumber, update)
	if err != nil {
		respondInternalError(c, err, "Failed to update story")
		return
	}
	if story == nil {
		respondNotFound(c, "Story not found")
		return
	}

	c.JSON(http.StatusOK, dto.MapStoryToDTO(story, h.contentURL(story.ContentCID)))
}

// Upload pins a content blob on IPFS and returns its CID
func (h *handler) Upload(c *gin.Context) {
	if h.config.UploadMaxSize > 0 && c.Request.ContentLength > h.config.UploadMaxSize {
		respondPayloadTooLarge(c, "File exceeds the upload size limit")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondBadRequest(c, "Missing file field", err.Error())
		return
	}
	if h.config.UploadMaxSize > 0 && fileHeader.Size > h.config.UploadMaxSize {
		respondPayloadTooLarge(c, "File exceeds the upload size limit")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondInternalError(c, err, "Failed to read upload")
		return
	}
	defer file.Close()

	blob, err := io.ReadAll(file)
	if err != nil {
		respondInternalError(c, err, "Failed to read upload")
		return
	}

	mime := mimetype.Detect(blob)

	cid, err := h.ipfs.Add(c.Request.Context(), fileHeader.Filename, blob)
	if err != nil {
		respondInternalError(c, err, "Failed to pin content")
		return
	}

	c.JSON(http.StatusCreated, dto.UploadResponse{
		CID:      cid,
		URL:      h.ipfs.GatewayURL(cid),
		MimeType: mime.String(),
		Size:     int64(len(blob)),
	})
}

// UploadMetadata pins a JSON metadata document on IPFS
func (h *handler) UploadMetadata(c *gin.Context) {
	var document map[string]interface{}
	if err := c.ShouldBindJSON(&document); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	if len(document) == 0 {
		respondBadRequest(c, "Metadata document is empty")
		return
	}

	cid, err := h.ipfs.AddJSON(c.Request.Context(), "metadata.json", document)
	if err != nil {
		respondInternalError(c, err, "Failed to pin metadata")
		return
	}

	c.JSON(http.StatusCreated, dto.UploadResponse{
		CID: cid,
		URL: h.ipfs.GatewayURL(cid),
	})
}

// ListListings retrieves marketplace listings with optional filters
func (h *handler) ListListings(c *gin.Context) {
	params, err := ParseListListingsQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	cacheKey := fmt.Sprintf("listings:%s", c.Request.URL.RawQuery)

	var cached dto.ListingListResponse
	if hit, err := h.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		c.JSON(http.StatusOK, cached)
		return
	}

	filter := params.ToFilter()
	listings, total, err := h.store.ListListings(ctx, filter)
	if err != nil {
		respondInternalError(c, err, "Failed to list listings")
		return
	}

	response := dto.ListingListResponse{
		Items: make([]dto.ListingResponse, 0, len(listings)),
		Total: total,
		Page:  filter.Page.Page,
		Limit: filter.Page.Limit,
	}
	for _, listing := range listings {
		response.Items = append(response.Items, *dto.MapListingToDTO(listing))
	}

	if err := h.cache.Set(ctx, cacheKey, response, h.config.CacheTTL); err != nil {
		logger.Warn("failed to cache listing list", zap.Error(err))
	}

	c.JSON(http.StatusOK, response)
}

// GetListing retrieves a single listing by chain and listing number
func (h *handler) GetListing(c *gin.Context) {
	chain := domain.Chain(c.Param("chain"))
	listingNumber := c.Param("listing_number")
	if !domain.IsValidChain(chain) {
		respondBadRequest(c, "Unsupported chain")
		return
	}

	listing, err := h.store.GetListing(c.Request.Context(), chain, listingNumber)
	if err != nil {
		respondInternalError(c, err, "Failed to get listing")
		return
	}
	if listing == nil {
		respondNotFound(c, "Listing not found")
		return
	}

	c.JSON(http.StatusOK, dto.MapListingToDTO(listing))
}

// ListSales retrieves completed sales with optional filters
func (h *handler) ListSales(c *gin.Context) {
	params, err := ParseListSalesQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	filter := params.ToFilter()
	sales, total, err := h.store.ListSales(c.Request.Context(), filter)
	if err != nil {
		respondInternalError(c, err, "Failed to list sales")
		return
	}

	response := dto.SaleListResponse{
		Items: make([]dto.SaleResponse, 0, len(sales)),
		Total: total,
		Page:  filter.Page.Page,
		Limit: filter.Page.Limit,
	}
	for _, sale := range sales {
		response.Items = append(response.Items, *dto.MapSaleToDTO(sale))
	}

	c.JSON(http.StatusOK, response)
}

// ListOffers retrieves offers with optional filters
func (h *handler) ListOffers(c *gin.Context) {
	params, err := ParseListOffersQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	filter := params.ToFilter()
	offers, total, err := h.store.ListOffers(c.Request.Context(), filter)
	if err != nil {
		respondInternalError(c, err, "Failed to list offers")
		return
	}

	response := dto.OfferListResponse{
		Items: make([]dto.OfferResponse, 0, len(offers)),
		Total: total,
		Page:  filter.Page.Page,
		Limit: filter.Page.Limit,
	}
	for _, offer := range offers {
		response.Items = append(response.Items, *dto.MapOfferToDTO(offer))
	}

	c.JSON(http.StatusOK, response)
}

// CreateOffer records a pending offer ahead of its on-chain confirmation
func (h *handler) CreateOffer(c *gin.Context) {
	var req dto.CreateOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	offer := &schema.Offer{
		Chain:       req.Chain,
		TokenNumber: req.TokenNumber,
		Offerer:     req.Offerer,
		PriceWei:    req.PriceWei,
		Status:      schema.OfferStatusPending,
		ExpiresAt:   req.ExpiresAt,
	}

	if err := h.store.CreateOffer(c.Request.Context(), offer); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			respondConflict(c, "An offer for this token already exists")
			return
		}
		respondInternalError(c, err, "Failed to create offer")
		return
	}

	c.JSON(http.StatusCreated, dto.MapOfferToDTO(offer))
}

// ListNotifications retrieves a recipient's notifications
func (h *handler) ListNotifications(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		respondBadRequest(c, "address query parameter is required")
		return
	}

	var pageParams PageQueryParams
	if err := c.ShouldBindQuery(&pageParams); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	page := pageParams.ToPage()

	notifications, total, err := h.store.ListNotifications(c.Request.Context(), address, page)
	if err != nil {
		respondInternalError(c, err, "Failed to list notifications")
		return
	}

	response := dto.NotificationListResponse{
		Items: make([]dto.NotificationResponse, 0, len(notifications)),
		Total: total,
		Page:  page.Page,
		Limit: page.Limit,
	}
	for _, notification := range notifications {
		response.Items = append(response.Items, *dto.MapNotificationToDTO(notification))
	}

	c.JSON(http.StatusOK, response)
}

// MarkNotificationRead sets the read flag on a notification
func (h *handler) MarkNotificationRead(c *gin.Context) {
	id := c.Param("id")

	err := h.store.MarkNotificationRead(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondNotFound(c, "Notification not found")
			return
		}
		respondInternalError(c, err, "Failed to mark notification read")
		return
	}

	c.Status(http.StatusNoContent)
}

// CreateLazyMint registers an author-signed mint voucher
func (h *handler) CreateLazyMint(c *gin.Context) {
	var req dto.CreateLazyMintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	lazyMint := &schema.LazyMint{
		ID:         ulid.Make().String(),
		Chain:      req.Chain,
		Author:     req.Author,
		ContentCID: req.ContentCID,
		Voucher:    datatypes.JSON(req.Voucher),
	}

	if err := h.store.CreateLazyMint(c.Request.Context(), lazyMint); err != nil {
		respondInternalError(c, err, "Failed to create lazy mint")
		return
	}

	c.JSON(http.StatusCreated, dto.MapLazyMintToDTO(lazyMint))
}

// ListLazyMints retrieves lazy mints, optionally filtered by author
func (h *handler) ListLazyMints(c *gin.Context) {
	author := c.Query("author")

	var pageParams PageQueryParams
	if err := c.ShouldBindQuery(&pageParams); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	page := pageParams.ToPage()

	lazyMints, total, err := h.store.ListLazyMints(c.Request.Context(), author, page)
	if err != nil {
		respondInternalError(c, err, "Failed to list lazy mints")
		return
	}

	response := dto.LazyMintListResponse{
		Items: make([]dto.LazyMintResponse, 0, len(lazyMints)),
		Total: total,
		Page:  page.Page,
		Limit: page.Limit,
	}
	for _, lazyMint := range lazyMints {
		response.Items = append(response.Items, *dto.MapLazyMintToDTO(lazyMint))
	}

	c.JSON(http.StatusOK, response)
}

// GetLazyMint retrieves a lazy mint by ID
func (h *handler) GetLazyMint(c *gin.Context) {
	id := c.Param("id")

	lazyMint, err := h.store.GetLazyMint(c.Request.Context(), id)
	if err != nil {
		respondInternalError(c, err, "Failed to get lazy mint")
		return
	}
	if lazyMint == nil {
		respondNotFound(c, "Lazy mint not found")
		return
	}

	c.JSON(http.StatusOK, dto.MapLazyMintToDTO(lazyMint))
}

// MarkLazyMintMinted marks a voucher consumed after its on-chain mint
func (h *handler) MarkLazyMintMinted(c *gin.Context) {
	id := c.Param("id")

	var req dto.MarkLazyMintMintedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	err := h.store.MarkLazyMintMinted(c.Request.Context(), id, req.TokenNumber, req.MintTxHash, h.clock.Now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondNotFound(c, "Lazy mint not found or already minted")
			return
		}
		respondInternalError(c, err, "Failed to mark lazy mint minted")
		return
	}

	c.Status(http.StatusNoContent)
}

// contentURL resolves a CID to a public gateway URL, empty when no CID is set
func (h *handler) contentURL(cid string) string {
	if cid == "" {
		return ""
	}
	return h.ipfs.GatewayURL(cid)
}
