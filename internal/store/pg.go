package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/griothouse/storymarket/internal/domain"
	"github.com/griothouse/storymarket/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// AutoMigrate creates or updates the database schema from the models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&schema.Story{},
		&schema.Listing{},
		&schema.Sale{},
		&schema.Offer{},
		&schema.Notification{},
		&schema.LazyMint{},
		&schema.Bundle{},
		&schema.BundleItem{},
		&schema.KeyValueStore{},
	)
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to reasonable defaults.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings
// into safe values.
//
// Defaults (when zero):
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	// database/sql treats MaxIdleConns above MaxOpenConns as MaxOpenConns
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// GetBlockCursor retrieves the last processed block number for a chain
func (s *pgStore) GetBlockCursor(ctx context.Context, chain string) (uint64, error) {
	key := fmt.Sprintf("block_cursor:%s", chain)

	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get block cursor: %w", err)
	}

	blockNumber, err := strconv.ParseUint(kv.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse block cursor: %w", err)
	}

	return blockNumber, nil
}

// SetBlockCursor stores the last processed block number for a chain
func (s *pgStore) SetBlockCursor(ctx context.Context, chain string, blockNumber uint64) error {
	key := fmt.Sprintf("block_cursor:%s", chain)
	value := strconv.FormatUint(blockNumber, 10)

	kv := schema.KeyValueStore{
		Key:   key,
		Value: value,
	}

	err := s.db.WithContext(ctx).Save(&kv).Error
	if err != nil {
		return fmt.Errorf("failed to set block cursor: %w", err)
	}

	return nil
}

// ApplyMarketEvent reconciles one decoded contract event inside a single
// transaction. Natural-key upserts and guarded status transitions make
// replays of the same event a no-op.
func (s *pgStore) ApplyMarketEvent(ctx context.Context, event *domain.MarketEvent) error {
	if !event.Valid() {
		return fmt.Errorf("invalid %s event in tx %s", event.Kind, event.TxHash)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch event.Kind {
		case domain.EventStoryMinted:
			return applyStoryMinted(tx, event)
		case domain.EventListingCreated:
			return applyListingCreated(tx, event)
		case domain.EventListingSold:
			return applyListingSold(tx, event)
		case domain.EventListingCancelled:
			return applyListingCancelled(tx, event)
		case domain.EventOfferMade:
			return applyOfferMade(tx, event)
		case domain.EventOfferAccepted:
			return applyOfferAccepted(tx, event)
		case domain.EventBundlePurchased:
			return applyBundlePurchased(tx, event)
		case domain.EventLazyMintConsumed:
			return applyLazyMintConsumed(tx, event)
		default:
			return fmt.Errorf("unhandled event kind %q", event.Kind)
		}
	})
}

func applyStoryMinted(tx *gorm.DB, event *domain.MarketEvent) error {
	p := event.StoryMinted
	author := domain.NormalizeAddress(p.Author)

	// Replayed event: the mint is already recorded
	var existing schema.Story
	err := tx.Where("chain = ? AND token_number = ?", string(event.Chain), p.TokenID).
		First(&existing).Error
	if err == nil && existing.Minted && existing.MintTxHash == event.TxHash {
		return nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up story: %w", err)
	}

	story := schema.Story{
		Chain:       string(event.Chain),
		TokenNumber: p.TokenID,
		ContentCID:  p.ContentCID,
		Author:      author,
		Minted:      true,
		MintTxHash:  event.TxHash,
	}

	// A draft row for the same content may already exist; the mint claims it
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain"}, {Name: "token_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"content_cid", "author", "minted", "mint_tx_hash"}),
	}).Create(&story).Error; err != nil {
		return fmt.Errorf("failed to upsert story: %w", err)
	}

	return createNotification(tx, author, schema.NotificationTypeMint, map[string]any{
		"token_number": p.TokenID,
		"content_cid":  p.ContentCID,
		"tx_hash":      event.TxHash,
	})
}

func applyListingCreated(tx *gorm.DB, event *domain.MarketEvent) error {
	p := event.ListingCreated

	listing := schema.Listing{
		Chain:         string(event.Chain),
		ListingNumber: p.ListingID,
		TokenNumber:   p.TokenID,
		Seller:        domain.NormalizeAddress(p.Seller),
		PriceWei:      p.PriceWei,
		Type:          schema.ListingType(p.ListingType),
		Status:        schema.ListingStatusActive,
		AuctionStart:  p.AuctionStart,
		AuctionEnd:    p.AuctionEnd,
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain"}, {Name: "listing_number"}},
		DoNothing: true,
	}).Create(&listing).Error; err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}

	return nil
}

func applyListingSold(tx *gorm.DB, event *domain.MarketEvent) error {
	p := event.ListingSold
	seller := domain.NormalizeAddress(p.Seller)
	buyer := domain.NormalizeAddress(p.Buyer)

	sale := schema.Sale{
		Chain:          string(event.Chain),
		TxHash:         event.TxHash,
		ListingNumber:  p.ListingID,
		TokenNumber:    p.TokenID,
		Seller:         seller,
		Buyer:          buyer,
		PriceWei:       p.PriceWei,
		PlatformFeeWei: p.PlatformFeeWei,
		RoyaltyWei:     p.RoyaltyWei,
		BlockNumber:    event.BlockNumber,
		SoldAt:         event.Timestamp,
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_hash"}},
		DoNothing: true,
	}).Clauses(clause.Returning{Columns: []clause.Column{}}).
		Create(&sale).Error; err != nil {
		return fmt.Errorf("failed to create sale: %w", err)
	}

	// ID == 0 means the sale already existed; replayed event, nothing to do
	if sale.ID == 0 {
		return nil
	}

	if err := markListingSold(tx, string(event.Chain), p.ListingID); err != nil {
		return err
	}

	saleData := map[string]any{
		"listing_number": p.ListingID,
		"token_number":   p.TokenID,
		"price_wei":      p.PriceWei,
		"tx_hash":        event.TxHash,
	}
	if err := createNotification(tx, seller, schema.NotificationTypeSale, saleData); err != nil {
		return err
	}
	return createNotification(tx, buyer, schema.NotificationTypeSale, saleData)
}

func applyListingCancelled(tx *gorm.DB, event *domain.MarketEvent) error {
	p := event.ListingCancelled

	// Terminal states never change; cancelling a sold listing is a no-op
	result := tx.Model(&schema.Listing{}).
		Where("chain = ? AND listing_number = ? AND status = ?",
			string(event.Chain), p.ListingID, schema.ListingStatusActive).
		Update("status", schema.ListingStatusCancelled)
	if result.Error != nil {
		return fmt.Errorf("failed to cancel listing: %w", result.Error)
	}

	return nil
}

func applyOfferMade(tx *gorm.DB, event *domain.MarketEvent) error {
	p := event.OfferMade
	offerer := domain.NormalizeAddress(p.Offerer)

	offer := schema.Offer{
		Chain:       string(event.Chain),
		TokenNumber: p.TokenID,
		Offerer:     offerer,
		PriceWei:    p.PriceWei,
		Status:      schema.OfferStatusPending,
		ExpiresAt:   p.Expiry,
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain"}, {Name: "token_number"}, {Name: "offerer"}},
		DoNothing: true,
	}).Clauses(clause.Returning{Columns: []clause.Column{}}).
		Create(&offer).Error; err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}

	if offer.ID == 0 {
		return nil
	}

	// Notify the story author when the token is known
	var story schema.Story
	err := tx.Where("chain = ? AND token_number = ?", string(event.Chain), p.TokenID).
		First(&story).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("failed to look up story for offer: %w", err)
	}

	return createNotification(tx, story.Author, schema.NotificationTypeOffer, map[string]any{
		"token_number": p.TokenID,
		"offerer":      offerer,
		"price_wei":    p.PriceWei,
	})
}

func applyOfferAccepted(tx *gorm.DB, event *domain.MarketEvent) error {
	p := event.OfferAccepted
	offerer := domain.NormalizeAddress(p.Offerer)

	result := tx.Model(&schema.Offer{}).
		Where("chain = ? AND token_number = ? AND offerer = ? AND status = ?",
			string(event.Chain), p.TokenID, offerer, schema.OfferStatusPending).
		Update("status", schema.OfferStatusAccepted)
	if result.Error != nil {
		return fmt.Errorf("failed to accept offer: %w", result.Error)
	}

	// Replayed event: the offer is already accepted, everything below ran
	if result.RowsAffected == 0 {
		return nil
	}

	// Remaining pending offers on the token lose
	if err := tx.Model(&schema.Offer{}).
		Where("chain = ? AND token_number = ? AND status = ?",
			string(event.Chain), p.TokenID, schema.OfferStatusPending).
		Update("status", schema.OfferStatusRejected).Error; err != nil {
		return fmt.Errorf("failed to reject competing offers: %w", err)
	}

	if err := markListingSold(tx, string(event.Chain), p.ListingID); err != nil {
		return err
	}

	return createNotification(tx, offerer, schema.NotificationTypeOfferAccepted, map[string]any{
		"token_number":   p.TokenID,
		"listing_number": p.ListingID,
		"price_wei":      p.PriceWei,
		"tx_hash":        event.TxHash,
	})
}

func applyBundlePurchased(tx *gorm.DB, event *domain.MarketEvent) error {
	p := event.BundlePurchased

	bundle := schema.Bundle{
		Chain:         string(event.Chain),
		TxHash:        event.TxHash,
		Buyer:         domain.NormalizeAddress(p.Buyer),
		TotalPriceWei: p.TotalPriceWei,
		DiscountWei:   p.DiscountWei,
		BlockNumber:   event.BlockNumber,
		PurchasedAt:   event.Timestamp,
	}
	// Items are written after the replay check; creating them through the
	// association would insert them with a zero bundle_id on conflict
	if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_hash"}},
		DoNothing: true,
	}).Clauses(clause.Returning{Columns: []clause.Column{}}).
		Create(&bundle).Error; err != nil {
		return fmt.Errorf("failed to create bundle: %w", err)
	}

	// Replayed event: the bundle and its items are already recorded
	if bundle.ID == 0 {
		return nil
	}

	for _, listingNumber := range p.ListingIDs {
		item := schema.BundleItem{BundleID: bundle.ID, ListingNumber: listingNumber}
		if err := tx.Create(&item).Error; err != nil {
			return fmt.Errorf("failed to create bundle item: %w", err)
		}
	}

	for _, listingNumber := range p.ListingIDs {
		if err := markListingSold(tx, string(event.Chain), listingNumber); err != nil {
			return err
		}
	}

	return nil
}

func applyLazyMintConsumed(tx *gorm.DB, event *domain.MarketEvent) error {
	p := event.LazyMintConsumed
	author := domain.NormalizeAddress(p.Author)

	// Replayed event: the consumed voucher is already a minted story
	var existing schema.Story
	err := tx.Where("chain = ? AND token_number = ?", string(event.Chain), p.TokenID).
		First(&existing).Error
	if err == nil && existing.Minted && existing.MintTxHash == event.TxHash {
		return nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up story: %w", err)
	}

	// Minted flips exactly once; a replay matches zero rows
	result := tx.Model(&schema.LazyMint{}).
		Where("chain = ? AND content_cid = ? AND author = ? AND minted = ?",
			string(event.Chain), p.ContentCID, author, false).
		Updates(map[string]any{
			"minted":       true,
			"token_number": p.TokenID,
			"mint_tx_hash": event.TxHash,
			"minted_at":    event.Timestamp,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to consume lazy mint: %w", result.Error)
	}

	// The consumed voucher becomes a minted story like any other
	story := schema.Story{
		Chain:       string(event.Chain),
		TokenNumber: p.TokenID,
		ContentCID:  p.ContentCID,
		Author:      author,
		Minted:      true,
		MintTxHash:  event.TxHash,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain"}, {Name: "token_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"content_cid", "author", "minted", "mint_tx_hash"}),
	}).Create(&story).Error; err != nil {
		return fmt.Errorf("failed to upsert lazy minted story: %w", err)
	}

	return createNotification(tx, author, schema.NotificationTypeMint, map[string]any{
		"token_number": p.TokenID,
		"content_cid":  p.ContentCID,
		"tx_hash":      event.TxHash,
	})
}

// markListingSold transitions an active listing to sold. Zero rows affected
// means the listing was already terminal or never indexed; both are fine.
func markListingSold(tx *gorm.DB, chain string, listingNumber string) error {
	result := tx.Model(&schema.Listing{}).
		Where("chain = ? AND listing_number = ? AND status = ?",
			chain, listingNumber, schema.ListingStatusActive).
		Update("status", schema.ListingStatusSold)
	if result.Error != nil {
		return fmt.Errorf("failed to mark listing sold: %w", result.Error)
	}
	return nil
}

func createNotification(tx *gorm.DB, recipient string, notifType schema.NotificationType, data map[string]any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal notification data: %w", err)
	}

	notification := schema.Notification{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Type:      notifType,
		Data:      payload,
	}
	if err := tx.Create(&notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// ExpireOffers transitions pending offers whose expiry has passed
func (s *pgStore) ExpireOffers(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&schema.Offer{}).
		Where("status = ? AND expires_at <= ?", schema.OfferStatusPending, now).
		Update("status", schema.OfferStatusExpired)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to expire offers: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ListStories retrieves stories matching the filter with pagination
func (s *pgStore) ListStories(ctx context.Context, filter StoryFilter) ([]*schema.Story, int64, error) {
	page := filter.Page.Normalize()

	query := s.db.WithContext(ctx).Model(&schema.Story{})
	if filter.Chain != "" {
		query = query.Where("chain = ?", string(filter.Chain))
	}
	if filter.Tribe != "" {
		query = query.Where("tribe = ?", filter.Tribe)
	}
	if filter.Language != "" {
		query = query.Where("language = ?", filter.Language)
	}
	if filter.Author != "" {
		query = query.Where("author = ?", domain.NormalizeAddress(filter.Author))
	}
	if filter.Minted != nil {
		query = query.Where("minted = ?", *filter.Minted)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count stories: %w", err)
	}

	var stories []*schema.Story
	err := query.Order("created_at DESC, id DESC").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&stories).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list stories: %w", err)
	}

	return stories, total, nil
}

// GetStory retrieves a story by chain and token number, nil if not found
func (s *pgStore) GetStory(ctx context.Context, chain domain.Chain, tokenNumber string) (*schema.Story, error) {
	var story schema.Story
	err := s.db.WithContext(ctx).
		Where("chain = ? AND token_number = ?", string(chain), tokenNumber).
		First(&story).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get story: %w", err)
	}
	return &story, nil
}

// CreateStoryDraft creates an unminted story row owned by the API
func (s *pgStore) CreateStoryDraft(ctx context.Context, story *schema.Story) error {
	story.Minted = false
	story.Author = domain.NormalizeAddress(story.Author)
	if err := s.db.WithContext(ctx).Create(story).Error; err != nil {
		return fmt.Errorf("failed to create story draft: %w", err)
	}
	return nil
}

// UpdateStoryMeta updates off-chain story fields and returns the fresh row,
// nil if the story does not exist
func (s *pgStore) UpdateStoryMeta(ctx context.Context, chain domain.Chain, tokenNumber string, update StoryMetaUpdate) (*schema.Story, error) {
	updates := map[string]any{}
	if update.Title != nil {
		updates["title"] = *update.Title
	}
	if update.Description != nil {
		updates["description"] = *update.Description
	}
	if update.Tribe != nil {
		updates["tribe"] = *update.Tribe
	}
	if update.Language != nil {
		updates["language"] = *update.Language
	}
	if update.Metadata != nil {
		updates["metadata"] = update.Metadata
	}

	if len(updates) > 0 {
		result := s.db.WithContext(ctx).Model(&schema.Story{}).
			Where("chain = ? AND token_number = ?", string(chain), tokenNumber).
			Updates(updates)
		if result.Error != nil {
			return nil, fmt.Errorf("failed to update story: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, nil
		}
	}

	return s.GetStory(ctx, chain, tokenNumber)
}

// ListListings retrieves listings matching the filter with pagination
func (s *pgStore) ListListings(ctx context.Context, filter ListingFilter) ([]*schema.Listing, int64, error) {
	page := filter.Page.Normalize()

	query := s.db.WithContext(ctx).Model(&schema.Listing{})
	if filter.Chain != "" {
		query = query.Where("chain = ?", string(filter.Chain))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Seller != "" {
		query = query.Where("seller = ?", domain.NormalizeAddress(filter.Seller))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count listings: %w", err)
	}

	var listings []*schema.Listing
	err := query.Order("created_at DESC, id DESC").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&listings).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list listings: %w", err)
	}

	return listings, total, nil
}

// GetListing retrieves a listing by chain and listing number, nil if not found
func (s *pgStore) GetListing(ctx context.Context, chain domain.Chain, listingNumber string) (*schema.Listing, error) {
	var listing schema.Listing
	err := s.db.WithContext(ctx).
		Where("chain = ? AND listing_number = ?", string(chain), listingNumber).
		First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &listing, nil
}

// ListSales retrieves sales matching the filter with pagination
func (s *pgStore) ListSales(ctx context.Context, filter SaleFilter) ([]*schema.Sale, int64, error) {
	page := filter.Page.Normalize()

	query := s.db.WithContext(ctx).Model(&schema.Sale{})
	if filter.Chain != "" {
		query = query.Where("chain = ?", string(filter.Chain))
	}
	if filter.TokenNumber != "" {
		query = query.Where("token_number = ?", filter.TokenNumber)
	}
	if filter.Seller != "" {
		query = query.Where("seller = ?", domain.NormalizeAddress(filter.Seller))
	}
	if filter.Buyer != "" {
		query = query.Where("buyer = ?", domain.NormalizeAddress(filter.Buyer))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count sales: %w", err)
	}

	var sales []*schema.Sale
	err := query.Order("sold_at DESC, id DESC").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&sales).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sales: %w", err)
	}

	return sales, total, nil
}

// ListOffers retrieves offers matching the filter with pagination
func (s *pgStore) ListOffers(ctx context.Context, filter OfferFilter) ([]*schema.Offer, int64, error) {
	page := filter.Page.Normalize()

	query := s.db.WithContext(ctx).Model(&schema.Offer{})
	if filter.Chain != "" {
		query = query.Where("chain = ?", string(filter.Chain))
	}
	if filter.TokenNumber != "" {
		query = query.Where("token_number = ?", filter.TokenNumber)
	}
	if filter.Offerer != "" {
		query = query.Where("offerer = ?", domain.NormalizeAddress(filter.Offerer))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count offers: %w", err)
	}

	var offers []*schema.Offer
	err := query.Order("created_at DESC, id DESC").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&offers).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list offers: %w", err)
	}

	return offers, total, nil
}

// CreateOffer records an off-chain offer, keeping the one-offer-per
// (chain, token, offerer) constraint
func (s *pgStore) CreateOffer(ctx context.Context, offer *schema.Offer) error {
	offer.Offerer = domain.NormalizeAddress(offer.Offerer)
	if offer.Status == "" {
		offer.Status = schema.OfferStatusPending
	}
	if err := s.db.WithContext(ctx).Create(offer).Error; err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	return nil
}

// ListNotifications retrieves a recipient's notifications, newest first
func (s *pgStore) ListNotifications(ctx context.Context, recipient string, page Page) ([]*schema.Notification, int64, error) {
	page = page.Normalize()
	recipient = domain.NormalizeAddress(recipient)

	query := s.db.WithContext(ctx).Model(&schema.Notification{}).
		Where("recipient = ?", recipient)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	var notifications []*schema.Notification
	err := query.Order("created_at DESC, id DESC").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&notifications).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}

	return notifications, total, nil
}

// MarkNotificationRead sets the read flag on a notification
func (s *pgStore) MarkNotificationRead(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Model(&schema.Notification{}).
		Where("id = ?", id).
		Update("read", true)
	if result.Error != nil {
		return fmt.Errorf("failed to mark notification read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CreateLazyMint registers a signed mint voucher
func (s *pgStore) CreateLazyMint(ctx context.Context, lazyMint *schema.LazyMint) error {
	lazyMint.Author = domain.NormalizeAddress(lazyMint.Author)
	if err := s.db.WithContext(ctx).Create(lazyMint).Error; err != nil {
		return fmt.Errorf("failed to create lazy mint: %w", err)
	}
	return nil
}

// GetLazyMint retrieves a lazy mint by ID, nil if not found
func (s *pgStore) GetLazyMint(ctx context.Context, id string) (*schema.LazyMint, error) {
	var lazyMint schema.LazyMint
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&lazyMint).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lazy mint: %w", err)
	}
	return &lazyMint, nil
}

// ListLazyMints retrieves an author's lazy mints, newest first
func (s *pgStore) ListLazyMints(ctx context.Context, author string, page Page) ([]*schema.LazyMint, int64, error) {
	page = page.Normalize()

	query := s.db.WithContext(ctx).Model(&schema.LazyMint{})
	if author != "" {
		query = query.Where("author = ?", domain.NormalizeAddress(author))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count lazy mints: %w", err)
	}

	var lazyMints []*schema.LazyMint
	err := query.Order("created_at DESC, id DESC").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&lazyMints).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list lazy mints: %w", err)
	}

	return lazyMints, total, nil
}

// MarkLazyMintMinted flips the minted flag exactly once. A second call for
// the same voucher returns gorm.ErrRecordNotFound.
func (s *pgStore) MarkLazyMintMinted(ctx context.Context, id string, tokenNumber string, txHash string, mintedAt time.Time) error {
	result := s.db.WithContext(ctx).Model(&schema.LazyMint{}).
		Where("id = ? AND minted = ?", id, false).
		Updates(map[string]any{
			"minted":       true,
			"token_number": tokenNumber,
			"mint_tx_hash": txHash,
			"minted_at":    mintedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark lazy mint minted: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
