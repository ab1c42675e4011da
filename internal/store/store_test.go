package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/griothouse/storymarket/internal/domain"
	"github.com/griothouse/storymarket/internal/store/schema"
)

const (
	testContract = "0x00000000000000000000000000000000000000aa"
	authorAddr   = "0x1111111111111111111111111111111111111111"
	sellerAddr   = "0x2222222222222222222222222222222222222222"
	buyerAddr    = "0x3333333333333333333333333333333333333333"
	offererAddr  = "0x4444444444444444444444444444444444444444"
	offerer2Addr = "0x5555555555555555555555555555555555555555"
)

func baseEvent(kind domain.EventKind, txHash string, blockNumber uint64) *domain.MarketEvent {
	return &domain.MarketEvent{
		Kind:            kind,
		Chain:           domain.ChainEthereumMainnet,
		ContractAddress: testContract,
		TxHash:          txHash,
		BlockNumber:     blockNumber,
		Timestamp:       time.Now().UTC(),
	}
}

func storyMintedEvent(txHash, tokenID string) *domain.MarketEvent {
	event := baseEvent(domain.EventStoryMinted, txHash, 100)
	event.StoryMinted = &domain.StoryMintedPayload{
		TokenID:    tokenID,
		Author:     authorAddr,
		ContentCID: "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi",
	}
	return event
}

func listingCreatedEvent(txHash, listingID, tokenID string) *domain.MarketEvent {
	event := baseEvent(domain.EventListingCreated, txHash, 101)
	event.ListingCreated = &domain.ListingCreatedPayload{
		ListingID:   listingID,
		TokenID:     tokenID,
		Seller:      sellerAddr,
		PriceWei:    "1000000000000000000",
		ListingType: domain.ListingTypeFixed,
	}
	return event
}

func listingSoldEvent(txHash, listingID, tokenID string) *domain.MarketEvent {
	event := baseEvent(domain.EventListingSold, txHash, 102)
	event.ListingSold = &domain.ListingSoldPayload{
		ListingID:      listingID,
		TokenID:        tokenID,
		Seller:         sellerAddr,
		Buyer:          buyerAddr,
		PriceWei:       "1000000000000000000",
		PlatformFeeWei: "25000000000000000",
		RoyaltyWei:     "100000000000000000",
	}
	return event
}

func offerMadeEvent(txHash, tokenID, offerer string) *domain.MarketEvent {
	event := baseEvent(domain.EventOfferMade, txHash, 103)
	event.OfferMade = &domain.OfferMadePayload{
		TokenID:  tokenID,
		Offerer:  offerer,
		PriceWei: "500000000000000000",
		Expiry:   time.Now().Add(24 * time.Hour).UTC(),
	}
	return event
}

func TestApplyMarketEvent_Invalid(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	// StoryMinted kind without a payload
	event := baseEvent(domain.EventStoryMinted, "0xbad", 1)
	err := st.ApplyMarketEvent(ctx, event)
	assert.Error(t, err)
}

func TestApplyMarketEvent_StoryMintedIdempotent(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	event := storyMintedEvent("0xmint1", "1")
	require.NoError(t, st.ApplyMarketEvent(ctx, event))
	require.NoError(t, st.ApplyMarketEvent(ctx, event))

	story, err := st.GetStory(ctx, domain.ChainEthereumMainnet, "1")
	require.NoError(t, err)
	require.NotNil(t, story)
	assert.True(t, story.Minted)
	assert.Equal(t, "0xmint1", story.MintTxHash)
	assert.Equal(t, domain.NormalizeAddress(authorAddr), story.Author)

	stories, total, err := st.ListStories(ctx, StoryFilter{Chain: domain.ChainEthereumMainnet})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, stories, 1)

	// The replay must not create a second mint notification
	notifications, total, err := st.ListNotifications(ctx, authorAddr, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, schema.NotificationTypeMint, notifications[0].Type)
}

func TestApplyMarketEvent_StoryMintedClaimsDraft(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	draft := &schema.Story{
		Chain:       string(domain.ChainEthereumMainnet),
		TokenNumber: "7",
		ContentCID:  "bafydraft",
		Author:      authorAddr,
		Title:       "The River Keeper",
		Tribe:       "yoruba",
	}
	require.NoError(t, st.CreateStoryDraft(ctx, draft))

	event := storyMintedEvent("0xmint7", "7")
	require.NoError(t, st.ApplyMarketEvent(ctx, event))

	story, err := st.GetStory(ctx, domain.ChainEthereumMainnet, "7")
	require.NoError(t, err)
	require.NotNil(t, story)
	assert.Equal(t, draft.ID, story.ID)
	assert.True(t, story.Minted)
	assert.Equal(t, event.StoryMinted.ContentCID, story.ContentCID)

	// Off-chain fields written before the mint survive it
	assert.Equal(t, "The River Keeper", story.Title)
	assert.Equal(t, "yoruba", story.Tribe)
}

func TestApplyMarketEvent_ListingSoldIdempotent(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	require.NoError(t, st.ApplyMarketEvent(ctx, listingCreatedEvent("0xlist1", "10", "1")))

	listing, err := st.GetListing(ctx, domain.ChainEthereumMainnet, "10")
	require.NoError(t, err)
	require.NotNil(t, listing)
	assert.Equal(t, schema.ListingStatusActive, listing.Status)

	sold := listingSoldEvent("0xsold1", "10", "1")
	require.NoError(t, st.ApplyMarketEvent(ctx, sold))
	require.NoError(t, st.ApplyMarketEvent(ctx, sold))

	listing, err = st.GetListing(ctx, domain.ChainEthereumMainnet, "10")
	require.NoError(t, err)
	assert.Equal(t, schema.ListingStatusSold, listing.Status)

	sales, total, err := st.ListSales(ctx, SaleFilter{Chain: domain.ChainEthereumMainnet})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, sales, 1)
	assert.Equal(t, "0xsold1", sales[0].TxHash)

	// Exactly one sale notification each for seller and buyer
	_, sellerTotal, err := st.ListNotifications(ctx, sellerAddr, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), sellerTotal)
	_, buyerTotal, err := st.ListNotifications(ctx, buyerAddr, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), buyerTotal)
}

func TestApplyMarketEvent_CancelAfterSoldIsNoOp(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	require.NoError(t, st.ApplyMarketEvent(ctx, listingCreatedEvent("0xlist2", "20", "2")))
	require.NoError(t, st.ApplyMarketEvent(ctx, listingSoldEvent("0xsold2", "20", "2")))

	cancel := baseEvent(domain.EventListingCancelled, "0xcancel2", 103)
	cancel.ListingCancelled = &domain.ListingCancelledPayload{ListingID: "20", TokenID: "2"}
	require.NoError(t, st.ApplyMarketEvent(ctx, cancel))

	listing, err := st.GetListing(ctx, domain.ChainEthereumMainnet, "20")
	require.NoError(t, err)
	assert.Equal(t, schema.ListingStatusSold, listing.Status)
}

func TestApplyMarketEvent_ListingCancelled(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	require.NoError(t, st.ApplyMarketEvent(ctx, listingCreatedEvent("0xlist3", "30", "3")))

	cancel := baseEvent(domain.EventListingCancelled, "0xcancel3", 104)
	cancel.ListingCancelled = &domain.ListingCancelledPayload{ListingID: "30", TokenID: "3"}
	require.NoError(t, st.ApplyMarketEvent(ctx, cancel))
	require.NoError(t, st.ApplyMarketEvent(ctx, cancel))

	listing, err := st.GetListing(ctx, domain.ChainEthereumMainnet, "30")
	require.NoError(t, err)
	assert.Equal(t, schema.ListingStatusCancelled, listing.Status)
}

func TestApplyMarketEvent_OfferAcceptedRejectsCompetitors(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	require.NoError(t, st.ApplyMarketEvent(ctx, storyMintedEvent("0xmint4", "4")))
	require.NoError(t, st.ApplyMarketEvent(ctx, listingCreatedEvent("0xlist4", "40", "4")))
	require.NoError(t, st.ApplyMarketEvent(ctx, offerMadeEvent("0xoffer1", "4", offererAddr)))
	require.NoError(t, st.ApplyMarketEvent(ctx, offerMadeEvent("0xoffer2", "4", offerer2Addr)))

	accepted := baseEvent(domain.EventOfferAccepted, "0xaccept1", 105)
	accepted.OfferAccepted = &domain.OfferAcceptedPayload{
		TokenID:   "4",
		Offerer:   offererAddr,
		ListingID: "40",
		PriceWei:  "500000000000000000",
	}
	require.NoError(t, st.ApplyMarketEvent(ctx, accepted))
	require.NoError(t, st.ApplyMarketEvent(ctx, accepted))

	offers, _, err := st.ListOffers(ctx, OfferFilter{Chain: domain.ChainEthereumMainnet, TokenNumber: "4"})
	require.NoError(t, err)
	require.Len(t, offers, 2)

	statusByOfferer := map[string]schema.OfferStatus{}
	for _, offer := range offers {
		statusByOfferer[offer.Offerer] = offer.Status
	}
	assert.Equal(t, schema.OfferStatusAccepted, statusByOfferer[domain.NormalizeAddress(offererAddr)])
	assert.Equal(t, schema.OfferStatusRejected, statusByOfferer[domain.NormalizeAddress(offerer2Addr)])

	listing, err := st.GetListing(ctx, domain.ChainEthereumMainnet, "40")
	require.NoError(t, err)
	assert.Equal(t, schema.ListingStatusSold, listing.Status)

	// The winning offerer gets exactly one acceptance notification
	notifications, _, err := st.ListNotifications(ctx, offererAddr, Page{})
	require.NoError(t, err)
	var accepts int
	for _, n := range notifications {
		if n.Type == schema.NotificationTypeOfferAccepted {
			accepts++
		}
	}
	assert.Equal(t, 1, accepts)
}

func TestApplyMarketEvent_OfferMadeNotifiesAuthor(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	require.NoError(t, st.ApplyMarketEvent(ctx, storyMintedEvent("0xmint5", "5")))
	offer := offerMadeEvent("0xoffer5", "5", offererAddr)
	require.NoError(t, st.ApplyMarketEvent(ctx, offer))
	require.NoError(t, st.ApplyMarketEvent(ctx, offer))

	notifications, _, err := st.ListNotifications(ctx, authorAddr, Page{})
	require.NoError(t, err)
	var offerNotes int
	for _, n := range notifications {
		if n.Type == schema.NotificationTypeOffer {
			offerNotes++
		}
	}
	assert.Equal(t, 1, offerNotes)
}

func TestApplyMarketEvent_BundlePurchased(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	require.NoError(t, st.ApplyMarketEvent(ctx, listingCreatedEvent("0xlist6", "60", "6")))
	require.NoError(t, st.ApplyMarketEvent(ctx, listingCreatedEvent("0xlist7", "61", "7")))

	bundle := baseEvent(domain.EventBundlePurchased, "0xbundle1", 106)
	bundle.BundlePurchased = &domain.BundlePurchasedPayload{
		Buyer:         buyerAddr,
		ListingIDs:    []string{"60", "61"},
		TotalPriceWei: "1800000000000000000",
		DiscountWei:   "200000000000000000",
	}
	require.NoError(t, st.ApplyMarketEvent(ctx, bundle))
	require.NoError(t, st.ApplyMarketEvent(ctx, bundle))

	for _, listingNumber := range []string{"60", "61"} {
		listing, err := st.GetListing(ctx, domain.ChainEthereumMainnet, listingNumber)
		require.NoError(t, err)
		assert.Equal(t, schema.ListingStatusSold, listing.Status, "listing %s", listingNumber)
	}

	// One bundle row with both items despite the replay
	pg := st.(*pgStore)
	var bundles []schema.Bundle
	require.NoError(t, pg.db.Preload("Items").Find(&bundles).Error)
	require.Len(t, bundles, 1)
	assert.Len(t, bundles[0].Items, 2)
	for _, item := range bundles[0].Items {
		assert.Equal(t, bundles[0].ID, item.BundleID)
	}

	// No orphaned items survive the replay
	var orphans int64
	require.NoError(t, pg.db.Model(&schema.BundleItem{}).
		Where("bundle_id <> ?", bundles[0].ID).Count(&orphans).Error)
	assert.Zero(t, orphans)

	// Bundle purchases do not create per-listing sale rows
	_, total, err := st.ListSales(ctx, SaleFilter{Chain: domain.ChainEthereumMainnet})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestApplyMarketEvent_LazyMintConsumedExactlyOnce(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	lazyMint := &schema.LazyMint{
		ID:         "01J0000000000000000000TEST",
		Chain:      string(domain.ChainEthereumMainnet),
		Author:     authorAddr,
		ContentCID: "bafylazy",
		Voucher:    []byte(`{"sig":"0xdead"}`),
	}
	require.NoError(t, st.CreateLazyMint(ctx, lazyMint))

	consumed := baseEvent(domain.EventLazyMintConsumed, "0xconsume1", 107)
	consumed.LazyMintConsumed = &domain.LazyMintConsumedPayload{
		TokenID:    "8",
		Author:     authorAddr,
		ContentCID: "bafylazy",
	}
	require.NoError(t, st.ApplyMarketEvent(ctx, consumed))
	require.NoError(t, st.ApplyMarketEvent(ctx, consumed))

	got, err := st.GetLazyMint(ctx, lazyMint.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Minted)
	assert.Equal(t, "8", got.TokenNumber)
	assert.Equal(t, "0xconsume1", got.MintTxHash)

	story, err := st.GetStory(ctx, domain.ChainEthereumMainnet, "8")
	require.NoError(t, err)
	require.NotNil(t, story)
	assert.True(t, story.Minted)

	notifications, total, err := st.ListNotifications(ctx, authorAddr, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, schema.NotificationTypeMint, notifications[0].Type)
}

func TestExpireOffers(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	past := offerMadeEvent("0xoffer8", "9", offererAddr)
	past.OfferMade.Expiry = time.Now().Add(-time.Hour).UTC()
	require.NoError(t, st.ApplyMarketEvent(ctx, past))

	future := offerMadeEvent("0xoffer9", "9", offerer2Addr)
	require.NoError(t, st.ApplyMarketEvent(ctx, future))

	expired, err := st.ExpireOffers(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	offers, _, err := st.ListOffers(ctx, OfferFilter{Chain: domain.ChainEthereumMainnet, TokenNumber: "9"})
	require.NoError(t, err)
	statusByOfferer := map[string]schema.OfferStatus{}
	for _, offer := range offers {
		statusByOfferer[offer.Offerer] = offer.Status
	}
	assert.Equal(t, schema.OfferStatusExpired, statusByOfferer[domain.NormalizeAddress(offererAddr)])
	assert.Equal(t, schema.OfferStatusPending, statusByOfferer[domain.NormalizeAddress(offerer2Addr)])
}

func TestBlockCursor(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	cursor, err := st.GetBlockCursor(ctx, "eip155:1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cursor)

	require.NoError(t, st.SetBlockCursor(ctx, "eip155:1", 12345))
	require.NoError(t, st.SetBlockCursor(ctx, "eip155:1", 12350))

	cursor, err = st.GetBlockCursor(ctx, "eip155:1")
	require.NoError(t, err)
	assert.Equal(t, uint64(12350), cursor)

	// Cursors are per chain
	cursor, err = st.GetBlockCursor(ctx, "eip155:137")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cursor)
}

func TestListStories_Filters(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	for i, tribe := range []string{"yoruba", "yoruba", "maori"} {
		draft := &schema.Story{
			Chain:       string(domain.ChainEthereumMainnet),
			TokenNumber: fmt.Sprintf("10%d", i),
			ContentCID:  fmt.Sprintf("bafy%d", i),
			Author:      authorAddr,
			Tribe:       tribe,
			Language:    "en",
		}
		require.NoError(t, st.CreateStoryDraft(ctx, draft))
	}

	stories, total, err := st.ListStories(ctx, StoryFilter{Tribe: "yoruba"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, stories, 2)

	stories, total, err = st.ListStories(ctx, StoryFilter{Tribe: "yoruba", Page: Page{Page: 2, Limit: 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, stories, 1)

	minted := true
	_, total, err = st.ListStories(ctx, StoryFilter{Minted: &minted})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestUpdateStoryMeta(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	draft := &schema.Story{
		Chain:       string(domain.ChainEthereumMainnet),
		TokenNumber: "200",
		ContentCID:  "bafymeta",
		Author:      authorAddr,
		Title:       "Before",
		Language:    "en",
	}
	require.NoError(t, st.CreateStoryDraft(ctx, draft))

	title := "After"
	story, err := st.UpdateStoryMeta(ctx, domain.ChainEthereumMainnet, "200", StoryMetaUpdate{Title: &title})
	require.NoError(t, err)
	require.NotNil(t, story)
	assert.Equal(t, "After", story.Title)

	// Untouched fields survive a partial update
	assert.Equal(t, "en", story.Language)

	story, err = st.UpdateStoryMeta(ctx, domain.ChainEthereumMainnet, "999", StoryMetaUpdate{Title: &title})
	require.NoError(t, err)
	assert.Nil(t, story)
}

func TestMarkNotificationRead(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	require.NoError(t, st.ApplyMarketEvent(ctx, storyMintedEvent("0xmint9", "300")))

	notifications, _, err := st.ListNotifications(ctx, authorAddr, Page{})
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.False(t, notifications[0].Read)

	require.NoError(t, st.MarkNotificationRead(ctx, notifications[0].ID))

	notifications, _, err = st.ListNotifications(ctx, authorAddr, Page{})
	require.NoError(t, err)
	assert.True(t, notifications[0].Read)

	err = st.MarkNotificationRead(ctx, "does-not-exist")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestNormalizeConnectionPoolSettings(t *testing.T) {
	open, idle, lifetime, idleTime := NormalizeConnectionPoolSettings(0, 0, 0, 0)
	assert.Equal(t, 20, open)
	assert.Equal(t, 5, idle)
	assert.Equal(t, 5*time.Minute, lifetime)
	assert.Equal(t, 10*time.Minute, idleTime)

	// Idle is capped at open
	open, idle, _, _ = NormalizeConnectionPoolSettings(3, 10, 0, 0)
	assert.Equal(t, 3, open)
	assert.Equal(t, 3, idle)
}

func TestMarkLazyMintMinted(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	lazyMint := &schema.LazyMint{
		ID:         "01J0000000000000000000MARK",
		Chain:      string(domain.ChainEthereumMainnet),
		Author:     authorAddr,
		ContentCID: "bafymark",
		Voucher:    []byte(`{}`),
	}
	require.NoError(t, st.CreateLazyMint(ctx, lazyMint))

	now := time.Now().UTC()
	require.NoError(t, st.MarkLazyMintMinted(ctx, lazyMint.ID, "400", "0xmark", now))

	// The flag flips exactly once
	err := st.MarkLazyMintMinted(ctx, lazyMint.ID, "401", "0xother", now)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	got, err := st.GetLazyMint(ctx, lazyMint.ID)
	require.NoError(t, err)
	assert.Equal(t, "400", got.TokenNumber)
	assert.Equal(t, "0xmark", got.MintTxHash)
}
