package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/griothouse/storymarket/internal/adapter"
	"github.com/griothouse/storymarket/internal/domain"
	"github.com/griothouse/storymarket/internal/logger"
)

// Config holds the configuration for the Ethereum marketplace client
type Config struct {
	ChainID             domain.Chain
	MarketplaceContract string
	StoryNFTContract    string
	FilterChunkSize     uint64
}

// Event signatures of the marketplace and story NFT contracts
var (
	storyMintedSignature      = crypto.Keccak256Hash([]byte("StoryMinted(uint256,address,string)"))
	listingCreatedSignature   = crypto.Keccak256Hash([]byte("ListingCreated(uint256,uint256,address,uint256,uint8,uint64,uint64)"))
	listingSoldSignature      = crypto.Keccak256Hash([]byte("ListingSold(uint256,uint256,address,address,uint256,uint256,uint256)"))
	listingCancelledSignature = crypto.Keccak256Hash([]byte("ListingCancelled(uint256,uint256)"))
	offerMadeSignature        = crypto.Keccak256Hash([]byte("OfferMade(uint256,address,uint256,uint64)"))
	offerAcceptedSignature    = crypto.Keccak256Hash([]byte("OfferAccepted(uint256,address,uint256,uint256)"))
	bundlePurchasedSignature  = crypto.Keccak256Hash([]byte("BundlePurchased(address,uint256[],uint256,uint256)"))
	lazyMintConsumedSignature = crypto.Keccak256Hash([]byte("LazyMintConsumed(uint256,address,string)"))

	allEventSignatures = []common.Hash{
		storyMintedSignature,
		listingCreatedSignature,
		listingSoldSignature,
		listingCancelledSignature,
		offerMadeSignature,
		offerAcceptedSignature,
		bundlePurchasedSignature,
		lazyMintConsumedSignature,
	}
)

const marketABIJSON = `[
{"type":"event","name":"StoryMinted","inputs":[{"name":"tokenId","type":"uint256","indexed":true},{"name":"author","type":"address","indexed":true},{"name":"contentCID","type":"string","indexed":false}]},
{"type":"event","name":"ListingCreated","inputs":[{"name":"listingId","type":"uint256","indexed":true},{"name":"tokenId","type":"uint256","indexed":true},{"name":"seller","type":"address","indexed":true},{"name":"price","type":"uint256","indexed":false},{"name":"listingType","type":"uint8","indexed":false},{"name":"auctionStart","type":"uint64","indexed":false},{"name":"auctionEnd","type":"uint64","indexed":false}]},
{"type":"event","name":"ListingSold","inputs":[{"name":"listingId","type":"uint256","indexed":true},{"name":"tokenId","type":"uint256","indexed":true},{"name":"seller","type":"address","indexed":false},{"name":"buyer","type":"address","indexed":false},{"name":"price","type":"uint256","indexed":false},{"name":"platformFee","type":"uint256","indexed":false},{"name":"royalty","type":"uint256","indexed":false}]},
{"type":"event","name":"ListingCancelled","inputs":[{"name":"listingId","type":"uint256","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}]},
{"type":"event","name":"OfferMade","inputs":[{"name":"tokenId","type":"uint256","indexed":true},{"name":"offerer","type":"address","indexed":true},{"name":"price","type":"uint256","indexed":false},{"name":"expiry","type":"uint64","indexed":false}]},
{"type":"event","name":"OfferAccepted","inputs":[{"name":"tokenId","type":"uint256","indexed":true},{"name":"offerer","type":"address","indexed":true},{"name":"listingId","type":"uint256","indexed":false},{"name":"price","type":"uint256","indexed":false}]},
{"type":"event","name":"BundlePurchased","inputs":[{"name":"buyer","type":"address","indexed":true},{"name":"listingIds","type":"uint256[]","indexed":false},{"name":"totalPrice","type":"uint256","indexed":false},{"name":"discount","type":"uint256","indexed":false}]},
{"type":"event","name":"LazyMintConsumed","inputs":[{"name":"tokenId","type":"uint256","indexed":true},{"name":"author","type":"address","indexed":true},{"name":"contentCID","type":"string","indexed":false}]}
]`

var (
	marketABI     abi.ABI
	marketABIOnce sync.Once
)

func loadMarketABI() abi.ABI {
	marketABIOnce.Do(func() {
		parsed, err := abi.JSON(strings.NewReader(marketABIJSON))
		if err != nil {
			panic(fmt.Sprintf("invalid marketplace ABI: %v", err))
		}
		marketABI = parsed
	})
	return marketABI
}

// MarketClient decodes marketplace contract logs into domain events and
// provides filtered access to historical logs
type MarketClient interface {
	// ParseMarketLog decodes one contract log. Returns (nil, nil) for logs
	// from foreign contracts or with unknown signatures.
	ParseMarketLog(ctx context.Context, vLog types.Log) (*domain.MarketEvent, error)

	// FilterMarketLogs retrieves marketplace logs in the block range,
	// chunked to stay under provider result limits
	FilterMarketLogs(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error)

	// SubscribeMarketLogs subscribes to live marketplace logs from fromBlock
	SubscribeMarketLogs(ctx context.Context, fromBlock uint64, ch chan<- types.Log) (ethereum.Subscription, error)

	// LatestBlock returns the latest block number
	LatestBlock(ctx context.Context) (uint64, error)

	// Close closes the connection
	Close()
}

type marketClient struct {
	chainID   domain.Chain
	client    adapter.EthClient
	clock     adapter.Clock
	addresses []common.Address
	chunkSize uint64

	mu         sync.Mutex
	blockTimes map[uint64]time.Time
}

// NewMarketClient creates a marketplace client over an Ethereum connection
func NewMarketClient(cfg Config, client adapter.EthClient, clock adapter.Clock) MarketClient {
	addresses := []common.Address{common.HexToAddress(cfg.MarketplaceContract)}
	if cfg.StoryNFTContract != "" {
		addresses = append(addresses, common.HexToAddress(cfg.StoryNFTContract))
	}

	chunkSize := cfg.FilterChunkSize
	if chunkSize == 0 {
		chunkSize = 2000
	}

	return &marketClient{
		chainID:    cfg.ChainID,
		client:     client,
		clock:      clock,
		addresses:  addresses,
		chunkSize:  chunkSize,
		blockTimes: make(map[uint64]time.Time),
	}
}

func (c *marketClient) filterQuery(fromBlock, toBlock *big.Int) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Addresses: c.addresses,
		Topics:    [][]common.Hash{allEventSignatures},
	}
}

// SubscribeMarketLogs subscribes to live marketplace logs from fromBlock
func (c *marketClient) SubscribeMarketLogs(ctx context.Context, fromBlock uint64, ch chan<- types.Log) (ethereum.Subscription, error) {
	var from *big.Int
	if fromBlock > 0 {
		from = new(big.Int).SetUint64(fromBlock)
	}
	return c.client.SubscribeFilterLogs(ctx, c.filterQuery(from, nil), ch)
}

// FilterMarketLogs retrieves marketplace logs for the range, halving the chunk
// size when the provider rejects a chunk for returning too many results
func (c *marketClient) FilterMarketLogs(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var allLogs []types.Log
	currentFrom := fromBlock
	stepSize := c.chunkSize

	for currentFrom <= toBlock {
		currentTo := currentFrom + stepSize - 1
		if currentTo > toBlock {
			currentTo = toBlock
		}

		query := c.filterQuery(
			new(big.Int).SetUint64(currentFrom),
			new(big.Int).SetUint64(currentTo),
		)

		logs, err := c.client.FilterLogs(ctx, query)
		if err != nil {
			if !isTooManyResultsError(err) {
				return nil, fmt.Errorf("failed to filter logs for range %d-%d: %w", currentFrom, currentTo, err)
			}

			if stepSize <= 1 {
				return nil, fmt.Errorf("failed to filter logs for single block %d: %w", currentFrom, err)
			}

			stepSize = stepSize / 2
			logger.Warn("too many results, reducing filter step size",
				zap.Uint64("newStepSize", stepSize),
				zap.Uint64("fromBlock", currentFrom),
				zap.Uint64("toBlock", currentTo))
			continue
		}

		allLogs = append(allLogs, logs...)
		currentFrom = currentTo + 1
	}

	return allLogs, nil
}

// isTooManyResultsError checks if the error is related to too many results
func isTooManyResultsError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "query returned more than 10000 results") ||
		strings.Contains(errStr, "query timeout exceeded") ||
		strings.Contains(errStr, "too many results") ||
		strings.Contains(errStr, "exceeded maximum")
}

// LatestBlock returns the latest block number
func (c *marketClient) LatestBlock(ctx context.Context) (uint64, error) {
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return header.Number.Uint64(), nil
}

// blockTime returns the timestamp of a block, cached across logs of the same
// block so backfills don't refetch headers
func (c *marketClient) blockTime(ctx context.Context, blockNumber uint64) (time.Time, error) {
	c.mu.Lock()
	if t, ok := c.blockTimes[blockNumber]; ok {
		c.mu.Unlock()
		return t, nil
	}
	c.mu.Unlock()

	header, err := c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get block header: %w", err)
	}

	t := c.clock.Unix(int64(header.Time), 0) //nolint:gosec,G115 // header.Time is a uint64 from geth which is safe to cast

	c.mu.Lock()
	if len(c.blockTimes) > 4096 {
		c.blockTimes = make(map[uint64]time.Time)
	}
	c.blockTimes[blockNumber] = t
	c.mu.Unlock()

	return t, nil
}

// ParseMarketLog decodes one contract log into a tagged domain event
func (c *marketClient) ParseMarketLog(ctx context.Context, vLog types.Log) (*domain.MarketEvent, error) {
	if len(vLog.Topics) == 0 {
		return nil, nil
	}

	known := false
	for _, addr := range c.addresses {
		if vLog.Address == addr {
			known = true
			break
		}
	}
	if !known {
		return nil, nil
	}

	timestamp, err := c.blockTime(ctx, vLog.BlockNumber)
	if err != nil {
		return nil, err
	}

	event := &domain.MarketEvent{
		Chain:           c.chainID,
		ContractAddress: vLog.Address.Hex(),
		TxHash:          vLog.TxHash.Hex(),
		BlockNumber:     vLog.BlockNumber,
		TxIndex:         uint64(vLog.TxIndex),
		LogIndex:        uint64(vLog.Index),
		Timestamp:       timestamp,
	}

	switch vLog.Topics[0] {
	case storyMintedSignature:
		return parseStoryMinted(event, vLog)
	case listingCreatedSignature:
		return parseListingCreated(event, vLog)
	case listingSoldSignature:
		return parseListingSold(event, vLog)
	case listingCancelledSignature:
		return parseListingCancelled(event, vLog)
	case offerMadeSignature:
		return parseOfferMade(event, vLog)
	case offerAcceptedSignature:
		return parseOfferAccepted(event, vLog)
	case bundlePurchasedSignature:
		return parseBundlePurchased(event, vLog)
	case lazyMintConsumedSignature:
		return parseLazyMintConsumed(event, vLog)
	default:
		logger.Debug("skipping log with unknown signature",
			zap.String("signature", vLog.Topics[0].Hex()),
			zap.String("txHash", vLog.TxHash.Hex()))
		return nil, nil
	}
}

func parseStoryMinted(event *domain.MarketEvent, vLog types.Log) (*domain.MarketEvent, error) {
	// StoryMinted(uint256 indexed tokenId, address indexed author, string contentCID)
	if len(vLog.Topics) != 3 {
		return nil, fmt.Errorf("invalid StoryMinted event: expected 3 topics, got %d", len(vLog.Topics))
	}

	values, err := loadMarketABI().Unpack("StoryMinted", vLog.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack StoryMinted data: %w", err)
	}
	contentCID, ok := values[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid StoryMinted contentCID type")
	}

	event.Kind = domain.EventStoryMinted
	event.StoryMinted = &domain.StoryMintedPayload{
		TokenID:    new(big.Int).SetBytes(vLog.Topics[1].Bytes()).String(),
		Author:     common.BytesToAddress(vLog.Topics[2].Bytes()).Hex(),
		ContentCID: contentCID,
	}
	return event, nil
}

func parseListingCreated(event *domain.MarketEvent, vLog types.Log) (*domain.MarketEvent, error) {
	// ListingCreated(uint256 indexed listingId, uint256 indexed tokenId, address indexed seller,
	//                uint256 price, uint8 listingType, uint64 auctionStart, uint64 auctionEnd)
	if len(vLog.Topics) != 4 {
		return nil, fmt.Errorf("invalid ListingCreated event: expected 4 topics, got %d", len(vLog.Topics))
	}

	values, err := loadMarketABI().Unpack("ListingCreated", vLog.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack ListingCreated data: %w", err)
	}

	price, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("invalid ListingCreated price type")
	}
	rawType, ok := values[1].(uint8)
	if !ok {
		return nil, fmt.Errorf("invalid ListingCreated listingType type")
	}
	auctionStart, ok := values[2].(uint64)
	if !ok {
		return nil, fmt.Errorf("invalid ListingCreated auctionStart type")
	}
	auctionEnd, ok := values[3].(uint64)
	if !ok {
		return nil, fmt.Errorf("invalid ListingCreated auctionEnd type")
	}

	payload := &domain.ListingCreatedPayload{
		ListingID: new(big.Int).SetBytes(vLog.Topics[1].Bytes()).String(),
		TokenID:   new(big.Int).SetBytes(vLog.Topics[2].Bytes()).String(),
		Seller:    common.BytesToAddress(vLog.Topics[3].Bytes()).Hex(),
		PriceWei:  price.String(),
	}

	switch rawType {
	case 0:
		payload.ListingType = domain.ListingTypeFixed
	case 1:
		payload.ListingType = domain.ListingTypeAuction
		start := time.Unix(int64(auctionStart), 0).UTC() //nolint:gosec,G115
		end := time.Unix(int64(auctionEnd), 0).UTC()     //nolint:gosec,G115
		payload.AuctionStart = &start
		payload.AuctionEnd = &end
	default:
		return nil, fmt.Errorf("invalid ListingCreated listing type %d", rawType)
	}

	event.Kind = domain.EventListingCreated
	event.ListingCreated = payload
	return event, nil
}

func parseListingSold(event *domain.MarketEvent, vLog types.Log) (*domain.MarketEvent, error) {
	// ListingSold(uint256 indexed listingId, uint256 indexed tokenId, address seller,
	//             address buyer, uint256 price, uint256 platformFee, uint256 royalty)
	if len(vLog.Topics) != 3 {
		return nil, fmt.Errorf("invalid ListingSold event: expected 3 topics, got %d", len(vLog.Topics))
	}

	values, err := loadMarketABI().Unpack("ListingSold", vLog.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack ListingSold data: %w", err)
	}

	seller, sellerOK := values[0].(common.Address)
	buyer, buyerOK := values[1].(common.Address)
	price, priceOK := values[2].(*big.Int)
	platformFee, feeOK := values[3].(*big.Int)
	royalty, royaltyOK := values[4].(*big.Int)
	if !sellerOK || !buyerOK || !priceOK || !feeOK || !royaltyOK {
		return nil, fmt.Errorf("invalid ListingSold data types")
	}

	event.Kind = domain.EventListingSold
	event.ListingSold = &domain.ListingSoldPayload{
		ListingID:      new(big.Int).SetBytes(vLog.Topics[1].Bytes()).String(),
		TokenID:        new(big.Int).SetBytes(vLog.Topics[2].Bytes()).String(),
		Seller:         seller.Hex(),
		Buyer:          buyer.Hex(),
		PriceWei:       price.String(),
		PlatformFeeWei: platformFee.String(),
		RoyaltyWei:     royalty.String(),
	}
	return event, nil
}

func parseListingCancelled(event *domain.MarketEvent, vLog types.Log) (*domain.MarketEvent, error) {
	// ListingCancelled(uint256 indexed listingId, uint256 indexed tokenId)
	if len(vLog.Topics) != 3 {
		return nil, fmt.Errorf("invalid ListingCancelled event: expected 3 topics, got %d", len(vLog.Topics))
	}

	event.Kind = domain.EventListingCancelled
	event.ListingCancelled = &domain.ListingCancelledPayload{
		ListingID: new(big.Int).SetBytes(vLog.Topics[1].Bytes()).String(),
		TokenID:   new(big.Int).SetBytes(vLog.Topics[2].Bytes()).String(),
	}
	return event, nil
}

func parseOfferMade(event *domain.MarketEvent, vLog types.Log) (*domain.MarketEvent, error) {
	// OfferMade(uint256 indexed tokenId, address indexed offerer, uint256 price, uint64 expiry)
	if len(vLog.Topics) != 3 {
		return nil, fmt.Errorf("invalid OfferMade event: expected 3 topics, got %d", len(vLog.Topics))
	}

	values, err := loadMarketABI().Unpack("OfferMade", vLog.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack OfferMade data: %w", err)
	}

	price, priceOK := values[0].(*big.Int)
	expiry, expiryOK := values[1].(uint64)
	if !priceOK || !expiryOK {
		return nil, fmt.Errorf("invalid OfferMade data types")
	}

	event.Kind = domain.EventOfferMade
	event.OfferMade = &domain.OfferMadePayload{
		TokenID:  new(big.Int).SetBytes(vLog.Topics[1].Bytes()).String(),
		Offerer:  common.BytesToAddress(vLog.Topics[2].Bytes()).Hex(),
		PriceWei: price.String(),
		Expiry:   time.Unix(int64(expiry), 0).UTC(), //nolint:gosec,G115
	}
	return event, nil
}

func parseOfferAccepted(event *domain.MarketEvent, vLog types.Log) (*domain.MarketEvent, error) {
	// OfferAccepted(uint256 indexed tokenId, address indexed offerer, uint256 listingId, uint256 price)
	if len(vLog.Topics) != 3 {
		return nil, fmt.Errorf("invalid OfferAccepted event: expected 3 topics, got %d", len(vLog.Topics))
	}

	values, err := loadMarketABI().Unpack("OfferAccepted", vLog.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack OfferAccepted data: %w", err)
	}

	listingID, listingOK := values[0].(*big.Int)
	price, priceOK := values[1].(*big.Int)
	if !listingOK || !priceOK {
		return nil, fmt.Errorf("invalid OfferAccepted data types")
	}

	event.Kind = domain.EventOfferAccepted
	event.OfferAccepted = &domain.OfferAcceptedPayload{
		TokenID:   new(big.Int).SetBytes(vLog.Topics[1].Bytes()).String(),
		Offerer:   common.BytesToAddress(vLog.Topics[2].Bytes()).Hex(),
		ListingID: listingID.String(),
		PriceWei:  price.String(),
	}
	return event, nil
}

func parseBundlePurchased(event *domain.MarketEvent, vLog types.Log) (*domain.MarketEvent, error) {
	// BundlePurchased(address indexed buyer, uint256[] listingIds, uint256 totalPrice, uint256 discount)
	if len(vLog.Topics) != 2 {
		return nil, fmt.Errorf("invalid BundlePurchased event: expected 2 topics, got %d", len(vLog.Topics))
	}

	values, err := loadMarketABI().Unpack("BundlePurchased", vLog.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack BundlePurchased data: %w", err)
	}

	rawIDs, idsOK := values[0].([]*big.Int)
	totalPrice, totalOK := values[1].(*big.Int)
	discount, discountOK := values[2].(*big.Int)
	if !idsOK || !totalOK || !discountOK {
		return nil, fmt.Errorf("invalid BundlePurchased data types")
	}

	listingIDs := make([]string, 0, len(rawIDs))
	for _, id := range rawIDs {
		listingIDs = append(listingIDs, id.String())
	}

	event.Kind = domain.EventBundlePurchased
	event.BundlePurchased = &domain.BundlePurchasedPayload{
		Buyer:         common.BytesToAddress(vLog.Topics[1].Bytes()).Hex(),
		ListingIDs:    listingIDs,
		TotalPriceWei: totalPrice.String(),
		DiscountWei:   discount.String(),
	}
	return event, nil
}

func parseLazyMintConsumed(event *domain.MarketEvent, vLog types.Log) (*domain.MarketEvent, error) {
	// LazyMintConsumed(uint256 indexed tokenId, address indexed author, string contentCID)
	if len(vLog.Topics) != 3 {
		return nil, fmt.Errorf("invalid LazyMintConsumed event: expected 3 topics, got %d", len(vLog.Topics))
	}

	values, err := loadMarketABI().Unpack("LazyMintConsumed", vLog.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack LazyMintConsumed data: %w", err)
	}
	contentCID, ok := values[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid LazyMintConsumed contentCID type")
	}

	event.Kind = domain.EventLazyMintConsumed
	event.LazyMintConsumed = &domain.LazyMintConsumedPayload{
		TokenID:    new(big.Int).SetBytes(vLog.Topics[1].Bytes()).String(),
		Author:     common.BytesToAddress(vLog.Topics[2].Bytes()).Hex(),
		ContentCID: contentCID,
	}
	return event, nil
}

// Close closes the connection
func (c *marketClient) Close() {
	c.client.Close()
}
