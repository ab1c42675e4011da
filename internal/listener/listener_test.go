package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/griothouse/storymarket/internal/adapter"
	"github.com/griothouse/storymarket/internal/block"
	"github.com/griothouse/storymarket/internal/domain"
	"github.com/griothouse/storymarket/internal/messaging"
	"github.com/griothouse/storymarket/internal/store"
)

type fakeMarketClient struct {
	mu          sync.Mutex
	logs        []types.Log
	filterCalls [][2]uint64
	filterErr   error
}

func (f *fakeMarketClient) ParseMarketLog(ctx context.Context, vLog types.Log) (*domain.MarketEvent, error) {
	return &domain.MarketEvent{
		Kind:            domain.EventListingCancelled,
		Chain:           domain.ChainEthereumMainnet,
		ContractAddress: vLog.Address.Hex(),
		TxHash:          vLog.TxHash.Hex(),
		BlockNumber:     vLog.BlockNumber,
		TxIndex:         uint64(vLog.TxIndex),
		LogIndex:        uint64(vLog.Index),
		Timestamp:       time.Now(),
		ListingCancelled: &domain.ListingCancelledPayload{
			ListingID: "1",
			TokenID:   "1",
		},
	}, nil
}

func (f *fakeMarketClient) FilterMarketLogs(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filterCalls = append(f.filterCalls, [2]uint64{fromBlock, toBlock})
	if f.filterErr != nil {
		return nil, f.filterErr
	}
	return f.logs, nil
}

func (f *fakeMarketClient) SubscribeMarketLogs(ctx context.Context, fromBlock uint64, ch chan<- types.Log) (goethereum.Subscription, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeMarketClient) LatestBlock(ctx context.Context) (uint64, error) { return 0, nil }

func (f *fakeMarketClient) Close() {}

type fakeSubscriber struct {
	latest        uint64
	subscribeFrom []uint64
	events        []*domain.MarketEvent
}

func (f *fakeSubscriber) SubscribeEvents(ctx context.Context, fromBlock uint64, handler messaging.EventHandler) error {
	f.subscribeFrom = append(f.subscribeFrom, fromBlock)
	for _, event := range f.events {
		if err := handler(event); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSubscriber) GetLatestBlock(ctx context.Context) (uint64, error) { return f.latest, nil }

func (f *fakeSubscriber) Close() {}

type fakePublisher struct {
	published []*domain.MarketEvent
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, event *domain.MarketEvent) error {
	f.published = append(f.published, event)
	return f.err
}

func (f *fakePublisher) Close() {}

type fakeListenerStore struct {
	store.Store

	mu          sync.Mutex
	applied     []*domain.MarketEvent
	applyCtx    context.Context
	failApplies int
	cursors     map[string]uint64
	cursorSaves []uint64
}

func newFakeListenerStore() *fakeListenerStore {
	return &fakeListenerStore{cursors: make(map[string]uint64)}
}

func (f *fakeListenerStore) ApplyMarketEvent(ctx context.Context, event *domain.MarketEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCtx = ctx
	if f.failApplies > 0 {
		f.failApplies--
		return errors.New("connection refused")
	}
	f.applied = append(f.applied, event)
	return nil
}

func (f *fakeListenerStore) GetBlockCursor(ctx context.Context, chain string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursors[chain], nil
}

func (f *fakeListenerStore) SetBlockCursor(ctx context.Context, chain string, blockNumber uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors[chain] = blockNumber
	f.cursorSaves = append(f.cursorSaves, blockNumber)
	return nil
}

type fakeHead struct {
	head uint64
}

func (f *fakeHead) GetLatestBlock(ctx context.Context) (uint64, error) { return f.head, nil }

type fakeClock struct {
	adapter.Clock
	now time.Time
}

func (c *fakeClock) Now() time.Time                  { return c.now }
func (c *fakeClock) Since(t time.Time) time.Duration { return c.now.Sub(t) }

func newTestListener(
	client *fakeMarketClient,
	sub *fakeSubscriber,
	pub messaging.Publisher,
	head block.HeadProvider,
	st store.Store,
	cfg Config,
	clock adapter.Clock,
) *listener {
	if cfg.ChainID == "" {
		cfg.ChainID = domain.ChainEthereumMainnet
	}
	return NewListener(client, sub, pub, head, st, cfg, clock).(*listener)
}

func TestRun_BackfillAppliesEventsInChainOrder(t *testing.T) {
	client := &fakeMarketClient{
		logs: []types.Log{
			{BlockNumber: 3, TxIndex: 1, Index: 0},
			{BlockNumber: 2, TxIndex: 0, Index: 2},
			{BlockNumber: 2, TxIndex: 0, Index: 1},
			{BlockNumber: 4, TxIndex: 0, Index: 0},
			{BlockNumber: 2, TxIndex: 1, Index: 0},
		},
	}
	sub := &fakeSubscriber{}
	st := newFakeListenerStore()
	clock := &fakeClock{now: time.Now()}

	l := newTestListener(client, sub, nil, &fakeHead{head: 5}, st, Config{
		StartBlock:         2,
		CursorSaveBlocks:   1000,
		CursorSaveInterval: time.Hour,
	}, clock)

	require.NoError(t, l.Run(context.Background()))

	require.Len(t, client.filterCalls, 1)
	assert.Equal(t, [2]uint64{2, 5}, client.filterCalls[0])

	require.Len(t, st.applied, 5)
	type pos struct{ block, tx, log uint64 }
	var got []pos
	for _, e := range st.applied {
		got = append(got, pos{e.BlockNumber, e.TxIndex, e.LogIndex})
	}
	assert.Equal(t, []pos{
		{2, 0, 1},
		{2, 0, 2},
		{2, 1, 0},
		{3, 1, 0},
		{4, 0, 0},
	}, got)

	// Cursor lands on the backfill head, live subscription resumes after it
	assert.Equal(t, uint64(5), st.cursors[string(domain.ChainEthereumMainnet)])
	require.Len(t, sub.subscribeFrom, 1)
	assert.Equal(t, uint64(6), sub.subscribeFrom[0])
}

func TestRun_FreshStartSkipsBackfill(t *testing.T) {
	client := &fakeMarketClient{}
	sub := &fakeSubscriber{latest: 3}
	st := newFakeListenerStore()

	l := newTestListener(client, sub, nil, &fakeHead{head: 10}, st, Config{
		CursorSaveInterval: time.Hour,
	}, &fakeClock{now: time.Now()})

	require.NoError(t, l.Run(context.Background()))

	// No cursor and no configured start: follow live only, never backfill
	assert.Empty(t, client.filterCalls)
	require.Len(t, sub.subscribeFrom, 1)
	assert.Equal(t, uint64(3), sub.subscribeFrom[0])
}

func TestRun_ResumesFromCursor(t *testing.T) {
	client := &fakeMarketClient{}
	sub := &fakeSubscriber{}
	st := newFakeListenerStore()
	st.cursors[string(domain.ChainEthereumMainnet)] = 50

	l := newTestListener(client, sub, nil, &fakeHead{head: 60}, st, Config{
		CursorSaveInterval: time.Hour,
	}, &fakeClock{now: time.Now()})

	require.NoError(t, l.Run(context.Background()))

	require.Len(t, client.filterCalls, 1)
	assert.Equal(t, [2]uint64{51, 60}, client.filterCalls[0])
	require.Len(t, sub.subscribeFrom, 1)
	assert.Equal(t, uint64(61), sub.subscribeFrom[0])
}

func TestRun_BoundsBackfillGap(t *testing.T) {
	client := &fakeMarketClient{}
	sub := &fakeSubscriber{}
	st := newFakeListenerStore()

	l := newTestListener(client, sub, nil, &fakeHead{head: 100}, st, Config{
		StartBlock:         1,
		MaxBackfillBlocks:  10,
		CursorSaveInterval: time.Hour,
	}, &fakeClock{now: time.Now()})

	require.NoError(t, l.Run(context.Background()))

	require.Len(t, client.filterCalls, 1)
	assert.Equal(t, [2]uint64{90, 100}, client.filterCalls[0])
}

func TestHandleEvent_PublishesAppliedEvents(t *testing.T) {
	st := newFakeListenerStore()
	pub := &fakePublisher{}

	l := newTestListener(&fakeMarketClient{}, &fakeSubscriber{}, pub, &fakeHead{}, st, Config{
		CursorSaveBlocks:   1000,
		CursorSaveInterval: time.Hour,
	}, &fakeClock{now: time.Now()})
	l.lastSaveTime = l.clock.Now()

	event := listingCancelledEvent(10)
	require.NoError(t, l.handleEvent(context.Background(), event))

	require.Len(t, st.applied, 1)
	require.Len(t, pub.published, 1)
	assert.Equal(t, event, pub.published[0])
}

func TestHandleEvent_PublishFailureIsBestEffort(t *testing.T) {
	st := newFakeListenerStore()
	pub := &fakePublisher{err: errors.New("nats unavailable")}

	l := newTestListener(&fakeMarketClient{}, &fakeSubscriber{}, pub, &fakeHead{}, st, Config{
		CursorSaveBlocks:   1000,
		CursorSaveInterval: time.Hour,
	}, &fakeClock{now: time.Now()})
	l.lastSaveTime = l.clock.Now()

	require.NoError(t, l.handleEvent(context.Background(), listingCancelledEvent(10)))
	assert.Len(t, st.applied, 1)
}

func TestHandleEvent_RetriesTransientStoreErrors(t *testing.T) {
	st := newFakeListenerStore()
	st.failApplies = 1

	l := newTestListener(&fakeMarketClient{}, &fakeSubscriber{}, nil, &fakeHead{}, st, Config{
		CursorSaveBlocks:   1000,
		CursorSaveInterval: time.Hour,
	}, &fakeClock{now: time.Now()})
	l.lastSaveTime = l.clock.Now()

	require.NoError(t, l.handleEvent(context.Background(), listingCancelledEvent(10)))
	assert.Len(t, st.applied, 1)
}

func TestHandleEvent_CancelledContextStopsRetrying(t *testing.T) {
	st := newFakeListenerStore()
	st.failApplies = 100

	l := newTestListener(&fakeMarketClient{}, &fakeSubscriber{}, nil, &fakeHead{}, st, Config{
		CursorSaveBlocks:   1000,
		CursorSaveInterval: time.Hour,
	}, &fakeClock{now: time.Now()})
	l.lastSaveTime = l.clock.Now()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The caller's context reaches the store write and aborts the retry loop
	require.Error(t, l.handleEvent(ctx, listingCancelledEvent(10)))
	require.NotNil(t, st.applyCtx)
	assert.ErrorIs(t, st.applyCtx.Err(), context.Canceled)
	assert.Empty(t, st.applied)
}

func TestMaybeSaveCursor_EveryNBlocks(t *testing.T) {
	st := newFakeListenerStore()
	clock := &fakeClock{now: time.Now()}

	l := newTestListener(&fakeMarketClient{}, &fakeSubscriber{}, nil, &fakeHead{}, st, Config{
		CursorSaveBlocks:   10,
		CursorSaveInterval: time.Hour,
	}, clock)
	l.lastSaveTime = clock.now

	for _, event := range []*domain.MarketEvent{
		listingCancelledEvent(5),
		listingCancelledEvent(9),
		listingCancelledEvent(12),
		listingCancelledEvent(15),
		listingCancelledEvent(22),
	} {
		require.NoError(t, l.handleEvent(context.Background(), event))
	}

	assert.Equal(t, []uint64{12, 22}, st.cursorSaves)
}

func TestMaybeSaveCursor_AfterInterval(t *testing.T) {
	st := newFakeListenerStore()
	clock := &fakeClock{now: time.Now()}

	l := newTestListener(&fakeMarketClient{}, &fakeSubscriber{}, nil, &fakeHead{}, st, Config{
		CursorSaveBlocks:   1000,
		CursorSaveInterval: 30 * time.Second,
	}, clock)
	l.lastSaveTime = clock.now

	require.NoError(t, l.handleEvent(context.Background(), listingCancelledEvent(5)))
	assert.Empty(t, st.cursorSaves)

	clock.now = clock.now.Add(time.Minute)
	require.NoError(t, l.handleEvent(context.Background(), listingCancelledEvent(6)))
	assert.Equal(t, []uint64{6}, st.cursorSaves)

	// Interval resets after a save
	require.NoError(t, l.handleEvent(context.Background(), listingCancelledEvent(7)))
	assert.Equal(t, []uint64{6}, st.cursorSaves)
}

func listingCancelledEvent(blockNumber uint64) *domain.MarketEvent {
	return &domain.MarketEvent{
		Kind:            domain.EventListingCancelled,
		Chain:           domain.ChainEthereumMainnet,
		ContractAddress: "0x00000000000000000000000000000000000000aa",
		TxHash:          "0xabc",
		BlockNumber:     blockNumber,
		Timestamp:       time.Now(),
		ListingCancelled: &domain.ListingCancelledPayload{
			ListingID: "1",
			TokenID:   "1",
		},
	}
}
