package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"matchcore/internal/domain"
	"matchcore/internal/persistence"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func openTestStore(t *testing.T) *persistence.Store {
	t.Helper()
	store, err := persistence.Open(t.TempDir(), "BTC-USD", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_SaveAndReplayRestingOrders(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	order := domain.Order{
		OrderID:   "o1",
		Symbol:    "BTC-USD",
		Side:      domain.Buy,
		OrderType: domain.Limit,
		HasPrice:  true,
		Price:     dec("100"),
		Quantity:  dec("5"),
		Status:    domain.Pending,
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, store.SaveOrders(ctx, []domain.Order{order}))

	resting, err := store.ReplayRestingOrders(ctx, "BTC-USD", time.Time{})
	require.NoError(t, err)
	require.Len(t, resting, 1)
	require.Equal(t, "o1", resting[0].OrderID)
	require.NotNil(t, resting[0].Price)
	require.Equal(t, "100", *resting[0].Price)
}

func TestStore_FilledOrdersNeverReplayed(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	order := domain.Order{
		OrderID: "o2", Symbol: "BTC-USD", Side: domain.Buy, OrderType: domain.Limit,
		HasPrice: true, Price: dec("100"), Quantity: dec("5"), FilledQuantity: dec("5"),
		Status: domain.Filled, Timestamp: time.Now().UTC(),
	}
	require.NoError(t, store.SaveOrders(ctx, []domain.Order{order}))

	resting, err := store.ReplayRestingOrders(ctx, "BTC-USD", time.Time{})
	require.NoError(t, err)
	require.Empty(t, resting)
}

func TestStore_SaveTrades(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	trade := domain.Trade{
		TradeID: "t1", Symbol: "BTC-USD", Price: dec("100"), Quantity: dec("1"),
		AggressorSide: domain.Buy, MakerOrderID: "m1", TakerOrderID: "t1",
		Timestamp: time.Now().UTC(), MakerFee: dec("0.1"), TakerFee: dec("0.2"),
	}
	require.NoError(t, store.SaveTrades(ctx, []domain.Trade{trade}))
}

func TestStore_SnapshotRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	bid := &domain.Order{
		OrderID: "b1", Symbol: "BTC-USD", Side: domain.Buy, OrderType: domain.Limit,
		HasPrice: true, Price: dec("99"), Quantity: dec("10"), Status: domain.Pending,
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, store.SaveSnapshot(ctx, "BTC-USD", []*domain.Order{bid}, nil))

	env, ts, err := store.LoadLatestSnapshot(ctx, "BTC-USD")
	require.NoError(t, err)
	require.NotNil(t, env)
	require.False(t, ts.IsZero())
	require.Len(t, env.Bids, 1)
	require.Equal(t, "b1", env.Bids[0].OrderID)
	require.Equal(t, "99", env.Bids[0].Price)
}

func TestStore_LoadLatestSnapshot_NoneYieldsNilWithoutError(t *testing.T) {
	store := openTestStore(t)
	env, ts, err := store.LoadLatestSnapshot(context.Background(), "BTC-USD")
	require.NoError(t, err)
	require.Nil(t, env)
	require.True(t, ts.IsZero())
}

func TestStore_Cleanup_SucceedsWithOldTerminalOrders(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	old := domain.Order{
		OrderID: "old1", Symbol: "BTC-USD", Side: domain.Buy, OrderType: domain.Limit,
		HasPrice: true, Price: dec("100"), Quantity: dec("1"), FilledQuantity: dec("1"),
		Status: domain.Filled, Timestamp: time.Now().UTC().AddDate(0, 0, -60),
	}
	require.NoError(t, store.SaveOrders(ctx, []domain.Order{old}))
	require.NoError(t, store.Cleanup(ctx, time.Now().UTC().AddDate(0, 0, -30)))
}
