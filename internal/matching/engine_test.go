package matching_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchcore/internal/domain"
	"matchcore/internal/matching"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestEngine() *matching.Engine {
	return matching.New("BTC-USD", dec("0.001"), dec("0.002"))
}

func restLimit(e *matching.Engine, side domain.Side, price, qty string) {
	accepted, _, _ := e.Submit(domain.Order{
		Symbol: "BTC-USD", Side: side, OrderType: domain.Limit,
		HasPrice: true, Price: dec(price), Quantity: dec(qty),
	})
	if !accepted {
		panic("resting order rejected")
	}
}

// S1: a marketable order sweeps resting liquidity best price first,
// FIFO within a level, generating one trade per maker touched.
func TestSubmit_MarketSweepsBestPriceFirstFIFOWithinLevel(t *testing.T) {
	e := newTestEngine()
	restLimit(e, domain.Sell, "100", "5")
	restLimit(e, domain.Sell, "100", "3")
	restLimit(e, domain.Sell, "101", "10")

	accepted, _, trades := e.Submit(domain.Order{
		Symbol: "BTC-USD", Side: domain.Buy, OrderType: domain.Market, Quantity: dec("6"),
	})
	require.True(t, accepted)
	require.Len(t, trades, 2)
	assert.True(t, trades[0].Price.Equal(dec("100")))
	assert.True(t, trades[0].Quantity.Equal(dec("5")), "first FIFO maker fully consumed first")
	assert.True(t, trades[1].Quantity.Equal(dec("1")), "second maker only partially consumed")
}

// S2: a LIMIT order with a positive remainder after matching rests on
// the book at its own price.
func TestSubmit_LimitRestsRemainderAfterPartialMatch(t *testing.T) {
	e := newTestEngine()
	restLimit(e, domain.Sell, "100", "2")

	accepted, status, trades := e.Submit(domain.Order{
		Symbol: "BTC-USD", Side: domain.Buy, OrderType: domain.Limit,
		HasPrice: true, Price: dec("100"), Quantity: dec("5"),
	})
	require.True(t, accepted)
	assert.Equal(t, "order partially_filled", status)
	require.Len(t, trades, 1)

	bbo := e.GetBBO()
	require.NotNil(t, bbo.BestBid)
	assert.True(t, bbo.BestBid.Quantity.Equal(dec("3")))
}

// S3: an IOC order fills what it can and cancels any remainder instead
// of resting it.
func TestSubmit_IOCCancelsRemainderInsteadOfResting(t *testing.T) {
	e := newTestEngine()
	restLimit(e, domain.Sell, "100", "2")

	accepted, status, trades := e.Submit(domain.Order{
		Symbol: "BTC-USD", Side: domain.Buy, OrderType: domain.IOC,
		HasPrice: true, Price: dec("100"), Quantity: dec("5"),
	})
	require.True(t, accepted)
	assert.Equal(t, "order partially_filled", status)
	require.Len(t, trades, 1)
	assert.Nil(t, e.GetBBO().BestBid, "IOC remainder must never rest")
}

// S4: a FOK order with insufficient attainable liquidity is killed
// outright with zero trades and zero book mutation.
func TestSubmit_FOKKilledWhenLiquidityInsufficient(t *testing.T) {
	e := newTestEngine()
	restLimit(e, domain.Sell, "100", "2")

	accepted, status, trades := e.Submit(domain.Order{
		Symbol: "BTC-USD", Side: domain.Buy, OrderType: domain.FOK,
		HasPrice: true, Price: dec("100"), Quantity: dec("5"),
	})
	assert.False(t, accepted)
	assert.Equal(t, "order cancelled", status)
	assert.Empty(t, trades)

	bbo := e.GetBBO()
	require.NotNil(t, bbo.BestAsk)
	assert.True(t, bbo.BestAsk.Quantity.Equal(dec("2")), "book must be untouched on a killed FOK")
}

// S5: a FOK order with exactly attainable liquidity across levels
// fills completely.
func TestSubmit_FOKFillsWhenLiquidityAttainableAcrossLevels(t *testing.T) {
	e := newTestEngine()
	restLimit(e, domain.Sell, "100", "2")
	restLimit(e, domain.Sell, "101", "3")

	accepted, status, trades := e.Submit(domain.Order{
		Symbol: "BTC-USD", Side: domain.Buy, OrderType: domain.FOK,
		HasPrice: true, Price: dec("101"), Quantity: dec("5"),
	})
	require.True(t, accepted)
	assert.Equal(t, "order filled", status)
	require.Len(t, trades, 2)
}

// S6: fees are computed at full decimal precision, maker always the
// resting order and taker always the incoming order.
func TestSubmit_FeesComputedExactlyMakerTakerAssignedCorrectly(t *testing.T) {
	e := newTestEngine()
	restLimit(e, domain.Sell, "100", "2")

	_, _, trades := e.Submit(domain.Order{
		Symbol: "BTC-USD", Side: domain.Buy, OrderType: domain.Market, Quantity: dec("2"),
	})
	require.Len(t, trades, 1)
	trade := trades[0]
	assert.True(t, trade.MakerFee.Equal(dec("0.2")), "maker fee: got %s", trade.MakerFee)
	assert.True(t, trade.TakerFee.Equal(dec("0.4")), "taker fee: got %s", trade.TakerFee)
	assert.Equal(t, domain.Buy, trade.AggressorSide)
}

// S7: BBO and spread reflect the best level on each side only.
func TestGetBBO_ReflectsOnlyBestLevelEachSide(t *testing.T) {
	e := newTestEngine()
	restLimit(e, domain.Buy, "99", "1")
	restLimit(e, domain.Buy, "98", "5")
	restLimit(e, domain.Sell, "101", "1")
	restLimit(e, domain.Sell, "102", "5")

	bbo := e.GetBBO()
	require.NotNil(t, bbo.BestBid)
	require.NotNil(t, bbo.BestAsk)
	assert.True(t, bbo.BestBid.Price.Equal(dec("99")))
	assert.True(t, bbo.BestAsk.Price.Equal(dec("101")))
	require.NotNil(t, bbo.Spread)
	assert.True(t, bbo.Spread.Equal(dec("2")))
}

// S8: two resting orders at the same price fill in strict time
// (FIFO arrival) priority, not any other ordering.
func TestSubmit_SamePriceOrdersFillInTimePriority(t *testing.T) {
	e := newTestEngine()
	restLimit(e, domain.Sell, "100", "1")
	restLimit(e, domain.Sell, "100", "1")
	restLimit(e, domain.Sell, "100", "1")

	_, asks := e.LockedSnapshot()
	require.Len(t, asks, 3)

	_, _, trades := e.Submit(domain.Order{
		Symbol: "BTC-USD", Side: domain.Buy, OrderType: domain.Market, Quantity: dec("2"),
	})
	require.Len(t, trades, 2)
	assert.NotEqual(t, trades[0].MakerOrderID, trades[1].MakerOrderID)
	assert.Equal(t, asks[0].OrderID, trades[0].MakerOrderID, "earliest maker fills first")
	assert.Equal(t, asks[1].OrderID, trades[1].MakerOrderID, "second maker fills next")

	remainingAsk := e.GetBBO().BestAsk
	require.NotNil(t, remainingAsk)
	assert.True(t, remainingAsk.Quantity.Equal(dec("1")), "exactly one of the three original makers survives")
}

// Market orders against an empty book are cancelled with an explicit
// reason rather than left pending (the Open Question resolution).
func TestSubmit_MarketAgainstEmptyBookCancelled(t *testing.T) {
	e := newTestEngine()
	accepted, status, trades := e.Submit(domain.Order{
		Symbol: "BTC-USD", Side: domain.Buy, OrderType: domain.Market, Quantity: dec("1"),
	})
	assert.False(t, accepted)
	assert.Equal(t, "order cancelled", status)
	assert.Empty(t, trades)
}

func TestCancel_RemovesRestingOrder(t *testing.T) {
	e := newTestEngine()
	e.Submit(domain.Order{
		Symbol: "BTC-USD", Side: domain.Buy, OrderType: domain.Limit,
		HasPrice: true, Price: dec("99"), Quantity: dec("1"),
	})
	bids, _ := e.LockedSnapshot()
	require.Len(t, bids, 1)
	orderID := bids[0].OrderID

	cancelled, order := e.Cancel(orderID)
	require.True(t, cancelled)
	assert.Equal(t, domain.Cancelled, order.Status)
	assert.Nil(t, e.GetBBO().BestBid)
}

func TestValidate_RejectedSubmissionNeverTouchesBook(t *testing.T) {
	e := newTestEngine()
	accepted, _, trades := e.Submit(domain.Order{
		Symbol: "BTC-USD", Side: domain.Buy, OrderType: domain.Limit, Quantity: dec("1"),
	})
	assert.False(t, accepted)
	assert.Empty(t, trades)
	assert.Nil(t, e.GetBBO().BestBid)
}
