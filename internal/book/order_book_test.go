package book_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchcore/internal/book"
	"matchcore/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func restingOrder(id string, side domain.Side, price, qty string) *domain.Order {
	return &domain.Order{
		OrderID:  id,
		Symbol:   "BTC-USD",
		Side:     side,
		OrderType: domain.Limit,
		Price:    dec(price),
		HasPrice: true,
		Quantity: dec(qty),
		Status:   domain.Pending,
	}
}

func TestAddOrder_AggregatesByPriceLevel(t *testing.T) {
	b := book.New("BTC-USD")

	require.True(t, b.AddOrder(restingOrder("b1", domain.Buy, "99", "100"), false))
	require.True(t, b.AddOrder(restingOrder("b2", domain.Buy, "99", "90"), false))
	require.True(t, b.AddOrder(restingOrder("a1", domain.Sell, "100", "50"), false))

	bbo := b.GetBBO()
	require.NotNil(t, bbo.BestBid)
	require.NotNil(t, bbo.BestAsk)
	assert.True(t, bbo.BestBid.Price.Equal(dec("99")))
	assert.True(t, bbo.BestBid.Quantity.Equal(dec("190")))
	assert.True(t, bbo.BestAsk.Price.Equal(dec("100")))
	require.NotNil(t, bbo.Spread)
	assert.True(t, bbo.Spread.Equal(dec("1")))
}

func TestAddOrder_DuplicateIDRejectedUnlessSkipExisting(t *testing.T) {
	b := book.New("BTC-USD")
	require.True(t, b.AddOrder(restingOrder("b1", domain.Buy, "99", "100"), false))
	assert.False(t, b.AddOrder(restingOrder("b1", domain.Buy, "98", "1"), false))
	assert.True(t, b.AddOrder(restingOrder("b1", domain.Buy, "98", "1"), true))
}

func TestGetDepth_OrderedBestFirstBothSides(t *testing.T) {
	b := book.New("BTC-USD")
	require.True(t, b.AddOrder(restingOrder("b1", domain.Buy, "99", "1"), false))
	require.True(t, b.AddOrder(restingOrder("b2", domain.Buy, "98", "1"), false))
	require.True(t, b.AddOrder(restingOrder("a1", domain.Sell, "101", "1"), false))
	require.True(t, b.AddOrder(restingOrder("a2", domain.Sell, "100", "1"), false))

	depth := b.GetDepth(10)
	require.Len(t, depth.Bids, 2)
	require.Len(t, depth.Asks, 2)
	assert.True(t, depth.Bids[0].Price.Equal(dec("99")), "bids must be descending")
	assert.True(t, depth.Bids[1].Price.Equal(dec("98")))
	assert.True(t, depth.Asks[0].Price.Equal(dec("100")), "asks must be ascending")
	assert.True(t, depth.Asks[1].Price.Equal(dec("101")))
}

func TestCancelOrder_RemovesFromBookAndIndex(t *testing.T) {
	b := book.New("BTC-USD")
	require.True(t, b.AddOrder(restingOrder("b1", domain.Buy, "99", "100"), false))

	cancelled, ok := b.CancelOrder("b1")
	require.True(t, ok)
	assert.Equal(t, domain.Cancelled, cancelled.Status)

	_, found := b.Get("b1")
	assert.False(t, found)
	assert.False(t, b.GetBBO().BestBid != nil)
}

func TestCancelOrder_UnknownIDReturnsFalse(t *testing.T) {
	b := book.New("BTC-USD")
	_, ok := b.CancelOrder("missing")
	assert.False(t, ok)
}

func TestConsumeFront_DropsLevelWhenEmptied(t *testing.T) {
	b := book.New("BTC-USD")
	require.True(t, b.AddOrder(restingOrder("a1", domain.Sell, "100", "10"), false))

	lvl, ok := b.BestLevel(b.Asks)
	require.True(t, ok)
	b.ConsumeFront(b.Asks, lvl, 1)

	assert.Nil(t, b.GetBBO().BestAsk)
}
