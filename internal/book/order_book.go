package book

import (
	"github.com/shopspring/decimal"

	"matchcore/internal/domain"
)

// OrderBook is the two sides of one symbol's book plus the order_id ->
// Order index used for O(1) cancel. It exclusively owns its
// PriceLevels and the Orders indexed in it; callers (internal/matching,
// internal/broadcast, internal/persistence) only ever receive copies or
// read views.
type OrderBook struct {
	Symbol string
	Bids   *OrderBookSide
	Asks   *OrderBookSide

	index map[string]*domain.Order
}

func New(symbol string) *OrderBook {
	return &OrderBook{
		Symbol: symbol,
		Bids:   newSide(true),
		Asks:   newSide(false),
		index:  make(map[string]*domain.Order),
	}
}

// AddOrder rests a LIMIT order with positive remainder on the book.
// Returns false only on order_id collision; skipExisting lets recovery
// treat a collision as a non-error skip rather than a rejection.
func (b *OrderBook) AddOrder(o *domain.Order, skipExisting bool) bool {
	if _, exists := b.index[o.OrderID]; exists {
		return skipExisting
	}
	b.index[o.OrderID] = o
	if o.Side == domain.Buy {
		b.Bids.add(o)
	} else {
		b.Asks.add(o)
	}
	return true
}

// CancelOrder removes an order by id, sets it CANCELLED, and returns
// it. Returns (nil, false) if not present.
func (b *OrderBook) CancelOrder(orderID string) (*domain.Order, bool) {
	o, ok := b.index[orderID]
	if !ok {
		return nil, false
	}
	side := b.Bids
	if o.Side == domain.Sell {
		side = b.Asks
	}
	side.remove(o.Price, orderID)
	delete(b.index, orderID)
	o.Status = domain.Cancelled
	return o, true
}

// RemoveFilled removes a fully-filled order from the index and its
// level without touching Status (the caller already set it FILLED).
func (b *OrderBook) RemoveFilled(orderID string) bool {
	o, ok := b.index[orderID]
	if !ok {
		return false
	}
	side := b.Bids
	if o.Side == domain.Sell {
		side = b.Asks
	}
	side.remove(o.Price, orderID)
	delete(b.index, orderID)
	return true
}

// Get looks up a resting order by id.
func (b *OrderBook) Get(orderID string) (*domain.Order, bool) {
	o, ok := b.index[orderID]
	return o, ok
}

// OppositeSide returns the side a taker of the given side matches
// against: Asks for a buyer, Bids for a seller.
func (b *OrderBook) OppositeSide(takerSide domain.Side) *OrderBookSide {
	if takerSide == domain.Buy {
		return b.Asks
	}
	return b.Bids
}

// RestingSide returns the side a LIMIT order of the given side rests
// on: Bids for a buyer, Asks for a seller.
func (b *OrderBook) RestingSide(side domain.Side) *OrderBookSide {
	if side == domain.Buy {
		return b.Bids
	}
	return b.Asks
}

// BestLevel exposes the lazily-pruned best level on a side, for the
// matching engine to walk while sweeping.
func (b *OrderBook) BestLevel(side *OrderBookSide) (*PriceLevel, bool) {
	return side.pruneAndPeekBest()
}

// ConsumeFront removes the first n fully-consumed orders from a
// level's FIFO after a sweep, drops them from the index, reconciles
// the level's aggregate, and drops the level itself if it emptied out.
func (b *OrderBook) ConsumeFront(side *OrderBookSide, lvl *PriceLevel, n int) {
	for i := 0; i < n && i < len(lvl.Orders); i++ {
		delete(b.index, lvl.Orders[i].OrderID)
	}
	lvl.dropFront(n)
	lvl.reconcile()
	side.dropIfEmpty(lvl)
}

// BestBid returns (price, aggregate quantity) of the best non-empty
// bid level, or false if there are no bids.
func (b *OrderBook) BestBid() (decimal.Decimal, decimal.Decimal, bool) {
	return b.Bids.best()
}

// BestAsk returns (price, aggregate quantity) of the best non-empty
// ask level, or false if there are no asks.
func (b *OrderBook) BestAsk() (decimal.Decimal, decimal.Decimal, bool) {
	return b.Asks.best()
}

// PriceQty pairs a price with an aggregate quantity for BBO/depth
// views.
type PriceQty struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// BBO is the best-bid/best-offer composite snapshot.
type BBO struct {
	Symbol  string
	BestBid *PriceQty
	BestAsk *PriceQty
	Spread  *decimal.Decimal
}

func (b *OrderBook) GetBBO() BBO {
	out := BBO{Symbol: b.Symbol}
	bidPrice, bidQty, bidOk := b.BestBid()
	askPrice, askQty, askOk := b.BestAsk()
	if bidOk {
		out.BestBid = &PriceQty{Price: bidPrice, Quantity: bidQty}
	}
	if askOk {
		out.BestAsk = &PriceQty{Price: askPrice, Quantity: askQty}
	}
	if bidOk && askOk {
		spread := askPrice.Sub(bidPrice)
		out.Spread = &spread
	}
	return out
}

// Depth is the top-n view of both sides, bids descending, asks
// ascending, empty levels skipped.
type Depth struct {
	Symbol string
	Bids   []PriceQty
	Asks   []PriceQty
}

func (b *OrderBook) GetDepth(n int) Depth {
	toPQ := func(entries []DepthEntry) []PriceQty {
		out := make([]PriceQty, len(entries))
		for i, e := range entries {
			out[i] = PriceQty{Price: e.Price, Quantity: e.Quantity}
		}
		return out
	}
	return Depth{
		Symbol: b.Symbol,
		Bids:   toPQ(b.Bids.depth(n)),
		Asks:   toPQ(b.Asks.depth(n)),
	}
}

// Snapshot returns a serialization-ready view of every resting order on
// both sides, in FIFO/priority order, for internal/persistence to
// persist as a versioned snapshot envelope.
func (b *OrderBook) Snapshot() (bids, asks []*domain.Order) {
	collect := func(side *OrderBookSide) []*domain.Order {
		var out []*domain.Order
		side.tree.Scan(func(lvl *PriceLevel) bool {
			out = append(out, lvl.Orders...)
			return true
		})
		return out
	}
	return collect(b.Bids), collect(b.Asks)
}
