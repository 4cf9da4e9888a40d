// Package broadcast fans out confirmed trades and BBO/depth market
// data to subscribers off the matching engine's critical path: trades
// are batched on a short fixed window, market data is coalesced behind
// a dirty flag and a slower throttle so a burst of fills collapses
// into one book update instead of one per fill.
package broadcast

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"matchcore/internal/book"
	"matchcore/internal/domain"
)

// tradeBatchWindow is how often pending trades are flushed to
// subscribers, matching the original's 5ms _broadcast_interval.
const tradeBatchWindow = 5 * time.Millisecond

// marketDataThrottle bounds how often a dirty BBO triggers a market
// data broadcast, matching the original's 50ms _md_throttle.
const marketDataThrottle = 50 * time.Millisecond

// tradeQueueCapacity bounds the pending-trade buffer; PublishTrade
// drops on overflow rather than blocking the matching engine.
const tradeQueueCapacity = 4096

// TradePayload is the wire form of one confirmed trade.
type TradePayload struct {
	Type          string `json:"type"`
	TradeID       string `json:"trade_id"`
	Symbol        string `json:"symbol"`
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
	AggressorSide string `json:"aggressor_side"`
	MakerOrderID  string `json:"maker_order_id"`
	TakerOrderID  string `json:"taker_order_id"`
	Timestamp     string `json:"timestamp"`
}

// MarketDataPayload is the wire form of one BBO + depth snapshot.
type MarketDataPayload struct {
	Type      string    `json:"type"`
	Timestamp string    `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	BBO       bboWire   `json:"bbo"`
	Depth     depthWire `json:"depth"`
}

type priceQtyWire struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

type bboWire struct {
	BestBid *priceQtyWire `json:"best_bid"`
	BestAsk *priceQtyWire `json:"best_ask"`
	Spread  *string       `json:"spread,omitempty"`
}

type depthWire struct {
	Bids []priceQtyWire `json:"bids"`
	Asks []priceQtyWire `json:"asks"`
}

// TradeSubscriber receives one trade payload at a time, in batch
// dispatch order.
type TradeSubscriber func(TradePayload)

// MarketDataSubscriber receives one market data payload at a time.
type MarketDataSubscriber func(MarketDataPayload)

// BookView is the read surface the broadcaster needs from the
// matching engine: lock-protected BBO/depth reads only, never a raw
// book reference.
type BookView interface {
	GetBBO() book.BBO
	GetDepth(n int) book.Depth
}

// Broadcaster batches trade fan-out and coalesces market-data fan-out
// for one symbol's subscribers.
type Broadcaster struct {
	symbol string
	book   BookView
	log    zerolog.Logger

	depthLevels int

	mu                 sync.Mutex
	tradeSubs          []TradeSubscriber
	marketDataSubs     []MarketDataSubscriber
	pendingTrades      []TradePayload
	bboDirty           bool
	lastMarketDataSent time.Time

	trades chan domain.Trade
}

func New(symbol string, bookView BookView, depthLevels int, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		symbol:      symbol,
		book:        bookView,
		log:         log,
		depthLevels: depthLevels,
		trades:      make(chan domain.Trade, tradeQueueCapacity),
	}
}

// Subscribe registers a trade subscriber, returning an unsubscribe
// function.
func (b *Broadcaster) Subscribe(fn TradeSubscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tradeSubs = append(b.tradeSubs, fn)
	idx := len(b.tradeSubs) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.tradeSubs[idx] = nil
	}
}

// SubscribeMarketData registers a market-data subscriber, returning an
// unsubscribe function.
func (b *Broadcaster) SubscribeMarketData(fn MarketDataSubscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.marketDataSubs = append(b.marketDataSubs, fn)
	idx := len(b.marketDataSubs) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.marketDataSubs[idx] = nil
	}
}

// PublishTrade implements matching.BroadcastSink: a non-blocking,
// bounded enqueue the matcher calls while still holding the book lock.
func (b *Broadcaster) PublishTrade(t domain.Trade) bool {
	select {
	case b.trades <- t:
		return true
	default:
		return false
	}
}

// MarkBookDirty implements matching.BroadcastSink: flags that the book
// changed so the next throttled tick emits fresh market data.
func (b *Broadcaster) MarkBookDirty() {
	b.mu.Lock()
	b.bboDirty = true
	b.mu.Unlock()
}

// Run drives both fan-out loops until the tomb dies. Trades drain on
// tradeBatchWindow; market data is considered on the same tick but
// only actually sent once per marketDataThrottle and only if dirty.
func (b *Broadcaster) Run(t *tomb.Tomb) error {
	ticker := time.NewTicker(tradeBatchWindow)
	defer ticker.Stop()

	for {
		select {
		case <-t.Dying():
			b.flushTrades()
			return nil
		case <-ticker.C:
			b.flushTrades()
			b.maybeSendMarketData()
		}
	}
}

func (b *Broadcaster) flushTrades() {
	var batch []domain.Trade
drain:
	for {
		select {
		case tr := <-b.trades:
			batch = append(batch, tr)
		default:
			break drain
		}
	}
	if len(batch) == 0 {
		return
	}

	b.mu.Lock()
	subs := append([]TradeSubscriber(nil), b.tradeSubs...)
	b.mu.Unlock()

	for _, tr := range batch {
		payload := toTradePayload(tr)
		for _, sub := range subs {
			if sub == nil {
				continue
			}
			b.dispatchTrade(sub, payload)
		}
	}
}

func (b *Broadcaster) dispatchTrade(sub TradeSubscriber, payload TradePayload) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Str("symbol", b.symbol).Any("panic", r).Msg("trade subscriber panicked")
		}
	}()
	sub(payload)
}

func (b *Broadcaster) maybeSendMarketData() {
	b.mu.Lock()
	now := time.Now()
	if now.Sub(b.lastMarketDataSent) < marketDataThrottle || !b.bboDirty {
		b.mu.Unlock()
		return
	}
	b.lastMarketDataSent = now
	b.bboDirty = false
	subs := append([]MarketDataSubscriber(nil), b.marketDataSubs...)
	b.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	bbo := b.book.GetBBO()
	depth := b.book.GetDepth(b.depthLevels)
	payload := toMarketDataPayload(b.symbol, bbo, depth)

	for _, sub := range subs {
		if sub == nil {
			continue
		}
		b.dispatchMarketData(sub, payload)
	}
}

func (b *Broadcaster) dispatchMarketData(sub MarketDataSubscriber, payload MarketDataPayload) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Str("symbol", b.symbol).Any("panic", r).Msg("market data subscriber panicked")
		}
	}()
	sub(payload)
}

func toTradePayload(t domain.Trade) TradePayload {
	return TradePayload{
		Type:          "trade",
		TradeID:       t.TradeID,
		Symbol:        t.Symbol,
		Price:         t.Price.String(),
		Quantity:      t.Quantity.String(),
		AggressorSide: t.AggressorSide.String(),
		MakerOrderID:  t.MakerOrderID,
		TakerOrderID:  t.TakerOrderID,
		Timestamp:     t.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func toMarketDataPayload(symbol string, bbo book.BBO, depth book.Depth) MarketDataPayload {
	wire := bboWire{}
	if bbo.BestBid != nil {
		wire.BestBid = &priceQtyWire{Price: bbo.BestBid.Price.String(), Quantity: bbo.BestBid.Quantity.String()}
	}
	if bbo.BestAsk != nil {
		wire.BestAsk = &priceQtyWire{Price: bbo.BestAsk.Price.String(), Quantity: bbo.BestAsk.Quantity.String()}
	}
	if bbo.Spread != nil {
		s := bbo.Spread.String()
		wire.Spread = &s
	}

	toWire := func(entries []book.PriceQty) []priceQtyWire {
		out := make([]priceQtyWire, len(entries))
		for i, e := range entries {
			out[i] = priceQtyWire{Price: e.Price.String(), Quantity: e.Quantity.String()}
		}
		return out
	}

	return MarketDataPayload{
		Type:      "market_data",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Symbol:    symbol,
		BBO:       wire,
		Depth: depthWire{
			Bids: toWire(depth.Bids),
			Asks: toWire(depth.Asks),
		},
	}
}
