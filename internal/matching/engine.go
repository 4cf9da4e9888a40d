// Package matching implements the order-matching state machine:
// validate -> match -> settle -> emit, for LIMIT, MARKET, IOC, FOK, and
// CANCEL, under strict price-time priority. It owns the single
// exclusive per-symbol lock that bounds book mutation; everything
// outside that lock (persistence batches, broadcast callbacks) is the
// concern of internal/persistence and internal/broadcast.
package matching

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"matchcore/internal/book"
	"matchcore/internal/domain"
)

// Engine is one symbol's matching engine instance.
type Engine struct {
	symbol   string
	makerFee decimal.Decimal
	takerFee decimal.Decimal

	// mu bounds book mutation. Reads of derived quantities (BBO, depth)
	// take the read lock only long enough to read; they never block on
	// I/O or callbacks, and never run while a mutation is in flight.
	mu   sync.RWMutex
	book *book.OrderBook

	trades *tradeRing

	persistence PersistenceSink
	broadcast   BroadcastSink
	latency     LatencyRecorder

	log zerolog.Logger

	fatal bool
}

// Option configures an Engine at construction time.
type Option func(*Engine)

func WithPersistence(p PersistenceSink) Option { return func(e *Engine) { e.persistence = p } }
func WithBroadcast(b BroadcastSink) Option      { return func(e *Engine) { e.broadcast = b } }
func WithLatencyRecorder(l LatencyRecorder) Option {
	return func(e *Engine) { e.latency = l }
}
func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.log = l } }

// SetPersistence and SetBroadcast attach sinks after construction, for
// the common wiring order where the sink itself needs a reference to
// the engine (e.g. a broadcaster reading GetBBO/GetDepth) and so can
// only be built once the engine already exists. Callers must set these
// before the engine starts taking submissions.
func (e *Engine) SetPersistence(p PersistenceSink) { e.persistence = p }
func (e *Engine) SetBroadcast(b BroadcastSink)     { e.broadcast = b }

// New constructs an Engine for one symbol with the given maker/taker
// fee rates, matching the original's
// MatchingEngine(symbol, maker_fee, taker_fee).
func New(symbol string, makerFee, takerFee decimal.Decimal, opts ...Option) *Engine {
	e := &Engine{
		symbol:      symbol,
		makerFee:    makerFee,
		takerFee:    takerFee,
		book:        book.New(symbol),
		trades:      newTradeRing(),
		persistence: noopPersistenceSink{},
		broadcast:   noopBroadcastSink{},
		latency:     noopLatencyRecorder{},
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Book exposes the underlying order book for internal/recovery, which
// must insert resting orders directly without triggering matching.
func (e *Engine) Book() *book.OrderBook { return e.book }

// Lock/Unlock let internal/recovery perform its snapshot-load + replay
// under the same exclusion discipline as ordinary submission, without
// going through Submit's validation/matching path.
func (e *Engine) Lock()   { e.mu.Lock() }
func (e *Engine) Unlock() { e.mu.Unlock() }

// MarkFatal refuses all future submissions, per spec.md §7's fatal
// error policy (persistence handle unrecoverable, invariant violation
// detected). There is no recovery from fatal within one process
// lifetime.
func (e *Engine) MarkFatal() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fatal = true
}

// Submit validates, matches, settles, and emits for one incoming
// order. It returns after book mutation completes.
func (e *Engine) Submit(o domain.Order) (accepted bool, message string, trades []domain.Trade) {
	start := time.Now()
	defer func() {
		e.latency.RecordOrderLatency(float64(time.Since(start).Microseconds()) / 1000.0)
		e.latency.RecordOrder()
	}()

	if o.OrderID == "" {
		o.OrderID = domain.NewOrderID()
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}
	o.Status = domain.Pending

	if err := domain.Validate(&o); err != nil {
		o.Status = domain.Rejected
		o.RejectionReason = err.Error()
		e.log.Warn().Str("symbol", e.symbol).Err(err).Msg("order rejected")
		return false, err.Error(), nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.fatal {
		return false, "engine is in a fatal state and refuses new submissions", nil
	}

	taker := o
	var produced []domain.Trade

	switch taker.OrderType {
	case domain.Market:
		produced = e.executeMarket(&taker)
	case domain.Limit:
		produced = e.executeLimit(&taker)
	case domain.IOC:
		produced = e.executeIOC(&taker)
	case domain.FOK:
		produced = e.executeFOK(&taker)
	}

	// Enqueue durable writes and broadcast candidates while still
	// holding the lock, so they are queued consistently with the book
	// state that produced them (spec.md §5). Enqueue is non-blocking
	// and bounded; overflow is a logged drop, never a block.
	if ok := e.persistence.EnqueueOrder(taker); !ok {
		e.log.Warn().Str("symbol", e.symbol).Str("order_id", taker.OrderID).Msg("persistence queue full, order write dropped")
	}
	for _, t := range produced {
		e.trades.push(t)
		if ok := e.persistence.EnqueueTrade(t); !ok {
			e.log.Warn().Str("symbol", e.symbol).Str("trade_id", t.TradeID).Msg("persistence queue full, trade write dropped")
		}
		if ok := e.broadcast.PublishTrade(t); !ok {
			e.log.Warn().Str("symbol", e.symbol).Str("trade_id", t.TradeID).Msg("broadcast queue full, trade dropped")
		}
		e.latency.RecordTrade()
	}
	rested := taker.OrderType == domain.Limit && taker.RemainingQuantity().IsPositive()
	if len(produced) > 0 || rested {
		e.broadcast.MarkBookDirty()
	}

	accepted := taker.Status != domain.Rejected && taker.Status != domain.Cancelled
	return accepted, statusMessage(taker.Status), produced
}

// Cancel removes a resting order from the book.
func (e *Engine) Cancel(orderID string) (cancelled bool, order *domain.Order) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.fatal {
		return false, nil
	}

	o, ok := e.book.CancelOrder(orderID)
	if !ok {
		return false, nil
	}
	cp := *o
	if p := e.persistence.EnqueueOrder(cp); !p {
		e.log.Warn().Str("symbol", e.symbol).Str("order_id", orderID).Msg("persistence queue full, cancel write dropped")
	}
	e.broadcast.MarkBookDirty()
	return true, o
}

// GetBBO and GetDepth take only the read lock: they never block on I/O
// and never compete with each other, only briefly with a mutation in
// flight.
func (e *Engine) GetBBO() book.BBO {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.GetBBO()
}

func (e *Engine) GetDepth(n int) book.Depth {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.GetDepth(n)
}

// RecentTrades returns up to n of the most recently produced trades
// from the bounded in-memory ring.
func (e *Engine) RecentTrades(n int) []domain.Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.trades.recent(n)
}

// LockedSnapshot implements persistence.BookSnapshotter: a consistent,
// point-in-time copy of every resting order, safe to read after the
// lock is released because each Order is a fresh copy rather than a
// live pointer into the book.
func (e *Engine) LockedSnapshot() (bids, asks []*domain.Order) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rawBids, rawAsks := e.book.Snapshot()
	bids = make([]*domain.Order, len(rawBids))
	for i, o := range rawBids {
		cp := *o
		bids[i] = &cp
	}
	asks = make([]*domain.Order, len(rawAsks))
	for i, o := range rawAsks {
		cp := *o
		asks[i] = &cp
	}
	return bids, asks
}

func statusMessage(s domain.Status) string {
	return fmt.Sprintf("order %s", s)
}
