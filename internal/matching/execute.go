package matching

import (
	"github.com/shopspring/decimal"

	"matchcore/internal/book"
	"matchcore/internal/domain"
)

// executeMarket sweeps the opposite side unbounded by price. A MARKET
// order is always a taker and never rests. Per the Open Question
// resolution recorded in DESIGN.md, zero available liquidity resolves
// to CANCELLED with an explicit reason rather than the source's
// inconsistent PENDING.
func (e *Engine) executeMarket(taker *domain.Order) []domain.Trade {
	trades := e.sweep(taker, nil)
	if len(trades) == 0 && taker.FilledQuantity.IsZero() {
		taker.Status = domain.Cancelled
		taker.RejectionReason = "no liquidity available"
	}
	return trades
}

// executeLimit matches greedily against qualifying opposite-side
// levels (best to worst, FIFO within level), then rests any positive
// remainder on the order's own side at its limit price.
func (e *Engine) executeLimit(taker *domain.Order) []domain.Trade {
	limit := taker.Price
	trades := e.sweep(taker, &limit)

	if taker.RemainingQuantity().IsPositive() {
		resting := *taker
		e.book.AddOrder(&resting, false)
		*taker = resting
	}
	return trades
}

// executeIOC behaves as LIMIT if a price was supplied, MARKET
// otherwise, except the remainder — if any — is never rested.
func (e *Engine) executeIOC(taker *domain.Order) []domain.Trade {
	var trades []domain.Trade
	if taker.HasPrice {
		limit := taker.Price
		trades = e.sweep(taker, &limit)
	} else {
		trades = e.sweep(taker, nil)
	}
	if taker.FilledQuantity.IsZero() {
		taker.Status = domain.Cancelled
	}
	return trades
}

// executeFOK pre-checks, under the lock, that the full quantity is
// attainable at prices no worse than the limit (if priced) or at any
// available level (if unpriced), summing total_quantity across
// qualifying levels best-first. If attainable it executes exactly like
// IOC; if not, it cancels with zero trades and zero book mutation. The
// lock is held continuously from pre-check through execution.
func (e *Engine) executeFOK(taker *domain.Order) []domain.Trade {
	var limit *decimal.Decimal
	if taker.HasPrice {
		l := taker.Price
		limit = &l
	}

	if !e.attainable(taker.Side, taker.Quantity, limit) {
		taker.Status = domain.Cancelled
		taker.RejectionReason = "fill-or-kill: insufficient liquidity at acceptable prices"
		return nil
	}
	return e.executeIOC(taker)
}

// attainable sums total_quantity across qualifying opposite-side
// levels in best-first order until it meets or exceeds quantity,
// without mutating anything.
func (e *Engine) attainable(takerSide domain.Side, quantity decimal.Decimal, limit *decimal.Decimal) bool {
	side := e.book.OppositeSide(takerSide)
	sum := decimal.Zero
	attainable := false
	side.ScanBestFirst(func(lvl *book.PriceLevel) bool {
		if limit != nil && !priceQualifies(takerSide, lvl.Price, *limit) {
			return false
		}
		sum = sum.Add(lvl.TotalQuantity)
		if sum.GreaterThanOrEqual(quantity) {
			attainable = true
			return false
		}
		return true
	})
	return attainable
}

// priceQualifies reports whether an opposite-side level's price is
// acceptable to a taker of the given side bound by limit: a buyer
// accepts asks at or below its limit, a seller accepts bids at or
// above its limit.
func priceQualifies(takerSide domain.Side, levelPrice, limit decimal.Decimal) bool {
	if takerSide == domain.Buy {
		return levelPrice.LessThanOrEqual(limit)
	}
	return levelPrice.GreaterThanOrEqual(limit)
}

// sweep walks the opposite side from the best level inward, matching
// the taker against resting orders in strict FIFO-within-level order,
// stopping when the taker is filled, the opposite side is empty, or
// (when limit is non-nil) the next level's price no longer qualifies.
// Trades are returned in the order makers were consumed: best price to
// worst, FIFO within each level.
func (e *Engine) sweep(taker *domain.Order, limit *decimal.Decimal) []domain.Trade {
	var trades []domain.Trade
	side := e.book.OppositeSide(taker.Side)

	for taker.RemainingQuantity().IsPositive() {
		lvl, ok := e.book.BestLevel(side)
		if !ok {
			break
		}
		if limit != nil && !priceQualifies(taker.Side, lvl.Price, *limit) {
			break
		}

		consumed := 0
		for consumed < len(lvl.Orders) {
			maker := lvl.Orders[consumed]
			fill := decimal.Min(taker.RemainingQuantity(), maker.RemainingQuantity())

			trades = append(trades, e.buildTrade(taker, maker, fill))
			taker.ApplyFill(fill)
			maker.ApplyFill(fill)

			makerFilled := maker.Status == domain.Filled
			if makerFilled {
				consumed++
			}
			if !makerFilled || !taker.RemainingQuantity().IsPositive() {
				// Either the front maker now has a remainder (FIFO
				// says we cannot move past it, and the taker must be
				// exhausted) or the taker itself is now exhausted
				// (possibly by an exact-quantity match against a
				// maker that also just filled) — either way there is
				// nothing left to do at this level.
				break
			}
		}

		e.book.ConsumeFront(side, lvl, consumed)

		if !taker.RemainingQuantity().IsPositive() {
			break
		}
		// Otherwise the entire level was consumed; loop to the next.
	}
	return trades
}

// buildTrade emits a Trade at the maker's price with fees computed at
// full decimal precision for both legs.
func (e *Engine) buildTrade(taker, maker *domain.Order, quantity decimal.Decimal) domain.Trade {
	makerFee, takerFee := domain.ComputeFees(maker.Price, quantity, e.makerFee, e.takerFee)
	return domain.Trade{
		TradeID:       domain.NewTradeID(),
		Symbol:        e.symbol,
		Price:         maker.Price,
		Quantity:      quantity,
		AggressorSide: taker.Side,
		MakerOrderID:  maker.OrderID,
		TakerOrderID:  taker.OrderID,
		Timestamp:     taker.Timestamp,
		MakerFee:      makerFee,
		TakerFee:      takerFee,
	}
}
