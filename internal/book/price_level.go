// Package book implements the per-symbol order book: price levels, the
// two sides (bid/ask), and the order index, under strict price-time
// priority. It has no knowledge of matching, fees, or persistence —
// those live in internal/matching.
package book

import (
	"github.com/shopspring/decimal"

	"matchcore/internal/domain"
)

// PriceLevel is the FIFO queue of resting orders at one exact price.
// Price is immutable once the level is created.
type PriceLevel struct {
	Price         decimal.Decimal
	Orders        []*domain.Order
	TotalQuantity decimal.Decimal
}

func newPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{Price: price, TotalQuantity: decimal.Zero}
}

// push appends to the FIFO tail and grows the aggregate.
func (l *PriceLevel) push(o *domain.Order) {
	l.Orders = append(l.Orders, o)
	l.TotalQuantity = l.TotalQuantity.Add(o.RemainingQuantity())
}

// removeByID removes a specific order from the level's FIFO, fixing up
// the aggregate. Returns false if not found.
func (l *PriceLevel) removeByID(orderID string) bool {
	for i, o := range l.Orders {
		if o.OrderID == orderID {
			l.TotalQuantity = l.TotalQuantity.Sub(o.RemainingQuantity())
			if l.TotalQuantity.IsNegative() {
				l.TotalQuantity = decimal.Zero
			}
			l.Orders = append(l.Orders[:i], l.Orders[i+1:]...)
			return true
		}
	}
	return false
}

// dropFront removes the first n orders from the FIFO (consumed during
// matching) without touching the aggregate — callers that fully
// consume orders already decremented RemainingQuantity as they matched
// and call reconcile() after.
func (l *PriceLevel) dropFront(n int) {
	if n <= 0 {
		return
	}
	l.Orders = l.Orders[n:]
}

// reconcile is the invariant-repair path spec.md §4.1 calls for: if
// TotalQuantity has drifted out of sync with the sum of resting
// remainders (it should not, under correct bookkeeping, but arithmetic
// bugs or future code paths could let it), recompute it from the
// orders directly.
func (l *PriceLevel) reconcile() {
	sum := decimal.Zero
	for _, o := range l.Orders {
		sum = sum.Add(o.RemainingQuantity())
	}
	l.TotalQuantity = sum
}

// empty reports whether the level should be dropped from the book: no
// displayed quantity and (defensively) no order with positive
// remainder. Mirrors data_structures.py's PriceLevel.empty().
func (l *PriceLevel) empty() bool {
	if !l.TotalQuantity.IsPositive() {
		return true
	}
	l.reconcile()
	return !l.TotalQuantity.IsPositive()
}
