package book

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"matchcore/internal/domain"
)

// levels is the btree.BTreeG-backed sorted map of price -> PriceLevel,
// giving O(log n) best-price access and O(log n) level lookup by
// price — the "sorted map" alternative spec.md §9 blesses in place of
// a heap with lazy deletion (see DESIGN.md for the tradeoff). Empty
// levels are pruned lazily on read, same as the heap design would
// clean stale heap entries.
type levels = btree.BTreeG[*PriceLevel]

// OrderBookSide is one side (bid or ask) of the book.
type OrderBookSide struct {
	isBid bool
	tree  *levels
}

func newSide(isBid bool) *OrderBookSide {
	var less func(a, b *PriceLevel) bool
	if isBid {
		// Sorted greatest price first: best bid is the maximum.
		less = func(a, b *PriceLevel) bool { return a.Price.GreaterThan(b.Price) }
	} else {
		// Sorted least price first: best ask is the minimum.
		less = func(a, b *PriceLevel) bool { return a.Price.LessThan(b.Price) }
	}
	return &OrderBookSide{isBid: isBid, tree: btree.NewBTreeG(less)}
}

// add inserts the order at its price level, creating the level on
// first touch.
func (s *OrderBookSide) add(o *domain.Order) {
	probe := &PriceLevel{Price: o.Price}
	lvl, ok := s.tree.GetMut(probe)
	if !ok {
		lvl = newPriceLevel(o.Price)
		s.tree.Set(lvl)
	}
	lvl.push(o)
}

// remove drops a specific resting order from its price level, dropping
// the level itself if it becomes empty. Returns true if found.
func (s *OrderBookSide) remove(price decimal.Decimal, orderID string) bool {
	probe := &PriceLevel{Price: price}
	lvl, ok := s.tree.GetMut(probe)
	if !ok {
		return false
	}
	removed := lvl.removeByID(orderID)
	if removed && lvl.empty() {
		s.tree.Delete(probe)
	}
	return removed
}

// pruneAndPeekBest pops stale (empty) levels off the head of the tree
// until the head designates a non-empty level, then returns it.
func (s *OrderBookSide) pruneAndPeekBest() (*PriceLevel, bool) {
	for {
		lvl, ok := s.tree.MinMut()
		if !ok {
			return nil, false
		}
		if !lvl.empty() {
			return lvl, true
		}
		s.tree.Delete(lvl)
	}
}

// dropIfEmpty removes the level from the tree if it has become empty.
// Called by the matching engine after it mutates a level's orders
// in-place while walking a sweep.
func (s *OrderBookSide) dropIfEmpty(lvl *PriceLevel) {
	if lvl.empty() {
		s.tree.Delete(lvl)
	}
}

// best returns (price, aggregate quantity) of the best non-empty
// level, or false if the side is empty.
func (s *OrderBookSide) best() (decimal.Decimal, decimal.Decimal, bool) {
	lvl, ok := s.pruneAndPeekBest()
	if !ok {
		return decimal.Zero, decimal.Zero, false
	}
	return lvl.Price, lvl.TotalQuantity, true
}

// depth returns up to n non-empty levels in the side's natural
// priority order (descending for bids, ascending for asks).
func (s *OrderBookSide) depth(n int) []DepthEntry {
	out := make([]DepthEntry, 0, n)
	s.tree.Scan(func(lvl *PriceLevel) bool {
		if lvl.empty() {
			return true
		}
		out = append(out, DepthEntry{Price: lvl.Price, Quantity: lvl.TotalQuantity})
		return len(out) < n
	})
	return out
}

// ScanBestFirst walks non-empty levels in best-first priority order
// (descending for bids, ascending for asks), stopping early if fn
// returns false. Used by the matching engine's fill-or-kill
// attainability check, which must inspect liquidity without mutating
// anything.
func (s *OrderBookSide) ScanBestFirst(fn func(lvl *PriceLevel) bool) {
	s.tree.Scan(func(lvl *PriceLevel) bool {
		if lvl.empty() {
			return true
		}
		return fn(lvl)
	})
}

// DepthEntry is one level of displayed liquidity.
type DepthEntry struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}
