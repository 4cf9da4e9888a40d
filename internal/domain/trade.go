package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a confirmed execution between a maker (resting order) and a
// taker (aggressing order). Price is always the maker's price.
type Trade struct {
	TradeID      string
	Symbol       string
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	AggressorSide Side
	MakerOrderID string
	TakerOrderID string
	Timestamp    time.Time
	MakerFee     decimal.Decimal
	TakerFee     decimal.Decimal
}

// NewTradeID mints a fresh trade id.
func NewTradeID() string {
	return NewOrderID()
}

// ComputeFees returns maker/taker fees at full precision:
// fee = price * quantity * rate.
func ComputeFees(price, quantity, makerRate, takerRate decimal.Decimal) (makerFee, takerFee decimal.Decimal) {
	notional := price.Mul(quantity)
	return notional.Mul(makerRate), notional.Mul(takerRate)
}

func (t Trade) String() string {
	return fmt.Sprintf(
		"Trade{id=%s symbol=%s price=%s qty=%s aggressor=%s maker=%s taker=%s makerFee=%s takerFee=%s}",
		t.TradeID, t.Symbol, t.Price, t.Quantity, t.AggressorSide,
		t.MakerOrderID, t.TakerOrderID, t.MakerFee, t.TakerFee,
	)
}
