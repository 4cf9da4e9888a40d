// Package domain holds the matching core's wire- and book-independent
// data model: orders, trades, and the enums that drive the state
// machine in internal/matching.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// OrderType enumerates the five operations this core implements. Stop
// orders exist in the upstream wire protocol; any type byte outside
// this enum decodes without error and is rejected by Validate with
// ErrUnsupportedType before it reaches the book.
type OrderType int

const (
	Limit OrderType = iota
	Market
	IOC
	FOK
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case Market:
		return "market"
	case IOC:
		return "ioc"
	case FOK:
		return "fok"
	default:
		return "unknown"
	}
}

type Status int

const (
	Pending Status = iota
	PartiallyFilled
	Filled
	Cancelled
	Rejected
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Order is a client instruction to trade. Price/Quantity/FilledQuantity
// are exact decimals; float64 is never used for money.
type Order struct {
	OrderID         string
	Symbol          string
	Side            Side
	OrderType       OrderType
	Price           decimal.Decimal // zero value for MARKET
	HasPrice        bool            // required for LIMIT, optional for IOC/FOK, forbidden for MARKET
	Quantity        decimal.Decimal
	FilledQuantity  decimal.Decimal
	Status          Status
	Timestamp       time.Time
	UserID          string
	RejectionReason string
}

// NewOrderID mints a fresh order id, matching the original's
// str(uuid.uuid4()) default factory.
func NewOrderID() string {
	return uuid.New().String()
}

// RemainingQuantity is quantity - filled, never negative.
func (o *Order) RemainingQuantity() decimal.Decimal {
	rem := o.Quantity.Sub(o.FilledQuantity)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// IsMarketable reports whether the order must execute immediately with
// no resting, mirroring the original's is_marketable property.
func (o *Order) IsMarketable() bool {
	return o.OrderType == Market || o.OrderType == IOC || o.OrderType == FOK
}

// IsResting reports whether this order is eligible to sit on the book:
// a LIMIT order with positive remainder and a non-terminal status.
func (o *Order) IsResting() bool {
	return o.OrderType == Limit &&
		o.RemainingQuantity().IsPositive() &&
		(o.Status == Pending || o.Status == PartiallyFilled)
}

// ApplyFill records a fill, advancing FilledQuantity and Status. It
// never decreases FilledQuantity and never lets it exceed Quantity.
func (o *Order) ApplyFill(qty decimal.Decimal) {
	o.FilledQuantity = o.FilledQuantity.Add(qty)
	if o.FilledQuantity.GreaterThanOrEqual(o.Quantity) {
		o.FilledQuantity = o.Quantity
		o.Status = Filled
	} else if o.FilledQuantity.IsPositive() {
		o.Status = PartiallyFilled
	}
}

func (o Order) String() string {
	price := "market"
	if o.HasPrice {
		price = o.Price.String()
	}
	return fmt.Sprintf(
		"Order{id=%s symbol=%s side=%s type=%s price=%s qty=%s filled=%s status=%s user=%s}",
		o.OrderID, o.Symbol, o.Side, o.OrderType, price,
		o.Quantity.String(), o.FilledQuantity.String(), o.Status, o.UserID,
	)
}
