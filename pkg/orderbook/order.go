package orderbook

import (
	"fmt"
	"math"
	"time"
)

type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

func (s Side) Valid() bool {
	return s == BUY || s == SELL
}

// Opposite returns the side an order of this side matches against.
func (s Side) Opposite() Side {
	if s == BUY {
		return SELL
	}
	return BUY
}

type OrderType string

const (
	LIMIT  OrderType = "LIMIT"
	MARKET OrderType = "MARKET"
)

func (t OrderType) Valid() bool {
	return t == LIMIT || t == MARKET
}

type TimeInForce string

const (
	GTC TimeInForce = "GTC" // good till cancel
	IOC TimeInForce = "IOC" // immediate or cancel
	FOK TimeInForce = "FOK" // fill or kill
)

func (tif TimeInForce) Valid() bool {
	return tif == GTC || tif == IOC || tif == FOK
}

// Conventional prices callers put on market orders. The book never reads them.
const (
	MarketBuyPrice  int64 = math.MaxInt64
	MarketSellPrice int64 = 0
)

type Order struct {
	ID          uint64
	Price       int64
	Qty         uint64 // remaining quantity
	Side        Side
	Type        OrderType
	TimeInForce TimeInForce

	arrivedAt time.Time
	seq       uint64
}

// ArrivedAt is the time the book accepted the order.
func (o *Order) ArrivedAt() time.Time {
	return o.arrivedAt
}

// Seq is the acceptance sequence number; it only orders orders at one price.
func (o *Order) Seq() uint64 {
	return o.seq
}

func (o *Order) validate() error {
	if o.Qty == 0 {
		return fmt.Errorf("%w: order %d has zero quantity", ErrInvalidOrder, o.ID)
	}
	if !o.Side.Valid() {
		return fmt.Errorf("%w: order %d has unknown side %q", ErrInvalidOrder, o.ID, o.Side)
	}
	if !o.Type.Valid() {
		return fmt.Errorf("%w: order %d has unknown type %q", ErrInvalidOrder, o.ID, o.Type)
	}
	if !o.TimeInForce.Valid() {
		return fmt.Errorf("%w: order %d has unknown time in force %q", ErrInvalidOrder, o.ID, o.TimeInForce)
	}
	if o.Type == LIMIT && o.Price <= 0 {
		return fmt.Errorf("%w: limit order %d has non-positive price %d", ErrInvalidOrder, o.ID, o.Price)
	}
	return nil
}

// rests reports whether an unfilled remainder of o stays in the book.
func (o *Order) rests() bool {
	return o.Type == LIMIT && o.TimeInForce == GTC
}
