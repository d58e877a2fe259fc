// file: pkg/orderbook/orderbook.go

package orderbook

import (
	"fmt"
	"math"
	"time"
)

// DepthLevel aggregates the resting orders at one price.
type DepthLevel struct {
	Price  int64  `json:"price"`
	Qty    uint64 `json:"qty"`
	Orders int    `json:"orders"`
}

// Depth lists each side best to worst.
type Depth struct {
	Bids []DepthLevel `json:"bids"`
	Asks []DepthLevel `json:"asks"`
}

// OrderBook is a single-instrument limit order book with price-time priority.
//
// OrderBook is not safe for concurrent use. Every mutation and read must go
// through one goroutine; see pkg/engine.
type OrderBook struct {
	bids *bookSide
	asks *bookSide

	orders map[uint64]*Order // resting orders by id
	seq    uint64
	now    func() time.Time
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids:   newBookSide(BUY),
		asks:   newBookSide(SELL),
		orders: make(map[uint64]*Order),
		now:    time.Now,
	}
}

// SetClock replaces the clock used for arrival and trade timestamps.
func (ob *OrderBook) SetClock(now func() time.Time) {
	ob.now = now
}

func (ob *OrderBook) sides(side Side) (own, counter *bookSide) {
	if side == BUY {
		return ob.bids, ob.asks
	}
	return ob.asks, ob.bids
}

// AddOrder matches order against the opposite side and rests or discards any
// remainder according to its type and time in force. It returns the
// executions in the order they happened.
//
// Invalid orders fail with ErrInvalidOrder, as does a resting order whose
// quantity would overflow its level's total. FOK orders that cannot be
// filled in full fail with ErrRejectedUnfillable; in both cases the book is
// untouched.
func (ob *OrderBook) AddOrder(order Order) ([]MatchResult, error) {
	if err := order.validate(); err != nil {
		return nil, err
	}
	if _, ok := ob.orders[order.ID]; ok {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateOrder, order.ID)
	}

	o := &order
	own, counter := ob.sides(o.Side)

	// An existing own level at o.Price means o cannot cross, so all of it
	// would rest there.
	if o.rests() && !own.fits(o.Price, o.Qty) {
		return nil, fmt.Errorf("%w: order %d qty %d overflows level %d", ErrInvalidOrder, o.ID, o.Qty, o.Price)
	}

	if o.TimeInForce == FOK && !canFill(o, counter) {
		return nil, fmt.Errorf("%w: order %d qty %d", ErrRejectedUnfillable, o.ID, o.Qty)
	}

	ob.seq++
	o.seq = ob.seq
	o.arrivedAt = ob.now()

	results := ob.matchOrder(o, counter)

	if o.Qty > 0 && o.rests() {
		own.add(o)
		ob.orders[o.ID] = o
	}

	return results, nil
}

func (ob *OrderBook) matchOrder(o *Order, counter *bookSide) []MatchResult {
	var results []MatchResult

	// the best level is looked up again on every pass: the previous pass may
	// have removed it.
	for o.Qty > 0 {
		level := counter.best()
		if level == nil {
			break
		}
		if o.Type == LIMIT && !counter.acceptable(level.price, o.Price) {
			break
		}

		resting := level.front()
		matchQty := min(o.Qty, resting.Qty)
		o.Qty -= matchQty
		level.fill(matchQty)

		results = append(results, MatchResult{
			Price:           level.price,
			Qty:             matchQty,
			RestingOrderID:  resting.ID,
			IncomingOrderID: o.ID,
			Side:            o.Side,
			Timestamp:       o.arrivedAt,
		})

		if resting.Qty == 0 {
			delete(ob.orders, resting.ID)
		}
		if level.Len() == 0 {
			counter.removeLevel(level.price)
		}
	}

	return results
}

// CancelOrder withdraws a resting order and returns it as it was when
// cancelled.
func (ob *OrderBook) CancelOrder(id uint64) (Order, error) {
	o, ok := ob.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	own, _ := ob.sides(o.Side)
	if !own.remove(o) {
		return Order{}, fmt.Errorf("%w: order %d indexed but missing from level %d", ErrBookInvariant, id, o.Price)
	}
	delete(ob.orders, id)
	return *o, nil
}

// Order returns a copy of the resting order with the given id.
func (ob *OrderBook) Order(id uint64) (Order, bool) {
	o, ok := ob.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Len returns the number of resting orders.
func (ob *OrderBook) Len() int {
	return len(ob.orders)
}

func (ob *OrderBook) BestBid() (int64, bool) {
	return ob.bids.prices.Peek()
}

func (ob *OrderBook) BestAsk() (int64, bool) {
	return ob.asks.prices.Peek()
}

// RestingQty returns the total resting quantity on side.
func (ob *OrderBook) RestingQty(side Side) uint64 {
	own, _ := ob.sides(side)
	return own.total()
}

// Depth returns up to n levels per side; n <= 0 means every level.
func (ob *OrderBook) Depth(n int) Depth {
	return Depth{
		Bids: ob.bids.depth(n),
		Asks: ob.asks.depth(n),
	}
}

// CheckInvariants walks the whole book and reports the first structural
// defect it finds, wrapped in ErrBookInvariant.
func (ob *OrderBook) CheckInvariants() error {
	indexed := 0
	for _, side := range []*bookSide{ob.bids, ob.asks} {
		if len(side.levels) != side.prices.Len() {
			return fmt.Errorf("%w: %s has %d levels but %d heap prices", ErrBookInvariant, side.side, len(side.levels), side.prices.Len())
		}
		for price, level := range side.levels {
			if !side.prices.Contains(price) {
				return fmt.Errorf("%w: %s level %d missing from heap", ErrBookInvariant, side.side, price)
			}
			if level.Len() == 0 {
				return fmt.Errorf("%w: %s level %d is empty", ErrBookInvariant, side.side, price)
			}
			var sum uint64
			var err error
			var lastSeq uint64
			level.each(func(o *Order) {
				switch {
				case err != nil:
				case o.Qty > math.MaxUint64-sum:
					err = fmt.Errorf("%w: %s level %d quantity overflows", ErrBookInvariant, side.side, price)
				case o.Qty == 0:
					err = fmt.Errorf("%w: order %d rests with zero quantity", ErrBookInvariant, o.ID)
				case o.Price != price || o.Side != side.side:
					err = fmt.Errorf("%w: order %d filed under %s %d", ErrBookInvariant, o.ID, side.side, price)
				case o.seq <= lastSeq:
					err = fmt.Errorf("%w: order %d out of arrival order at %d", ErrBookInvariant, o.ID, price)
				case ob.orders[o.ID] != o:
					err = fmt.Errorf("%w: order %d not indexed", ErrBookInvariant, o.ID)
				}
				sum += o.Qty
				lastSeq = o.seq
			})
			if err != nil {
				return err
			}
			if sum != level.total {
				return fmt.Errorf("%w: %s level %d total %d, orders sum %d", ErrBookInvariant, side.side, price, level.total, sum)
			}
			indexed += level.Len()
		}
	}
	if indexed != len(ob.orders) {
		return fmt.Errorf("%w: %d orders in levels, %d indexed", ErrBookInvariant, indexed, len(ob.orders))
	}

	bid, okBid := ob.BestBid()
	ask, okAsk := ob.BestAsk()
	if okBid && okAsk && bid >= ask {
		return fmt.Errorf("%w: crossed book bid %d >= ask %d", ErrBookInvariant, bid, ask)
	}
	return nil
}
