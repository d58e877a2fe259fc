package orderbook

import (
	"container/heap"
	"math"
	"slices"
)

// bookSide holds the price levels of one side, best price first.
type bookSide struct {
	side   Side
	levels map[int64]*priceLevel
	prices *PriceHeap
}

func newBookSide(side Side) *bookSide {
	less := func(i, j int64) bool { return i < j } // asks: min-heap
	if side == BUY {
		less = func(i, j int64) bool { return i > j } // bids: max-heap
	}
	return &bookSide{
		side:   side,
		levels: make(map[int64]*priceLevel),
		prices: NewPriceHeap(less),
	}
}

func (s *bookSide) best() *priceLevel {
	price, ok := s.prices.Peek()
	if !ok {
		return nil
	}
	return s.levels[price]
}

// better reports whether price a ranks ahead of price b on this side.
func (s *bookSide) better(a, b int64) bool {
	return s.prices.less(a, b)
}

// acceptable reports whether a resting price on this side satisfies the limit
// of an incoming order from the opposite side.
func (s *bookSide) acceptable(price, limit int64) bool {
	if s.side == SELL {
		return price <= limit // incoming buy
	}
	return price >= limit // incoming sell
}

func (s *bookSide) add(o *Order) {
	level, ok := s.levels[o.Price]
	if !ok {
		level = newPriceLevel(o.Price)
		s.levels[o.Price] = level
		heap.Push(s.prices, o.Price)
	}
	level.pushBack(o)
}

// fits reports whether qty can rest at price without overflowing the level
// total.
func (s *bookSide) fits(price int64, qty uint64) bool {
	level, ok := s.levels[price]
	return !ok || qty <= math.MaxUint64-level.total
}

func (s *bookSide) removeLevel(price int64) {
	delete(s.levels, price)
	s.prices.Remove(price)
}

func (s *bookSide) remove(o *Order) bool {
	level, ok := s.levels[o.Price]
	if !ok {
		return false
	}
	if _, ok := level.remove(o.ID); !ok {
		return false
	}
	if level.Len() == 0 {
		s.removeLevel(o.Price)
	}
	return true
}

// sorted returns the indexed prices best first.
func (s *bookSide) sorted() []int64 {
	prices := s.prices.Prices()
	slices.SortFunc(prices, func(a, b int64) int {
		switch {
		case s.better(a, b):
			return -1
		case s.better(b, a):
			return 1
		}
		return 0
	})
	return prices
}

func (s *bookSide) depth(n int) []DepthLevel {
	prices := s.sorted()
	if n > 0 && len(prices) > n {
		prices = prices[:n]
	}
	out := make([]DepthLevel, 0, len(prices))
	for _, price := range prices {
		level := s.levels[price]
		out = append(out, DepthLevel{Price: price, Qty: level.total, Orders: level.Len()})
	}
	return out
}

// total saturates at math.MaxUint64.
func (s *bookSide) total() uint64 {
	var total uint64
	for _, level := range s.levels {
		if level.total > math.MaxUint64-total {
			return math.MaxUint64
		}
		total += level.total
	}
	return total
}
