package orderbook

import (
	"fmt"

	"github.com/gammazero/deque"
)

// priceLevel is the FIFO of resting orders at one price.
type priceLevel struct {
	price  int64
	orders deque.Deque[*Order]
	total  uint64
}

func newPriceLevel(price int64) *priceLevel {
	return &priceLevel{price: price}
}

func (l *priceLevel) Len() int {
	return l.orders.Len()
}

func (l *priceLevel) pushBack(o *Order) {
	l.orders.PushBack(o)
	l.total += o.Qty
}

func (l *priceLevel) front() *Order {
	return l.orders.Front()
}

// fill takes qty from the front order, dropping it once exhausted.
func (l *priceLevel) fill(qty uint64) *Order {
	o := l.orders.Front()
	o.Qty -= qty
	l.total -= qty
	if o.Qty == 0 {
		l.orders.PopFront()
	}
	return o
}

func (l *priceLevel) remove(id uint64) (*Order, bool) {
	i := l.orders.Index(func(o *Order) bool { return o.ID == id })
	if i < 0 {
		return nil, false
	}
	o := l.orders.Remove(i)
	l.total -= o.Qty
	return o, true
}

func (l *priceLevel) each(fn func(o *Order)) {
	for i := 0; i < l.orders.Len(); i++ {
		fn(l.orders.At(i))
	}
}

func (l *priceLevel) String() string {
	return fmt.Sprintf("priceLevel{price=%d, orders=%d, total=%d}", l.price, l.Len(), l.total)
}
