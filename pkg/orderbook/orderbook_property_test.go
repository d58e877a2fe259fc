package orderbook

import (
	"errors"
	"math/rand/v2"
	"reflect"
	"testing"
)

func randomOrder(r *rand.Rand, id uint64) Order {
	o := Order{
		ID:          id,
		Side:        []Side{BUY, SELL}[r.IntN(2)],
		Price:       95 + r.Int64N(11),
		Qty:         1 + r.Uint64N(20),
		Type:        LIMIT,
		TimeInForce: GTC,
	}
	switch n := r.IntN(10); {
	case n == 0:
		o.Type = MARKET
		o.TimeInForce = IOC
	case n == 1:
		o.TimeInForce = IOC
	case n == 2:
		o.TimeInForce = FOK
	}
	return o
}

// Replays a random flow and checks conservation, no-cross, FOK atomicity and
// IOC non-resting after every order.
func TestRandomFlowInvariants(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	ob := NewOrderBook()

	for id := uint64(1); id <= 5_000; id++ {
		o := randomOrder(r, id)
		own, counter := o.Side, o.Side.Opposite()
		ownBefore, counterBefore := ob.RestingQty(own), ob.RestingQty(counter)
		depthBefore := ob.Depth(0)

		results, err := ob.AddOrder(o)
		if err != nil {
			if !errors.Is(err, ErrRejectedUnfillable) || o.TimeInForce != FOK {
				t.Fatalf("order %+v: unexpected error %v", o, err)
			}
			if !reflect.DeepEqual(depthBefore, ob.Depth(0)) {
				t.Fatalf("order %d: rejected FOK mutated the book", id)
			}
			continue
		}
		if err := ob.CheckInvariants(); err != nil {
			t.Fatalf("order %d: %v", id, err)
		}

		matched := totalQty(results)
		if matched > o.Qty {
			t.Fatalf("order %d: matched %d of %d", id, matched, o.Qty)
		}
		if got := ob.RestingQty(counter); got != counterBefore-matched {
			t.Fatalf("order %d: counter side %d, want %d", id, got, counterBefore-matched)
		}

		rested := uint64(0)
		if resting, ok := ob.Order(id); ok {
			rested = resting.Qty
			if !o.rests() {
				t.Fatalf("order %d (%s %s) rests", id, o.Type, o.TimeInForce)
			}
		}
		if rested != 0 && rested != o.Qty-matched {
			t.Fatalf("order %d: rested %d, want %d", id, rested, o.Qty-matched)
		}
		if got := ob.RestingQty(own); got != ownBefore+rested {
			t.Fatalf("order %d: own side %d, want %d", id, got, ownBefore+rested)
		}
		if o.TimeInForce == FOK && matched != o.Qty {
			t.Fatalf("order %d: FOK filled %d of %d", id, matched, o.Qty)
		}
		for _, m := range results {
			if m.IncomingOrderID != id || m.Qty == 0 {
				t.Fatalf("order %d: bad execution %+v", id, m)
			}
			if o.Type == LIMIT && ((o.Side == BUY && m.Price > o.Price) || (o.Side == SELL && m.Price < o.Price)) {
				t.Fatalf("order %d: execution %+v violates limit %d", id, m, o.Price)
			}
		}

		// occasionally pull something out of the book
		if id%17 == 0 {
			victim := r.Uint64N(id) + 1
			if _, err := ob.CancelOrder(victim); err != nil && !errors.Is(err, ErrOrderNotFound) {
				t.Fatalf("cancel %d: %v", victim, err)
			}
			if err := ob.CheckInvariants(); err != nil {
				t.Fatalf("after cancel %d: %v", victim, err)
			}
		}
	}
}
