package orderbook

import (
	"errors"
	"testing"
)

func TestCancelOrder(t *testing.T) {
	ob := NewOrderBook()
	mustAdd(t, ob, limit(1, BUY, 100, 10, GTC))

	cancelled, err := ob.CancelOrder(1)
	if err != nil {
		t.Fatalf("expected cancel success, got %v", err)
	}
	if cancelled.ID != 1 || cancelled.Qty != 10 {
		t.Errorf("unexpected cancelled order %+v", cancelled)
	}
	if _, ok := ob.orders[1]; ok {
		t.Fatalf("order should be removed from orders")
	}
	if _, ok := ob.BestBid(); ok {
		t.Fatalf("emptied level should be removed")
	}
	if err := ob.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
}

func TestCancelUnknownOrder(t *testing.T) {
	ob := NewOrderBook()
	if _, err := ob.CancelOrder(42); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestCancelKeepsFIFO(t *testing.T) {
	ob := NewOrderBook()
	mustAdd(t, ob, limit(1, SELL, 100, 1, GTC))
	mustAdd(t, ob, limit(2, SELL, 100, 1, GTC))
	mustAdd(t, ob, limit(3, SELL, 100, 1, GTC))

	if _, err := ob.CancelOrder(2); err != nil {
		t.Fatal(err)
	}
	if err := ob.CheckInvariants(); err != nil {
		t.Fatal(err)
	}

	results := mustAdd(t, ob, limit(4, BUY, 100, 2, GTC))
	if len(results) != 2 || results[0].RestingOrderID != 1 || results[1].RestingOrderID != 3 {
		t.Fatalf("expected fills against 1 then 3, got %+v", results)
	}
}

func TestCancelNonBestLevel(t *testing.T) {
	ob := NewOrderBook()
	mustAdd(t, ob, limit(1, BUY, 100, 1, GTC))
	mustAdd(t, ob, limit(2, BUY, 99, 1, GTC))
	mustAdd(t, ob, limit(3, BUY, 98, 1, GTC))

	if _, err := ob.CancelOrder(2); err != nil {
		t.Fatal(err)
	}
	if err := ob.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
	depth := ob.Depth(0)
	if len(depth.Bids) != 2 || depth.Bids[0].Price != 100 || depth.Bids[1].Price != 98 {
		t.Fatalf("unexpected bids after cancel %+v", depth.Bids)
	}

	results := mustAdd(t, ob, market(4, SELL, 2, IOC))
	if len(results) != 2 || results[1].Price != 98 {
		t.Fatalf("expected 99 level skipped, got %+v", results)
	}
}

func TestCancelFilledOrder(t *testing.T) {
	ob := NewOrderBook()
	mustAdd(t, ob, limit(1, BUY, 100, 1, GTC))
	mustAdd(t, ob, limit(2, SELL, 100, 1, GTC))

	if _, err := ob.CancelOrder(1); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("filled order cannot be cancelled, got %v", err)
	}
}
