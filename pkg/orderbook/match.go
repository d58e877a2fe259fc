package orderbook

import "time"

// MatchResult is one execution between an incoming and a resting order.
type MatchResult struct {
	Price           int64     `json:"price"` // resting order's price
	Qty             uint64    `json:"qty"`
	RestingOrderID  uint64    `json:"resting_order_id"`
	IncomingOrderID uint64    `json:"incoming_order_id"`
	Side            Side      `json:"side"` // aggressor side
	Timestamp       time.Time `json:"timestamp"`
}

func totalQty(results []MatchResult) uint64 {
	var total uint64
	for _, r := range results {
		total += r.Qty
	}
	return total
}
