package orderbook

// canFill reports whether the resting liquidity on side can fully satisfy o
// within its price limit. It never mutates the book.
//
// Eligibility is monotone in price, so summing every eligible level gives the
// same answer as scanning best to worst and stopping at the first level that
// violates the limit.
func canFill(o *Order, side *bookSide) bool {
	var available uint64
	for price, level := range side.levels {
		if o.Type == LIMIT && !side.acceptable(price, o.Price) {
			continue
		}
		// available < o.Qty here, so the subtraction cannot wrap
		if level.total >= o.Qty-available {
			return true
		}
		available += level.total
	}
	return false
}
