package orderbook

import "container/heap"

// PriceHeap implements heap.Interface over distinct prices and remembers
// each price's position so a level can be dropped from anywhere in the heap.
type PriceHeap struct {
	prices []int64
	less   func(i, j int64) bool
	index  map[int64]int
}

func NewPriceHeap(less func(i, j int64) bool) *PriceHeap {
	return &PriceHeap{
		prices: []int64{},
		less:   less,
		index:  make(map[int64]int),
	}
}

func (h PriceHeap) Len() int {
	return len(h.prices)
}

func (h PriceHeap) Less(i, j int) bool {
	return h.less(h.prices[i], h.prices[j])
}

func (h PriceHeap) Swap(i, j int) {
	h.prices[i], h.prices[j] = h.prices[j], h.prices[i]
	h.index[h.prices[i]] = i
	h.index[h.prices[j]] = j
}

func (h *PriceHeap) Push(x any) {
	price := x.(int64)
	if _, ok := h.index[price]; ok {
		return
	}
	h.index[price] = len(h.prices)
	h.prices = append(h.prices, price)
}

func (h *PriceHeap) Pop() any {
	n := len(h.prices)
	price := h.prices[n-1]
	h.prices = h.prices[:n-1]
	delete(h.index, price)
	return price
}

func (h *PriceHeap) Peek() (int64, bool) {
	if len(h.prices) == 0 {
		return 0, false
	}
	return h.prices[0], true
}

// Remove drops price from the heap if present.
func (h *PriceHeap) Remove(price int64) bool {
	i, ok := h.index[price]
	if !ok {
		return false
	}
	heap.Remove(h, i)
	return true
}

// Contains reports whether price is indexed.
func (h *PriceHeap) Contains(price int64) bool {
	_, ok := h.index[price]
	return ok
}

// Prices returns a copy of the indexed prices in heap order (not sorted).
func (h *PriceHeap) Prices() []int64 {
	out := make([]int64, len(h.prices))
	copy(out, h.prices)
	return out
}
