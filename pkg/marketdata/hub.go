package marketdata

import "sync"

type subscription[T any] struct {
	ch chan T
}

// hub fans values out to subscribers. Slow subscribers miss values rather
// than block the publisher.
type hub[T any] struct {
	mu   sync.RWMutex
	subs map[*subscription[T]]struct{}
}

func newHub[T any]() *hub[T] {
	return &hub[T]{subs: make(map[*subscription[T]]struct{})}
}

func (h *hub[T]) Subscribe(buffer int) *subscription[T] {
	sub := &subscription[T]{ch: make(chan T, buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *hub[T]) Unsubscribe(sub *subscription[T]) {
	h.mu.Lock()
	_, ok := h.subs[sub]
	delete(h.subs, sub)
	h.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// Broadcast returns how many subscribers were skipped because their buffer
// was full.
func (h *hub[T]) Broadcast(value T) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	dropped := 0
	for sub := range h.subs {
		select {
		case sub.ch <- value:
		default:
			dropped++
		}
	}
	return dropped
}

func (h *hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
