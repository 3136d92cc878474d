package notify

import (
	"sync"
	"sync/atomic"
)

// defaultSignalBufferSize is the buffer size for append signal channels.
// A subscriber only needs to know that something new arrived, so a full
// buffer drops the signal.
const defaultSignalBufferSize = 1

// subscription represents a single subscriber
type subscription struct {
	id     uint64
	ch     chan uint64
	closed atomic.Bool
}

// close closes the subscription channel if not already closed
func (s *subscription) close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// Hub fans out event log append signals carrying the new head sequence
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[uint64]*subscription
	nextID        atomic.Uint64
}

// NewHub creates a new notification hub
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[uint64]*subscription),
	}
}

// Signal notifies every subscriber without blocking
func (h *Hub) Signal(seq uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscriptions {
		select {
		case sub.ch <- seq:
		default:
		}
	}
}

// Subscribe returns a signal channel and an idempotent cancel function.
// Signals are coalesced when the subscriber is busy.
func (h *Hub) Subscribe() (<-chan uint64, func()) {
	sub := &subscription{
		id: h.nextID.Add(1),
		ch: make(chan uint64, defaultSignalBufferSize),
	}

	h.mu.Lock()
	h.subscriptions[sub.id] = sub
	h.mu.Unlock()

	return sub.ch, func() { h.unsubscribe(sub.id) }
}

// Close cancels every subscription
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subscriptions
	h.subscriptions = make(map[uint64]*subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	sub, ok := h.subscriptions[id]
	if ok {
		delete(h.subscriptions, id)
	}
	h.mu.Unlock()

	if ok {
		sub.close()
	}
}
