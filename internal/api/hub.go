package api

import (
	"sync"

	"github.com/bryanchriswhite/SnapFrame/internal/app"
)

// subscriberBuffer bounds how far a slow listener may lag before it misses
// events.
const subscriberBuffer = 32

// Hub fans capture status reports out to websocket listeners.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan app.Status]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan app.Status]struct{})}
}

// Subscribe registers a listener. The channel is closed by Unsubscribe or
// Close.
func (h *Hub) Subscribe() chan app.Status {
	ch := make(chan app.Status, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a listener.
func (h *Hub) Unsubscribe(ch chan app.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Publish delivers s to every listener without blocking. Listeners with a
// full buffer drop the event.
func (h *Hub) Publish(s app.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Close disconnects every listener.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
