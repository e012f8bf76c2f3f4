// Package feed is the in-process change feed used by stores that do not
// have a native notification channel (memory, sqlite).
package feed

import (
	"sync"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Hub fans change events out to every open subscription.
// A subscriber whose queue is full is disconnected instead of silently
// losing events; its Events channel closes and the consumer must resync.
type Hub struct {
	logger logger.Logger
	buffer int

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub(log logger.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		logger: log,
		buffer: buffer,
		subs:   make(map[*Subscription]struct{}),
	}
}

// Subscribe opens a new subscription. On a closed hub the returned
// subscription is already finished.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{hub: h, ch: make(chan domain.ChangeEvent, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Publish delivers ev to every subscriber without blocking.
func (h *Hub) Publish(ev domain.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn("change feed subscriber too slow, disconnecting",
				logger.Int("buffer", h.buffer))
			h.removeLocked(sub)
		}
	}
}

// Count returns the number of open subscriptions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. Further subscriptions end immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for sub := range h.subs {
		h.removeLocked(sub)
	}
}

func (h *Hub) removeLocked(sub *Subscription) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}

// Subscription implements domain.Subscription on top of a Hub.
type Subscription struct {
	hub *Hub
	ch  chan domain.ChangeEvent
}

func (s *Subscription) Events() <-chan domain.ChangeEvent { return s.ch }

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.removeLocked(s)
	return nil
}
