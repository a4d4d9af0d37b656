// Package events fans engine events out to the boundary subscribers.
package events

import (
	"sync"

	"github.com/vitos/crypto_bot_engine/internal/domain"
)

type Subscription struct {
	ch     chan domain.Event
	filter func(domain.Event) bool
}

// C delivers events until the subscription is closed.
func (s *Subscription) C() <-chan domain.Event { return s.ch }

// Hub broadcasts to every subscriber without blocking the publisher.
// A subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

func (h *Hub) Subscribe(buffer int) *Subscription {
	return h.SubscribeFunc(buffer, nil)
}

// SubscribeFunc subscribes to events accepted by filter; nil accepts all.
func (h *Hub) SubscribeFunc(buffer int, filter func(domain.Event) bool) *Subscription {
	sub := &Subscription{ch: make(chan domain.Event, buffer), filter: filter}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}

func (h *Hub) Publish(ev domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.ch)
		delete(h.subs, sub)
	}
}

// Recorder is an EventPublisher that keeps every event in order.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *Recorder) Publish(ev domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns recorded events of type t, optionally restricted to a bot.
func (r *Recorder) OfType(t domain.EventType, botID string) []domain.Event {
	var out []domain.Event
	for _, ev := range r.Events() {
		if ev.Type() != t {
			continue
		}
		if botID != "" && ev.Bot() != botID {
			continue
		}
		out = append(out, ev)
	}
	return out
}
