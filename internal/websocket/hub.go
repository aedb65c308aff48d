package websocket

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Subscriber receives every broadcast message.
type Subscriber interface {
	ID() string
	// Deliver queues a message without blocking and reports whether it fit.
	Deliver(msg []byte) bool
	// Close releases the subscriber; the hub never delivers to it afterwards.
	Close()
}

type envelope struct {
	event string
	data  []byte
}

// Hub maintains the set of active subscribers and broadcasts messages to them.
// The set is owned by the Run goroutine; everything else talks to it over channels.
type Hub struct {
	// Registered subscribers.
	subscribers map[Subscriber]bool

	broadcast  chan envelope
	register   chan Subscriber
	unregister chan Subscriber

	count    atomic.Int64
	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[Subscriber]bool),
		broadcast:   make(chan envelope),
		register:    make(chan Subscriber),
		unregister:  make(chan Subscriber),
		done:        make(chan struct{}),
	}
}

// Run starts the Hub's message processing loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for sub := range h.subscribers {
				h.remove(sub)
			}
			return
		case sub := <-h.register:
			h.subscribers[sub] = true
			h.count.Store(int64(len(h.subscribers)))
			log.Info().Str("subscriber", sub.ID()).Int("total_clients", len(h.subscribers)).Msg("Client connected")
		case sub := <-h.unregister:
			if _, ok := h.subscribers[sub]; ok {
				h.remove(sub)
				log.Info().Str("subscriber", sub.ID()).Int("total_clients", len(h.subscribers)).Msg("Client disconnected")
			}
		case env := <-h.broadcast:
			for sub := range h.subscribers {
				if !sub.Deliver(env.data) {
					h.remove(sub)
					log.Warn().Str("subscriber", sub.ID()).Str("event", env.event).Msg("Dropping slow client")
				}
			}
		}
	}
}

// Stop ends Run and closes every subscriber.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register adds a subscriber. Once it returns, the subscriber receives every
// later broadcast and nothing earlier.
func (h *Hub) Register(sub Subscriber) {
	select {
	case h.register <- sub:
	case <-h.done:
		sub.Close()
	}
}

// Unregister removes and closes a subscriber. Unknown subscribers are ignored.
func (h *Hub) Unregister(sub Subscriber) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// Broadcast sends an event to every registered subscriber, in call order.
func (h *Hub) Broadcast(event string, payload any) error {
	data, err := Encode(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	select {
	case h.broadcast <- envelope{event: event, data: data}:
		return nil
	case <-h.done:
		return fmt.Errorf("hub stopped")
	}
}

// ClientCount returns the number of registered subscribers.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

func (h *Hub) remove(sub Subscriber) {
	delete(h.subscribers, sub)
	sub.Close()
	h.count.Store(int64(len(h.subscribers)))
}
