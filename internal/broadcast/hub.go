// Package broadcast fans status-change notifications out to live viewers.
package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message types sent to subscribers.
const (
	TypeConnected    = "connected"
	TypeStatusChange = "status_change"
)

// Message is one notification. Data is encoded as JSON on the wire.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// subscriberBuffer absorbs short bursts before a slow subscriber starts
// missing messages.
const subscriberBuffer = 8

// Hub delivers published messages to every subscriber without blocking the
// publisher. A subscriber whose buffer is full misses the message.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]chan Message
	closed      bool
	dropped     uint64
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]chan Message)}
}

// Subscribe registers a new subscriber. The channel is closed by
// Unsubscribe or Close.
func (h *Hub) Subscribe() (string, <-chan Message) {
	id := uuid.NewString()
	ch := make(chan Message, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Publish sends m to every subscriber.
func (h *Hub) Publish(m Message) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- m:
		default:
			// full, skip so ingestion never blocks
			h.dropped++
		}
	}
}

// Count returns the number of subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Dropped returns how many deliveries were skipped because a subscriber was
// not keeping up.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Close closes every subscriber channel. Later subscriptions receive a
// closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}
