package stream

import (
	"context"
	"sync"
	"time"
)

// ProfileChanged signals that the attributes an ability is derived from
// (role, company role or company state) changed for a user.
type ProfileChanged struct {
	UserID    int64     `json:"userId"`
	CompanyID int64     `json:"companyId"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fans out profile changes to subscribers (SSE clients).
// Subscribers with a zero user id receive every event.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

type subscriber struct {
	userID int64
	ch     chan ProfileChanged
}

// New initialises an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber for userID and returns a channel which will
// receive its events. The channel is closed when the provided context ends.
func (h *Hub) Subscribe(ctx context.Context, userID int64) <-chan ProfileChanged {
	ch := make(chan ProfileChanged, 8)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = subscriber{userID: userID, ch: ch}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish delivers the event to matching subscribers without blocking.
func (h *Hub) Publish(evt ProfileChanged) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if s.userID != 0 && s.userID != evt.UserID {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			// Slow subscriber; it re-syncs on the next event.
		}
	}
}

// Subscribers reports the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
