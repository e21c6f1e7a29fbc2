package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Hub fans events out to in-process subscribers keyed by user id.
// Sends never block: a subscriber that cannot keep up loses events and
// catches up through the poll path.
type Hub struct {
	logger *zap.Logger
	buffer int

	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}

	dropped   atomic.Int64
	published atomic.Int64
}

func NewHub(buffer int, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		logger: logger,
		buffer: buffer,
		subs:   make(map[string]map[chan Event]struct{}),
	}
}

// Subscribe registers a channel for one user and returns it with a
// cancel function. Cancel is idempotent and closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[userID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[userID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, userID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish sends the event to every live subscription for the user.
// No subscribers is a normal outcome, not an error.
func (h *Hub) Publish(ctx context.Context, userID, event string, payload any) error {
	if h == nil {
		return nil
	}
	ev := Event{Event: event, Payload: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[userID] {
		select {
		case ch <- ev:
			h.published.Add(1)
		default:
			h.dropped.Add(1)
			h.logger.Debug("push subscriber lagging, event dropped",
				zap.String("user_id", userID),
				zap.String("event", event))
		}
	}
	return nil
}

// Subscribers counts live subscriptions, across all users when userID
// is empty.
func (h *Hub) Subscribers(userID string) int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if userID != "" {
		return len(h.subs[userID])
	}
	total := 0
	for _, set := range h.subs {
		total += len(set)
	}
	return total
}

// Stats reports cumulative publish and drop counters.
func (h *Hub) Stats() (published, dropped int64) {
	if h == nil {
		return 0, 0
	}
	return h.published.Load(), h.dropped.Load()
}

var _ Notifier = (*Hub)(nil)
