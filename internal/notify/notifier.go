// Package notify is the push half of the delivery boundary. Push is
// best-effort: every event a subscriber misses is reconstructable from
// the persisted rows, so a lost notification costs latency, never
// visibility.
package notify

import "context"

// Event is the wire envelope for push messages.
type Event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// EventNewSignal announces a freshly persisted distributed signal.
const EventNewSignal = "new-signal"

// Notifier delivers one event to a user's live subscriptions.
type Notifier interface {
	Publish(ctx context.Context, userID, event string, payload any) error
}
