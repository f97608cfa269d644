package notify

// bus.go: in-process event fan-out keyed by user identity. The dispatcher
// publishes here; the websocket hub and tests subscribe. Delivery is
// best-effort: a subscriber that falls behind loses events, never blocks
// trade handling.

import (
	"log/slog"
	"sync"

	"github.com/polycopy/engine/internal/domain"
)

const defaultSubscriberBuffer = 64

// Bus implements ports.Publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]chan domain.Event // userID → subscriber channels
	buffer int
}

// NewBus creates an event bus with the default per-subscriber buffer.
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[string][]chan domain.Event),
		buffer: defaultSubscriberBuffer,
	}
}

// Subscribe registers a channel for one user's events. The returned cancel
// function removes the subscription and closes the channel.
func (b *Bus) Subscribe(userID string) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, b.buffer)

	b.mu.Lock()
	b.subs[userID] = append(b.subs[userID], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[userID]
		for i, c := range chans {
			if c == ch {
				b.subs[userID] = append(chans[:i], chans[i+1:]...)
				close(ch)
				break
			}
		}
		if len(b.subs[userID]) == 0 {
			delete(b.subs, userID)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber of event.UserID without
// blocking. Full buffers drop the event. The read lock is held across the
// sends: cancel closes channels under the write lock, so a send can never
// race a close.
func (b *Bus) Publish(event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[event.UserID] {
		select {
		case ch <- event:
		default:
			slog.Warn("notification dropped: slow subscriber",
				"user", event.UserID,
				"kind", event.Kind,
			)
		}
	}
}
