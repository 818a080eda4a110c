// Package notify fans newly created trigger alerts out to subscriber
// channels. Delivery is at-most-once and best-effort: a full subscriber
// buffer drops the alert for that subscriber instead of blocking the
// publisher. A missed alert is superseded by the next scan moments later, so
// no retry path exists on purpose.
package notify

import (
	"sync"

	"github.com/rs/zerolog"

	"setup-scanner/internal/setups"
)

// DefaultBuffer is the per-subscriber channel depth.
const DefaultBuffer = 16

// Bus is the alert fan-out hub.
type Bus struct {
	mu     sync.RWMutex
	subs   map[chan setups.TriggerAlert]struct{}
	buffer int
	closed bool
	log    zerolog.Logger
}

// NewBus creates a bus with the given per-subscriber buffer (DefaultBuffer
// when <= 0).
func NewBus(buffer int, log zerolog.Logger) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		subs:   make(map[chan setups.TriggerAlert]struct{}),
		buffer: buffer,
		log:    log.With().Str("component", "notify").Logger(),
	}
}

// Subscribe registers a new subscriber channel. The caller must Unsubscribe
// when done; the channel is closed at that point.
func (b *Bus) Subscribe() <-chan setups.TriggerAlert {
	ch := make(chan setups.TriggerAlert, b.buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a subscriber channel. Unknown channels are
// ignored.
func (b *Bus) Unsubscribe(ch <-chan setups.TriggerAlert) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if (<-chan setups.TriggerAlert)(sub) == ch {
			delete(b.subs, sub)
			close(sub)
			return
		}
	}
}

// Publish delivers an alert to every subscriber without blocking. Full
// subscriber buffers drop the alert silently for that subscriber.
func (b *Bus) Publish(alert setups.TriggerAlert) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		select {
		case sub <- alert:
		default:
			b.log.Debug().Str("symbol", alert.Symbol).Msg("subscriber buffer full, alert dropped")
		}
	}
}

// SubscriberCount returns the live subscriber count.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the bus down, closing every subscriber channel. Publish and
// Subscribe become no-ops afterward.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub)
	}
}
