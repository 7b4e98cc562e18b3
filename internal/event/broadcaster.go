package event

import (
	"context"
	"sync"
	"time"

	"github.com/oshokin/satellite-timers/internal/domain/timer"
	"github.com/oshokin/satellite-timers/internal/logger"
)

// Kind identifies a lifecycle event on the bus.
type Kind string

const (
	// KindStarted fires when a timer is created and armed.
	KindStarted Kind = "started"
	// KindWarning fires the configured lead time before expiry.
	KindWarning Kind = "warning"
	// KindExpired fires exactly once when a timer reaches its expiry uncancelled.
	KindExpired Kind = "expired"
	// KindSnoozed fires when an alarming timer is snoozed.
	KindSnoozed Kind = "snoozed"
	// KindDismissed fires when an alarming timer is dismissed.
	KindDismissed Kind = "dismissed"
	// KindCanceled fires when a timer is canceled before expiry.
	KindCanceled Kind = "canceled"
	// KindSnoozeRequested carries a "snooze alarm" command from voice or UI.
	KindSnoozeRequested Kind = "snooze-requested"
	// KindDismissRequested carries a "dismiss alarm" command from voice or UI.
	KindDismissRequested Kind = "dismiss-requested"
)

// Event is the typed payload delivered to subscribers. Delivery is
// at-least-once; consumers rely on the state machine's idempotent
// transitions to absorb duplicates.
type Event struct {
	// Kind is the event type.
	Kind Kind
	// DeviceID is the owning satellite device.
	DeviceID string
	// TimerID identifies the timer, when the event concerns one.
	TimerID string
	// Class is the timer class, set on lifecycle events.
	Class timer.Class
	// Name is the timer's label, set on lifecycle events.
	Name string
	// ExpiresAt is the timer's expiry instant, set on lifecycle events.
	ExpiresAt time.Time
	// Command is the raw spoken command on request events.
	Command string
	// Extra carries free-form request context (for example a name fragment).
	Extra map[string]string
}

// defaultBuffer is the per-subscriber channel capacity.
const defaultBuffer = 16

// subscriber pairs a delivery channel with its removal handle.
type subscriber struct {
	ch chan Event
}

// Subscription is a live attachment to the broadcaster.
type Subscription struct {
	// sub is the underlying delivery channel holder.
	sub *subscriber
	// close detaches the subscription from the broadcaster.
	close func()
	// once guards double Close calls.
	once sync.Once
}

// C returns the delivery channel. The broadcaster closes it if the
// subscriber falls behind; the holder must then subscribe again.
func (s *Subscription) C() <-chan Event {
	return s.sub.ch
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(s.close)
}

// Broadcaster is a typed publish/subscribe boundary for lifecycle events.
type Broadcaster struct {
	// mu protects the subscriber set.
	mu sync.Mutex
	// subs holds current subscribers by token.
	subs map[int]*subscriber
	// next is the token allocator.
	next int
	// closed blocks new subscriptions after Close.
	closed bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[int]*subscriber),
	}
}

// Subscribe attaches a new subscriber with a buffered delivery channel.
// Returns nil after the broadcaster is closed.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	token := b.next
	b.next++

	sub := &subscriber{ch: make(chan Event, defaultBuffer)}
	b.subs[token] = sub

	return &Subscription{
		sub: sub,
		close: func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			if _, ok := b.subs[token]; ok {
				delete(b.subs, token)
				close(sub.ch)
			}
		},
	}
}

// Publish delivers the event to every current subscriber without blocking.
// A subscriber whose buffer is full is dropped and its channel closed.
func (b *Broadcaster) Publish(ctx context.Context, e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for token, sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			delete(b.subs, token)
			close(sub.ch)
			logger.WarnKV(ctx, "Dropped slow event subscriber",
				"kind", e.Kind, "device_id", e.DeviceID)
		}
	}
}

// Close drops all subscribers and rejects new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for token, sub := range b.subs {
		delete(b.subs, token)
		close(sub.ch)
	}
}
