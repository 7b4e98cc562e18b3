package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oshokin/satellite-timers/internal/domain/timer"
	"github.com/oshokin/satellite-timers/internal/event"
	"github.com/oshokin/satellite-timers/internal/logger"
	"github.com/oshokin/satellite-timers/internal/store"
)

// Mutator is the narrow store surface the scheduler needs: the same atomic
// Update/Get used by cancel and snooze, so the fire path re-checks status
// under the same lock and a wake-up already in flight can never beat a
// cancellation.
type Mutator interface {
	Update(ctx context.Context, id string, mutate func(*timer.Timer) error) (*timer.Timer, error)
	Get(ctx context.Context, id string) (*timer.Timer, bool)
}

// pending tracks the armed wake-up(s) for one timer id.
type pending struct {
	// instant is the expiry the wake-up was armed for. A fire for a stale
	// instant loses the CAS and is suppressed.
	instant time.Time
	// fire is the expiry wake-up.
	fire *time.Timer
	// warn is the optional pre-expiry warning wake-up.
	warn *time.Timer
}

// stop halts both wake-ups.
func (p *pending) stop() {
	p.fire.Stop()

	if p.warn != nil {
		p.warn.Stop()
	}
}

// Scheduler arms a one-shot wake-up per scheduled timer and fires the expiry
// notification exactly once. It implements store.Hook, so arming and
// disarming follow the store's status transitions automatically.
type Scheduler struct {
	// mu protects the pending map and closed flag.
	mu sync.Mutex
	// pendings holds armed wake-ups by timer id.
	pendings map[string]*pending
	// closed stops new arms after Close.
	closed bool

	// ctx scopes fire-path logging and publishing.
	ctx context.Context
	// mutator is the store surface used on the fire path.
	mutator Mutator
	// bus receives expiry and warning notifications.
	bus *event.Broadcaster
	// now is the clock, replaceable in tests.
	now func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// errStale marks a fire attempt that lost the status re-check.
var errStale = errors.New("stale wake-up")

// verify the scheduler satisfies the store's hook contract.
var _ store.Hook = (*Scheduler)(nil)

// New creates a Scheduler publishing to bus and mutating through m.
func New(ctx context.Context, m Mutator, bus *event.Broadcaster, opts ...Option) *Scheduler {
	s := &Scheduler{
		pendings: make(map[string]*pending),
		ctx:      logger.WithName(ctx, "scheduler"),
		mutator:  m,
		bus:      bus,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Armed arms a wake-up for the timer's expiry instant, replacing any pending
// wake-up for the same id (re-arm on snooze). Overdue instants fire
// immediately, which is how overdue timers recovered from storage behave
// after a restart.
func (s *Scheduler) Armed(t *timer.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if prior, ok := s.pendings[t.ID]; ok {
		prior.stop()
	}

	var (
		id      = t.ID
		instant = t.ExpiresAt
		delay   = instant.Sub(s.now())
	)

	if delay < 0 {
		delay = 0
	}

	p := &pending{
		instant: instant,
		fire: time.AfterFunc(delay, func() {
			s.fire(id, instant)
		}),
	}

	if lead := t.PreExpireWarning; lead > 0 && delay > lead {
		p.warn = time.AfterFunc(delay-lead, func() {
			s.warn(id, instant)
		})
	}

	s.pendings[t.ID] = p

	logger.DebugKV(s.ctx, "Wake-up armed", "timer_id", t.ID, "expires_at", instant, "delay", delay)
}

// Disarmed stops and drops any pending wake-up for the id.
func (s *Scheduler) Disarmed(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pendings[id]; ok {
		p.stop()
		delete(s.pendings, id)
	}
}

// fire transitions the timer to expired and publishes the notification.
// The transition is a compare-and-set under the store lock: it succeeds only
// while the timer is still scheduled for the armed instant, so cancellation
// and re-arming deterministically suppress the notification and a timer can
// never fire twice.
func (s *Scheduler) fire(id string, instant time.Time) {
	fired, err := s.mutator.Update(s.ctx, id, func(t *timer.Timer) error {
		if t.Status != timer.StatusScheduled || !t.ExpiresAt.Equal(instant) {
			return errStale
		}

		t.Status = timer.StatusExpired

		return nil
	})

	switch {
	case errors.Is(err, errStale), errors.Is(err, timer.ErrNotFound):
		// Lost against cancel, snooze or purge. Stay silent.
		return
	case err != nil:
		logger.ErrorKV(s.ctx, "Failed to expire timer", "timer_id", id, "error", err)

		return
	}

	logger.InfoKV(s.ctx, "Timer expired",
		"timer_id", fired.ID, "device_id", fired.DeviceID, "class", fired.Class)

	s.bus.Publish(s.ctx, event.Event{
		Kind:      event.KindExpired,
		DeviceID:  fired.DeviceID,
		TimerID:   fired.ID,
		Class:     fired.Class,
		Name:      fired.Name,
		ExpiresAt: fired.ExpiresAt,
	})
}

// warn publishes the pre-expiry warning if the timer is still scheduled for
// the armed instant. No state changes; satellites use it to fade screens in.
func (s *Scheduler) warn(id string, instant time.Time) {
	t, ok := s.mutator.Get(s.ctx, id)
	if !ok || t.Status != timer.StatusScheduled || !t.ExpiresAt.Equal(instant) {
		return
	}

	s.bus.Publish(s.ctx, event.Event{
		Kind:      event.KindWarning,
		DeviceID:  t.DeviceID,
		TimerID:   t.ID,
		Class:     t.Class,
		Name:      t.Name,
		ExpiresAt: t.ExpiresAt,
	})
}

// Close stops every pending wake-up and rejects further arming.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	for id, p := range s.pendings {
		p.stop()
		delete(s.pendings, id)
	}
}
