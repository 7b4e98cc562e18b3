package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/satellite-timers/internal/domain/timer"
	"github.com/oshokin/satellite-timers/internal/domain/timespec"
	"github.com/oshokin/satellite-timers/internal/logger"
	repo "github.com/oshokin/satellite-timers/internal/repository/timers"
)

// Hook receives arm/disarm notifications when timers enter or leave the
// scheduled status. The expiry scheduler registers itself here so the store
// never has to import it.
type Hook interface {
	// Armed is called after a timer enters scheduled status.
	Armed(t *timer.Timer)
	// Disarmed is called after a timer leaves scheduled status.
	Disarmed(id string)
}

// Store owns the authoritative set of timers. All mutations are serialized
// under one mutex; reads observe consistent snapshots via clones. Expected
// timer counts are small (tens per household), so a global lock is fine.
type Store struct {
	// mu protects timers, order and hook.
	mu sync.RWMutex
	// timers is the authoritative id -> timer map.
	timers map[string]*timer.Timer
	// order keeps insertion order of ids for listing.
	order []string
	// hook is the scheduler attachment, nil until registered.
	hook Hook

	// repo provides durability; never nil (use repo.Nop for ephemeral runs).
	repo repo.Repository
	// now is the clock, replaceable in tests.
	now func() time.Time
	// newID allocates fresh timer ids.
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the id allocator, for tests.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

var (
	// errDeviceRequired rejects creation requests without an owning device.
	errDeviceRequired = fmt.Errorf("device id is required: %w", timer.ErrInvalidTimeSpec)
	// ErrIllegalTransition is returned when a mutator attempts a status
	// change outside the legal lifecycle graph.
	ErrIllegalTransition = errors.New("illegal status transition")
	// errImmutableField is returned when a mutator touches id, device,
	// class or creation instant.
	errImmutableField = errors.New("mutated immutable timer field")
)

// New creates a Store backed by the provided repository.
func New(repository repo.Repository, opts ...Option) *Store {
	if repository == nil {
		repository = repo.Nop{}
	}

	s := &Store{
		timers: make(map[string]*timer.Timer),
		repo:   repository,
		now:    time.Now,
		newID:  uuid.NewString,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SetHook registers the scheduler attachment. Must be called before Load.
func (s *Store) SetHook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hook = h
}

// Load restores persisted timers. Scheduled and snoozed rows are re-armed
// (overdue ones will fire immediately from the scheduler); rows stored as
// expired are dropped because their notification was already delivered;
// canceled rows are kept for listing until retention purges them.
func (s *Store) Load(ctx context.Context) error {
	persisted, err := s.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load timers: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range persisted {
		if t.Status == timer.StatusExpired {
			if err := s.repo.Delete(ctx, t.ID); err != nil {
				logger.WarnKV(ctx, "Failed to drop stale expired timer", "timer_id", t.ID, "error", err)
			}

			continue
		}

		// A snoozed row means the process died between creating a snooze
		// replacement and re-arming it. Finish the re-arm now.
		if t.Status == timer.StatusSnoozed {
			t.Status = timer.StatusScheduled
			if err := s.repo.Save(ctx, t); err != nil {
				logger.WarnKV(ctx, "Failed to persist recovered snoozed timer", "timer_id", t.ID, "error", err)
			}
		}

		s.timers[t.ID] = t
		s.order = append(s.order, t.ID)

		if t.Status == timer.StatusScheduled && s.hook != nil {
			s.hook.Armed(t.Clone())
		}
	}

	logger.InfoKV(ctx, "Timer store loaded", "timers", len(s.timers))

	return nil
}

// CreateParams carries everything needed to allocate a new timer.
type CreateParams struct {
	// DeviceID is the owning satellite device. Required.
	DeviceID string
	// Class is the timer category. Required.
	Class timer.Class
	// Name is the optional user-supplied label.
	Name string
	// SpokenSentence is the phrase fragment the request came from.
	SpokenSentence string
	// Spec is the time specification to resolve into an expiry instant.
	Spec timespec.Spec
	// PreExpireWarning is the warning lead time, zero to disable.
	PreExpireWarning time.Duration
	// SnoozeCount seeds the snooze counter on snooze replacements.
	SnoozeCount int
	// Snoozed creates the timer in the transient snoozed status instead of
	// scheduled. Snooze replacements start here and are re-armed explicitly.
	Snoozed bool
}

// Create validates the request, allocates a fresh timer and arms it when it
// starts out scheduled.
func (s *Store) Create(ctx context.Context, p CreateParams) (*timer.Timer, error) {
	if p.DeviceID == "" {
		return nil, errDeviceRequired
	}

	now := s.now()

	expiresAt, err := p.Spec.Resolve(now)
	if err != nil {
		return nil, err
	}

	status := timer.StatusScheduled
	if p.Snoozed {
		status = timer.StatusSnoozed
	}

	t := &timer.Timer{
		ID:                s.newID(),
		DeviceID:          p.DeviceID,
		Class:             p.Class,
		Name:              p.Name,
		SpokenSentence:    p.SpokenSentence,
		CreatedAt:         now,
		ExpiresAt:         expiresAt,
		OriginalExpiresAt: expiresAt,
		PreExpireWarning:  p.PreExpireWarning,
		FromDuration:      p.Spec.Kind == timespec.KindInterval,
		Status:            status,
		SnoozeCount:       p.SnoozeCount,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("persist timer: %w", err)
	}

	s.timers[t.ID] = t
	s.order = append(s.order, t.ID)

	if t.Status == timer.StatusScheduled && s.hook != nil {
		s.hook.Armed(t.Clone())
	}

	logger.InfoKV(ctx, "Timer created",
		"timer_id", t.ID, "device_id", t.DeviceID, "class", t.Class, "expires_at", t.ExpiresAt)

	return t.Clone(), nil
}

// Get returns a snapshot of the timer, or false when absent.
func (s *Store) Get(_ context.Context, id string) (*timer.Timer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.timers[id]

	return t.Clone(), ok
}

// Filter narrows List output. Zero values match everything; the store never
// infers "active", callers pass the statuses they mean.
type Filter struct {
	// DeviceID restricts to one device when non-empty.
	DeviceID string
	// Statuses restricts to the listed statuses when non-empty.
	Statuses []timer.Status
}

// matches reports whether the timer passes the filter.
func (f Filter) matches(t *timer.Timer) bool {
	if f.DeviceID != "" && t.DeviceID != f.DeviceID {
		return false
	}

	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
		return false
	}

	return true
}

// ActiveStatuses is the conventional "active only" filter value:
// everything except expired and canceled.
func ActiveStatuses() []timer.Status {
	return []timer.Status{timer.StatusScheduled, timer.StatusSnoozed}
}

// List returns a lazy single-use sequence of timer snapshots in insertion
// order. The id set is pinned when List is called; each timer is re-read and
// cloned at yield time, so the sequence observes whole timers, never partial
// updates.
func (s *Store) List(_ context.Context, f Filter) iter.Seq[*timer.Timer] {
	s.mu.RLock()
	ids := slices.Clone(s.order)
	s.mu.RUnlock()

	return func(yield func(*timer.Timer) bool) {
		for _, id := range ids {
			s.mu.RLock()
			t, ok := s.timers[id]

			var snapshot *timer.Timer
			if ok && f.matches(t) {
				snapshot = t.Clone()
			}
			s.mu.RUnlock()

			if snapshot == nil {
				continue
			}

			if !yield(snapshot) {
				return
			}
		}
	}
}

// Cancel idempotently cancels a timer. Returns false when the id is unknown
// or the timer is already canceled. A canceled timer is never re-armed.
func (s *Store) Cancel(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[id]
	if !ok || t.Status == timer.StatusCanceled {
		return false
	}

	wasScheduled := t.Status == timer.StatusScheduled
	t.Status = timer.StatusCanceled

	if wasScheduled && s.hook != nil {
		s.hook.Disarmed(id)
	}

	if err := s.repo.Save(ctx, t); err != nil {
		logger.WarnKV(ctx, "Failed to persist timer cancellation", "timer_id", id, "error", err)
	}

	logger.InfoKV(ctx, "Timer canceled", "timer_id", id, "device_id", t.DeviceID)

	return true
}

// Update applies the mutator atomically under the store lock. The mutator
// receives a working copy; status changes must follow the legal transition
// graph and identity fields are immutable. Fails with timer.ErrNotFound when
// the id no longer exists.
func (s *Store) Update(ctx context.Context, id string, mutate func(*timer.Timer) error) (*timer.Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.timers[id]
	if !ok {
		return nil, fmt.Errorf("update %s: %w", id, timer.ErrNotFound)
	}

	updated := current.Clone()
	if err := mutate(updated); err != nil {
		return nil, err
	}

	if updated.ID != current.ID || updated.DeviceID != current.DeviceID ||
		updated.Class != current.Class || !updated.CreatedAt.Equal(current.CreatedAt) {
		return nil, fmt.Errorf("update %s: %w", id, errImmutableField)
	}

	if updated.Status != current.Status && !current.Status.CanTransition(updated.Status) {
		return nil, fmt.Errorf("update %s: %s -> %s: %w",
			id, current.Status, updated.Status, ErrIllegalTransition)
	}

	leftScheduled := current.Status == timer.StatusScheduled && updated.Status != timer.StatusScheduled
	becameScheduled := current.Status != timer.StatusScheduled && updated.Status == timer.StatusScheduled
	rearmed := current.Status == timer.StatusScheduled && updated.Status == timer.StatusScheduled &&
		!updated.ExpiresAt.Equal(current.ExpiresAt)

	s.timers[id] = updated

	if s.hook != nil {
		switch {
		case leftScheduled:
			s.hook.Disarmed(id)
		case becameScheduled, rearmed:
			s.hook.Armed(updated.Clone())
		}
	}

	if err := s.repo.Save(ctx, updated); err != nil {
		logger.WarnKV(ctx, "Failed to persist timer update", "timer_id", id, "error", err)
	}

	return updated.Clone(), nil
}

// FindDuplicate returns a snapshot of an existing non-terminal timer on the
// same device with the same expiry instant, if any. Used to suppress
// accidental double requests ("set a timer for ten minutes" heard twice).
func (s *Store) FindDuplicate(_ context.Context, deviceID string, expiresAt time.Time) *timer.Timer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		t := s.timers[id]
		if t.DeviceID == deviceID && t.Status == timer.StatusScheduled && t.ExpiresAt.Equal(expiresAt) {
			return t.Clone()
		}
	}

	return nil
}

// PurgeTerminal removes canceled and expired timers whose expiry predates
// the cutoff, from memory and from the repository. Active timers are never
// touched regardless of age.
func (s *Store) PurgeTerminal(ctx context.Context, cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	purged := 0

	for _, id := range s.order {
		t := s.timers[id]
		if t.Status.Terminal() || t.Status == timer.StatusExpired {
			if t.ExpiresAt.Before(cutoff) {
				delete(s.timers, id)
				purged++

				continue
			}
		}

		kept = append(kept, id)
	}

	s.order = kept

	if _, err := s.repo.PurgeTerminal(ctx, cutoff); err != nil {
		logger.WarnKV(ctx, "Failed to purge stored timers", "error", err)
	}

	if purged > 0 {
		logger.InfoKV(ctx, "Purged finished timers", "purged", purged, "cutoff", cutoff)
	}

	return purged
}
