package timers

import (
	"context"
	"time"

	"github.com/oshokin/satellite-timers/internal/domain/timer"
)

// Repository defines persistence operations for the timer set. The store is
// authoritative in memory; the repository provides durability across hub
// restarts.
type Repository interface {
	// LoadAll returns every persisted timer in creation order.
	LoadAll(ctx context.Context) ([]*timer.Timer, error)
	// Save inserts or replaces a timer row.
	Save(ctx context.Context, t *timer.Timer) error
	// Delete removes a timer row. Deleting an absent row is not an error.
	Delete(ctx context.Context, id string) error
	// PurgeTerminal deletes expired and canceled timers whose expiry is
	// older than the cutoff, returning how many rows were removed.
	PurgeTerminal(ctx context.Context, cutoff time.Time) (int64, error)
}

// Nop is a Repository that persists nothing. Used for ephemeral runs and tests.
type Nop struct{}

// LoadAll returns no timers.
func (Nop) LoadAll(context.Context) ([]*timer.Timer, error) { return nil, nil }

// Save discards the timer.
func (Nop) Save(context.Context, *timer.Timer) error { return nil }

// Delete discards the id.
func (Nop) Delete(context.Context, string) error { return nil }

// PurgeTerminal removes nothing.
func (Nop) PurgeTerminal(context.Context, time.Time) (int64, error) { return 0, nil }
