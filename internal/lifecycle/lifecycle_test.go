package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/satellite-timers/internal/domain/timer"
	"github.com/oshokin/satellite-timers/internal/domain/timespec"
	"github.com/oshokin/satellite-timers/internal/event"
	repo "github.com/oshokin/satellite-timers/internal/repository/timers"
	"github.com/oshokin/satellite-timers/internal/store"
)

type fakeAnnouncer struct {
	mu      sync.Mutex
	plays   []string
	stops   []string
	playErr error
	stopErr error
}

func (f *fakeAnnouncer) Play(_ context.Context, deviceID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.plays = append(f.plays, deviceID)

	return f.playErr
}

func (f *fakeAnnouncer) Stop(_ context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stops = append(f.stops, deviceID)

	return f.stopErr
}

func (f *fakeAnnouncer) playCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.plays)
}

type fakeDisplay struct {
	mu     sync.Mutex
	shows  []string
	clears []string
}

func (f *fakeDisplay) ShowAlarm(_ context.Context, deviceID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.shows = append(f.shows, deviceID)

	return nil
}

func (f *fakeDisplay) ClearAlarm(_ context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.clears = append(f.clears, deviceID)

	return nil
}

type rig struct {
	timers    *store.Store
	bus       *event.Broadcaster
	announcer *fakeAnnouncer
	display   *fakeDisplay
	manager   *Manager
}

func newRig(t *testing.T) *rig {
	t.Helper()

	r := &rig{
		timers:    store.New(repo.Nop{}),
		bus:       event.NewBroadcaster(),
		announcer: &fakeAnnouncer{},
		display:   &fakeDisplay{},
	}
	r.manager = NewManager(r.timers, r.bus, r.announcer, r.display, 9*time.Minute, "alarm.wav")

	t.Cleanup(r.bus.Close)

	return r
}

// expireTimer creates a timer on the device and walks it to expired,
// returning the expiry event the scheduler would have published.
func (r *rig) expireTimer(t *testing.T, deviceID, name string) event.Event {
	t.Helper()

	ctx := context.Background()

	created, err := r.timers.Create(ctx, store.CreateParams{
		DeviceID: deviceID,
		Class:    timer.ClassAlarm,
		Name:     name,
		Spec:     timespec.Interval(time.Minute),
	})
	require.NoError(t, err)

	expired, err := r.timers.Update(ctx, created.ID, func(tm *timer.Timer) error {
		tm.Status = timer.StatusExpired

		return nil
	})
	require.NoError(t, err)

	return event.Event{
		Kind:      event.KindExpired,
		DeviceID:  deviceID,
		TimerID:   expired.ID,
		Class:     expired.Class,
		Name:      expired.Name,
		ExpiresAt: expired.ExpiresAt,
	}
}

func TestHandleExpiry_StartsAlarming(t *testing.T) {
	t.Parallel()

	r := newRig(t)
	ctx := context.Background()

	e := r.expireTimer(t, "kitchen", "Coffee")

	require.NoError(t, r.manager.HandleExpiry(ctx, e))
	require.Equal(t, StateAlarming, r.manager.State("kitchen"))

	id, ok := r.manager.AlarmingTimer("kitchen")
	require.True(t, ok)
	require.Equal(t, e.TimerID, id)

	require.Equal(t, []string{"kitchen"}, r.announcer.plays)
	require.Equal(t, []string{"kitchen"}, r.display.shows)

	// Re-delivery of the same expiry must not restart playback.
	require.NoError(t, r.manager.HandleExpiry(ctx, e))
	require.Equal(t, 1, r.announcer.playCount())
}

func TestHandleExpiry_CommandTimerNeverRings(t *testing.T) {
	t.Parallel()

	r := newRig(t)

	e := r.expireTimer(t, "kitchen", "lights off")
	e.Class = timer.ClassCommand

	require.NoError(t, r.manager.HandleExpiry(context.Background(), e))
	require.Equal(t, StateIdle, r.manager.State("kitchen"))
	require.Zero(t, r.announcer.playCount())
}

func TestHandleExpiry_DownstreamFailureKeepsAlarming(t *testing.T) {
	t.Parallel()

	r := newRig(t)
	r.announcer.playErr = errors.New("speaker offline")

	e := r.expireTimer(t, "kitchen", "Coffee")

	err := r.manager.HandleExpiry(context.Background(), e)
	require.ErrorIs(t, err, timer.ErrDownstreamFailed)
	require.Equal(t, StateAlarming, r.manager.State("kitchen"))
}

func TestDismiss(t *testing.T) {
	t.Parallel()

	r := newRig(t)
	ctx := context.Background()

	e := r.expireTimer(t, "kitchen", "Coffee")
	require.NoError(t, r.manager.HandleExpiry(ctx, e))

	sub := r.bus.Subscribe()
	defer sub.Close()

	dismissed, err := r.manager.Dismiss(ctx, "kitchen")
	require.NoError(t, err)
	require.True(t, dismissed)
	require.Equal(t, StateIdle, r.manager.State("kitchen"))
	require.Equal(t, []string{"kitchen"}, r.announcer.stops)
	require.Equal(t, []string{"kitchen"}, r.display.clears)

	stored, ok := r.timers.Get(ctx, e.TimerID)
	require.True(t, ok)
	require.Equal(t, timer.StatusCanceled, stored.Status)

	select {
	case published := <-sub.C():
		require.Equal(t, event.KindDismissed, published.Kind)
		require.Equal(t, e.TimerID, published.TimerID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a dismissed event")
	}

	// Dismissing an idle device is a no-op, not an error.
	dismissed, err = r.manager.Dismiss(ctx, "kitchen")
	require.NoError(t, err)
	require.False(t, dismissed)
}

func TestSnooze_CreatesScheduledReplacement(t *testing.T) {
	t.Parallel()

	r := newRig(t)
	ctx := context.Background()

	e := r.expireTimer(t, "kitchen", "Coffee")
	require.NoError(t, r.manager.HandleExpiry(ctx, e))

	replacement, err := r.manager.Snooze(ctx, "kitchen", 5*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, replacement)
	require.Equal(t, timer.StatusScheduled, replacement.Status)
	require.Equal(t, "Coffee", replacement.Name)
	require.Equal(t, timer.ClassAlarm, replacement.Class)
	require.Equal(t, 1, replacement.SnoozeCount)
	require.NotEqual(t, e.TimerID, replacement.ID)

	require.Equal(t, StateIdle, r.manager.State("kitchen"))
	require.Equal(t, []string{"kitchen"}, r.announcer.stops)

	// The original stays expired and will never ring again.
	original, ok := r.timers.Get(ctx, e.TimerID)
	require.True(t, ok)
	require.Equal(t, timer.StatusExpired, original.Status)
}

func TestSnooze_UnnamedAlarmGetsLabel(t *testing.T) {
	t.Parallel()

	r := newRig(t)
	ctx := context.Background()

	e := r.expireTimer(t, "kitchen", "")
	require.NoError(t, r.manager.HandleExpiry(ctx, e))

	replacement, err := r.manager.Snooze(ctx, "kitchen", 0)
	require.NoError(t, err)
	require.NotNil(t, replacement)
	require.Equal(t, SnoozedAlarmName, replacement.Name)

	// Zero duration falls back to the manager's default of nine minutes.
	remaining := time.Until(replacement.ExpiresAt)
	require.Greater(t, remaining, 8*time.Minute)
	require.LessOrEqual(t, remaining, 9*time.Minute)
}

func TestSnooze_IdleDeviceIsNoop(t *testing.T) {
	t.Parallel()

	r := newRig(t)

	replacement, err := r.manager.Snooze(context.Background(), "kitchen", time.Minute)
	require.NoError(t, err)
	require.Nil(t, replacement)
}

func TestSnoozeThenDismiss_LastWriteWins(t *testing.T) {
	t.Parallel()

	r := newRig(t)
	ctx := context.Background()

	e := r.expireTimer(t, "kitchen", "Coffee")
	require.NoError(t, r.manager.HandleExpiry(ctx, e))

	replacement, err := r.manager.Snooze(ctx, "kitchen", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, replacement)

	// The dismiss that lost the race sees an idle device and does nothing.
	dismissed, err := r.manager.Dismiss(ctx, "kitchen")
	require.NoError(t, err)
	require.False(t, dismissed)

	stored, ok := r.timers.Get(ctx, replacement.ID)
	require.True(t, ok)
	require.Equal(t, timer.StatusScheduled, stored.Status)
}

func TestRun_ConsumesExpiryEvents(t *testing.T) {
	t.Parallel()

	r := newRig(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})

	go func() {
		defer close(done)

		r.manager.Run(ctx)
	}()

	e := r.expireTimer(t, "kitchen", "Coffee")
	r.bus.Publish(ctx, e)

	require.Eventually(t, func() bool {
		return r.manager.State("kitchen") == StateAlarming
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}
