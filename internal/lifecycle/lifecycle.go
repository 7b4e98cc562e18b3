package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oshokin/satellite-timers/internal/domain/timer"
	"github.com/oshokin/satellite-timers/internal/domain/timespec"
	"github.com/oshokin/satellite-timers/internal/event"
	"github.com/oshokin/satellite-timers/internal/logger"
	"github.com/oshokin/satellite-timers/internal/store"
)

// Announcer plays and stops alarm audio on a satellite. Implementations are
// external; failures are surfaced but never roll back timer state.
type Announcer interface {
	Play(ctx context.Context, deviceID, mediaRef string) error
	Stop(ctx context.Context, deviceID string) error
}

// Display drives the satellite's alarm indicator.
type Display interface {
	ShowAlarm(ctx context.Context, deviceID, timerID string) error
	ClearAlarm(ctx context.Context, deviceID string) error
}

// State is a device's alarm state.
type State string

const (
	// StateIdle means nothing is ringing on the device.
	StateIdle State = "idle"
	// StateAlarming means an expired timer is ringing on the device.
	StateAlarming State = "alarming"
)

// SnoozedAlarmName labels snooze replacements for timers that had no name.
const SnoozedAlarmName = "Snoozed Alarm"

// deviceAlarm tracks the alarming timer on one device.
type deviceAlarm struct {
	// state is idle or alarming.
	state State
	// timerID is the ringing timer while alarming.
	timerID string
}

// Manager is the per-device alarm state machine: idle -> alarming on expiry,
// back to idle on dismiss or snooze. Transitions are serialized per manager;
// duplicate deliveries and lost races collapse into no-ops, so concurrent
// snooze and dismiss resolve as last write wins.
type Manager struct {
	// mu serializes state transitions.
	mu sync.Mutex
	// devices maps device id to alarm state. Absent means idle.
	devices map[string]*deviceAlarm

	// timers is the authoritative store.
	timers *store.Store
	// bus publishes snoozed/dismissed lifecycle events.
	bus *event.Broadcaster
	// announcer and display are the external side-effect collaborators.
	announcer Announcer
	display   Display

	// defaultSnooze is used when a snooze request carries no duration.
	defaultSnooze time.Duration
	// alarmMedia is the media reference handed to the announcer.
	alarmMedia string
}

// NewManager wires the state machine to its collaborators.
func NewManager(
	timers *store.Store,
	bus *event.Broadcaster,
	announcer Announcer,
	display Display,
	defaultSnooze time.Duration,
	alarmMedia string,
) *Manager {
	return &Manager{
		devices:       make(map[string]*deviceAlarm),
		timers:        timers,
		bus:           bus,
		announcer:     announcer,
		display:       display,
		defaultSnooze: defaultSnooze,
		alarmMedia:    alarmMedia,
	}
}

// State returns the device's current alarm state.
func (m *Manager) State(deviceID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.devices[deviceID]; ok {
		return d.state
	}

	return StateIdle
}

// AlarmingTimer returns the id of the timer ringing on the device, if any.
func (m *Manager) AlarmingTimer(deviceID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.devices[deviceID]; ok && d.state == StateAlarming {
		return d.timerID, true
	}

	return "", false
}

// Run consumes lifecycle events until the context is done. Expiry events
// start the alarm; snooze/dismiss request events route to the transitions.
// Duplicate deliveries are absorbed by the idempotent transitions.
func (m *Manager) Run(ctx context.Context) {
	ctx = logger.WithName(ctx, "lifecycle")

	sub := m.bus.Subscribe()
	if sub == nil {
		return
	}

	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C():
			if !ok {
				return
			}

			m.dispatch(ctx, e)
		}
	}
}

// dispatch routes one event to its transition.
func (m *Manager) dispatch(ctx context.Context, e event.Event) {
	var err error

	switch e.Kind {
	case event.KindExpired:
		err = m.HandleExpiry(ctx, e)
	case event.KindSnoozeRequested:
		_, err = m.Snooze(ctx, e.DeviceID, 0)
	case event.KindDismissRequested:
		_, err = m.Dismiss(ctx, e.DeviceID)
	default:
		return
	}

	if err != nil {
		logger.WarnKV(ctx, "Lifecycle transition failed",
			"kind", e.Kind, "device_id", e.DeviceID, "timer_id", e.TimerID, "error", err)
	}
}

// HandleExpiry flips the device into alarming and requests playback and the
// alarm indicator. Command timers route elsewhere and never ring. Re-delivery
// of the same expiry is a no-op. Downstream failures are reported as
// timer.ErrDownstreamFailed; the device still ends up alarming because the
// state change, not the presentation, is the source of truth.
func (m *Manager) HandleExpiry(ctx context.Context, e event.Event) error {
	if e.Class == timer.ClassCommand {
		return nil
	}

	m.mu.Lock()

	d, ok := m.devices[e.DeviceID]
	if ok && d.state == StateAlarming && d.timerID == e.TimerID {
		m.mu.Unlock()

		return nil
	}

	m.devices[e.DeviceID] = &deviceAlarm{state: StateAlarming, timerID: e.TimerID}
	m.mu.Unlock()

	logger.InfoKV(ctx, "Device alarming",
		"device_id", e.DeviceID, "timer_id", e.TimerID, "class", e.Class)

	var downstream error

	if err := m.announcer.Play(ctx, e.DeviceID, m.alarmMedia); err != nil {
		logger.ErrorKV(ctx, "Failed to start alarm audio", "device_id", e.DeviceID, "error", err)
		downstream = err
	}

	if err := m.display.ShowAlarm(ctx, e.DeviceID, e.TimerID); err != nil {
		logger.ErrorKV(ctx, "Failed to show alarm indicator", "device_id", e.DeviceID, "error", err)
		downstream = err
	}

	if downstream != nil {
		return fmt.Errorf("%w: %w", timer.ErrDownstreamFailed, downstream)
	}

	return nil
}

// Dismiss returns the device to idle, stops audio, clears the indicator and
// terminally cancels the dismissed timer. Dismissing an idle device reports
// false without error, which is what makes a lost dismiss/snooze race safe.
func (m *Manager) Dismiss(ctx context.Context, deviceID string) (bool, error) {
	m.mu.Lock()

	d, ok := m.devices[deviceID]
	if !ok || d.state != StateAlarming {
		m.mu.Unlock()

		return false, nil
	}

	timerID := d.timerID
	d.state = StateIdle
	d.timerID = ""
	m.mu.Unlock()

	downstream := m.quiesce(ctx, deviceID)

	dismissed, err := m.timers.Update(ctx, timerID, func(t *timer.Timer) error {
		if t.Status == timer.StatusCanceled {
			return nil
		}

		t.Status = timer.StatusCanceled

		return nil
	})
	if err != nil {
		logger.WarnKV(ctx, "Failed to mark dismissed timer canceled",
			"timer_id", timerID, "error", err)
	}

	logger.InfoKV(ctx, "Alarm dismissed", "device_id", deviceID, "timer_id", timerID)

	published := event.Event{
		Kind:     event.KindDismissed,
		DeviceID: deviceID,
		TimerID:  timerID,
	}
	if dismissed != nil {
		published.Class = dismissed.Class
		published.Name = dismissed.Name
		published.ExpiresAt = dismissed.ExpiresAt
	}

	m.bus.Publish(ctx, published)

	if downstream != nil {
		return true, fmt.Errorf("%w: %w", timer.ErrDownstreamFailed, downstream)
	}

	return true, nil
}

// Snooze stops the ringing alarm and creates a replacement timer expiring at
// now + d (the configured default when d is zero or negative). The
// replacement carries the original's name and class, or the snoozed-alarm
// label when unnamed, with the snooze counter incremented. The original
// timer stays expired and never fires again. Snoozing an idle device returns
// nil without error.
func (m *Manager) Snooze(ctx context.Context, deviceID string, d time.Duration) (*timer.Timer, error) {
	if d <= 0 {
		d = m.defaultSnooze
	}

	m.mu.Lock()

	dev, ok := m.devices[deviceID]
	if !ok || dev.state != StateAlarming {
		m.mu.Unlock()

		return nil, nil
	}

	timerID := dev.timerID
	dev.state = StateIdle
	dev.timerID = ""
	m.mu.Unlock()

	downstream := m.quiesce(ctx, deviceID)

	original, ok := m.timers.Get(ctx, timerID)
	if !ok {
		return nil, fmt.Errorf("snooze %s: %w", timerID, timer.ErrNotFound)
	}

	name := original.Name
	if name == "" {
		name = SnoozedAlarmName
	}

	replacement, err := m.timers.Create(ctx, store.CreateParams{
		DeviceID:         deviceID,
		Class:            original.Class,
		Name:             name,
		SpokenSentence:   original.SpokenSentence,
		Spec:             timespec.Interval(d),
		PreExpireWarning: original.PreExpireWarning,
		SnoozeCount:      original.SnoozeCount + 1,
		Snoozed:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("create snooze replacement: %w", err)
	}

	// Re-arm the replacement: snoozed -> scheduled triggers the scheduler hook.
	replacement, err = m.timers.Update(ctx, replacement.ID, func(t *timer.Timer) error {
		t.Status = timer.StatusScheduled

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("arm snooze replacement: %w", err)
	}

	logger.InfoKV(ctx, "Alarm snoozed",
		"device_id", deviceID, "timer_id", timerID,
		"replacement_id", replacement.ID, "expires_at", replacement.ExpiresAt)

	m.bus.Publish(ctx, event.Event{
		Kind:      event.KindSnoozed,
		DeviceID:  deviceID,
		TimerID:   replacement.ID,
		Class:     replacement.Class,
		Name:      replacement.Name,
		ExpiresAt: replacement.ExpiresAt,
	})

	if downstream != nil {
		return replacement, fmt.Errorf("%w: %w", timer.ErrDownstreamFailed, downstream)
	}

	return replacement, nil
}

// quiesce stops audio and clears the indicator. Both collaborators must be
// idempotent: the loser of a dismiss/snooze race may call them again after
// they already ran.
func (m *Manager) quiesce(ctx context.Context, deviceID string) error {
	var downstream error

	if err := m.announcer.Stop(ctx, deviceID); err != nil {
		logger.ErrorKV(ctx, "Failed to stop alarm audio", "device_id", deviceID, "error", err)
		downstream = err
	}

	if err := m.display.ClearAlarm(ctx, deviceID); err != nil {
		logger.ErrorKV(ctx, "Failed to clear alarm indicator", "device_id", deviceID, "error", err)
		downstream = err
	}

	return downstream
}
