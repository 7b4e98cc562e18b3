package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/oshokin/satellite-timers/internal/countdown"
	"github.com/oshokin/satellite-timers/internal/domain/timer"
	"github.com/oshokin/satellite-timers/internal/domain/timespec"
	"github.com/oshokin/satellite-timers/internal/event"
	"github.com/oshokin/satellite-timers/internal/lifecycle"
	"github.com/oshokin/satellite-timers/internal/logger"
	"github.com/oshokin/satellite-timers/internal/match"
	"github.com/oshokin/satellite-timers/internal/store"
)

// ErrMissingTarget is returned when a cancel request names neither a timer
// nor a device.
var ErrMissingTarget = errors.New("timer_id or device_id must be provided")

// errNoRingingAlarm is the cause reported when a snooze targets an idle device.
var errNoRingingAlarm = fmt.Errorf("no alarm is ringing: %w", timer.ErrNotFound)

// Service orchestrates the store, scheduler, matcher, lifecycle, broadcaster
// and projector behind the typed request operations exposed to transports.
type Service struct {
	// timers is the authoritative store; arming goes through its hook.
	timers *store.Store
	// alarms is the per-device alarm state machine.
	alarms *lifecycle.Manager
	// bus publishes started/canceled events for observers.
	bus *event.Broadcaster
	// projector renders expiry instants for timer views.
	projector *countdown.Projector
	// preExpireWarning is the warning lead applied to new timers.
	preExpireWarning time.Duration
	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewService wires the hub service to its collaborators.
func NewService(
	timers *store.Store,
	alarms *lifecycle.Manager,
	bus *event.Broadcaster,
	projector *countdown.Projector,
	preExpireWarning time.Duration,
) *Service {
	return &Service{
		timers:           timers,
		alarms:           alarms,
		bus:              bus,
		projector:        projector,
		preExpireWarning: preExpireWarning,
		now:              time.Now,
	}
}

// SetTimerRequest creates a timer, alarm, reminder or scheduled command.
type SetTimerRequest struct {
	// DeviceID is the owning satellite. Required.
	DeviceID string
	// Class is the timer category. Required.
	Class timer.Class
	// Name is the optional spoken label.
	Name string
	// SpokenSentence is the phrase fragment the request came from.
	SpokenSentence string
	// Spec is the already-parsed time specification.
	Spec timespec.Spec
}

// SetTimerResponse reports the created (or already-existing) timer.
type SetTimerResponse struct {
	// TimerID identifies the timer serving this request.
	TimerID string
	// ExpiresAt is the resolved expiry instant.
	ExpiresAt time.Time
	// Duplicate is true when an identical scheduled timer already existed
	// and no new one was created.
	Duplicate bool
}

// SetTimer validates the request, suppresses exact duplicates (same device,
// same expiry instant, still scheduled) and creates and arms the timer.
func (s *Service) SetTimer(ctx context.Context, req SetTimerRequest) (SetTimerResponse, error) {
	expiresAt, err := req.Spec.Resolve(s.now())
	if err != nil {
		return SetTimerResponse{}, err
	}

	if existing := s.timers.FindDuplicate(ctx, req.DeviceID, expiresAt); existing != nil {
		logger.InfoKV(ctx, "Duplicate timer suppressed",
			"device_id", req.DeviceID, "timer_id", existing.ID, "expires_at", expiresAt)

		return SetTimerResponse{
			TimerID:   existing.ID,
			ExpiresAt: existing.ExpiresAt,
			Duplicate: true,
		}, nil
	}

	created, err := s.timers.Create(ctx, store.CreateParams{
		DeviceID:         req.DeviceID,
		Class:            req.Class,
		Name:             req.Name,
		SpokenSentence:   req.SpokenSentence,
		Spec:             req.Spec,
		PreExpireWarning: s.preExpireWarning,
	})
	if err != nil {
		return SetTimerResponse{}, err
	}

	s.bus.Publish(ctx, event.Event{
		Kind:      event.KindStarted,
		DeviceID:  created.DeviceID,
		TimerID:   created.ID,
		Class:     created.Class,
		Name:      created.Name,
		ExpiresAt: created.ExpiresAt,
	})

	return SetTimerResponse{TimerID: created.ID, ExpiresAt: created.ExpiresAt}, nil
}

// CancelTimerRequest cancels one timer by id or a device's timers in bulk.
type CancelTimerRequest struct {
	// TimerID cancels a single timer. Optional when DeviceID is set.
	TimerID string
	// DeviceID scopes a bulk cancel. Optional when TimerID is set.
	DeviceID string
	// RemoveAll cancels every non-terminal timer on the device, including
	// ones already ringing.
	RemoveAll bool
	// JustExpired cancels only timers currently in expired status. Used by
	// the "stop ringing everywhere" control.
	JustExpired bool
}

// CancelTimerResponse reports whether anything was canceled.
type CancelTimerResponse struct {
	// Canceled is true when at least one timer changed state.
	Canceled bool
	// Count is the number of timers canceled.
	Count int
}

// CancelTimer cancels timers and publishes a canceled event for each one
// that actually changed state. Cancelling an absent or already-canceled
// timer is a quiet no-op with Canceled=false.
func (s *Service) CancelTimer(ctx context.Context, req CancelTimerRequest) (CancelTimerResponse, error) {
	if req.TimerID == "" && req.DeviceID == "" {
		return CancelTimerResponse{}, ErrMissingTarget
	}

	var ids []string

	switch {
	case req.TimerID != "":
		ids = []string{req.TimerID}
	case req.JustExpired:
		ids = s.collectIDs(ctx, store.Filter{
			DeviceID: req.DeviceID,
			Statuses: []timer.Status{timer.StatusExpired},
		})
	case req.RemoveAll:
		ids = s.collectIDs(ctx, store.Filter{
			DeviceID: req.DeviceID,
			Statuses: []timer.Status{timer.StatusScheduled, timer.StatusSnoozed, timer.StatusExpired},
		})
	default:
		ids = s.collectIDs(ctx, store.Filter{
			DeviceID: req.DeviceID,
			Statuses: store.ActiveStatuses(),
		})
	}

	var count int

	for _, id := range ids {
		t, _ := s.timers.Get(ctx, id)

		if !s.timers.Cancel(ctx, id) {
			continue
		}

		count++

		published := event.Event{Kind: event.KindCanceled, TimerID: id, DeviceID: req.DeviceID}
		if t != nil {
			published.DeviceID = t.DeviceID
			published.Class = t.Class
			published.Name = t.Name
			published.ExpiresAt = t.ExpiresAt
		}

		s.bus.Publish(ctx, published)
	}

	return CancelTimerResponse{Canceled: count > 0, Count: count}, nil
}

// collectIDs snapshots the ids matching the filter. Cancel mutates the
// store, so the lazy sequence is drained before any mutation starts.
func (s *Service) collectIDs(ctx context.Context, f store.Filter) []string {
	var ids []string

	for t := range s.timers.List(ctx, f) {
		ids = append(ids, t.ID)
	}

	return ids
}

// GetTimersRequest lists timers for display.
type GetTimersRequest struct {
	// DeviceID limits the listing to one satellite. Optional.
	DeviceID string
	// TimerID fetches a single timer regardless of status. Optional.
	TimerID string
}

// Expiry is the display-facing rendering of a timer's expiry instant.
type Expiry struct {
	// Text is the full human phrase.
	Text string `json:"text"`
	// Day labels the expiry day ("Today", "Tomorrow", a weekday, a date).
	Day string `json:"day"`
	// Clock is the formatted clock time.
	Clock string `json:"clock"`
	// Instant is the raw expiry for live-counting displays.
	Instant time.Time `json:"instant"`
	// Seconds is the whole seconds remaining, rounded up.
	Seconds int `json:"seconds"`
}

// TimerView is one row of a get_timers response.
type TimerView struct {
	ID          string      `json:"id"`
	DeviceID    string      `json:"device_id"`
	Class       timer.Class `json:"class"`
	Name        string      `json:"name"`
	Status      string      `json:"status"`
	SnoozeCount int         `json:"snooze_count"`
	Expiry      Expiry      `json:"expiry"`
}

// GetTimersResponse carries timer views sorted by remaining time.
type GetTimersResponse struct {
	Timers []TimerView `json:"timers"`
}

// GetTimers renders the device's active timers (or one specific timer, any
// status) sorted by seconds remaining.
func (s *Service) GetTimers(ctx context.Context, req GetTimersRequest) (GetTimersResponse, error) {
	now := s.now()

	var views []TimerView

	if req.TimerID != "" {
		t, ok := s.timers.Get(ctx, req.TimerID)
		if !ok {
			return GetTimersResponse{}, fmt.Errorf("timer %s: %w", req.TimerID, timer.ErrNotFound)
		}

		return GetTimersResponse{Timers: []TimerView{s.view(t, now)}}, nil
	}

	filter := store.Filter{DeviceID: req.DeviceID, Statuses: store.ActiveStatuses()}
	for t := range s.timers.List(ctx, filter) {
		views = append(views, s.view(t, now))
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Expiry.Seconds < views[j].Expiry.Seconds
	})

	return GetTimersResponse{Timers: views}, nil
}

// view renders one timer row.
func (s *Service) view(t *timer.Timer, now time.Time) TimerView {
	proj := s.projector.Project(t, now)

	return TimerView{
		ID:          t.ID,
		DeviceID:    t.DeviceID,
		Class:       t.Class,
		Name:        t.Name,
		Status:      string(t.Status),
		SnoozeCount: t.SnoozeCount,
		Expiry: Expiry{
			Text:    proj.Text,
			Day:     proj.Day,
			Clock:   proj.Clock,
			Instant: proj.Instant,
			Seconds: proj.Seconds,
		},
	}
}

// SnoozeAlarmRequest postpones the alarm ringing on a device.
type SnoozeAlarmRequest struct {
	// DeviceID is the satellite whose alarm is ringing. Required.
	DeviceID string
	// Fragment optionally targets the ringing alarm by name; a mismatch is
	// reported instead of snoozing an unrelated alarm.
	Fragment string
	// Duration overrides the configured snooze delay when positive.
	Duration time.Duration
}

// SnoozeAlarmResponse reports the replacement timer.
type SnoozeAlarmResponse struct {
	// TimerID is the replacement's id.
	TimerID string
	// ExpiresAt is when the replacement will ring.
	ExpiresAt time.Time
	// SnoozeCount is the replacement's cumulative snooze counter.
	SnoozeCount int
}

// SnoozeAlarm routes a snooze through the alarm lifecycle. With a fragment,
// the ringing alarm must match it; ambiguity among the device's expired
// timers is surfaced with all candidates.
func (s *Service) SnoozeAlarm(ctx context.Context, req SnoozeAlarmRequest) (SnoozeAlarmResponse, error) {
	if err := s.checkFragmentTarget(ctx, req.DeviceID, req.Fragment); err != nil {
		return SnoozeAlarmResponse{}, err
	}

	replacement, err := s.alarms.Snooze(ctx, req.DeviceID, req.Duration)
	if err != nil {
		return SnoozeAlarmResponse{}, err
	}

	if replacement == nil {
		return SnoozeAlarmResponse{}, errNoRingingAlarm
	}

	return SnoozeAlarmResponse{
		TimerID:     replacement.ID,
		ExpiresAt:   replacement.ExpiresAt,
		SnoozeCount: replacement.SnoozeCount,
	}, nil
}

// DismissAlarmRequest stops the alarm ringing on a device.
type DismissAlarmRequest struct {
	// DeviceID is the satellite whose alarm is ringing. Required.
	DeviceID string
	// Fragment optionally targets the ringing alarm by name.
	Fragment string
}

// DismissAlarmResponse reports whether an alarm was actually ringing.
type DismissAlarmResponse struct {
	// Dismissed is false when the device was already idle.
	Dismissed bool
}

// DismissAlarm routes a dismiss through the alarm lifecycle. Dismissing an
// idle device is an idempotent no-op.
func (s *Service) DismissAlarm(ctx context.Context, req DismissAlarmRequest) (DismissAlarmResponse, error) {
	if err := s.checkFragmentTarget(ctx, req.DeviceID, req.Fragment); err != nil {
		return DismissAlarmResponse{}, err
	}

	dismissed, err := s.alarms.Dismiss(ctx, req.DeviceID)
	if err != nil {
		return DismissAlarmResponse{Dismissed: dismissed}, err
	}

	return DismissAlarmResponse{Dismissed: dismissed}, nil
}

// checkFragmentTarget verifies that a name fragment, when present, resolves
// to the alarm currently ringing on the device. Resolution runs over the
// device's expired timers so a fragment naming a still-scheduled timer
// reports NoMatch rather than silencing the wrong alarm.
func (s *Service) checkFragmentTarget(ctx context.Context, deviceID, fragment string) error {
	if fragment == "" {
		return nil
	}

	resolved, err := match.Resolve(s.snapshot(ctx, store.Filter{
		DeviceID: deviceID,
		Statuses: []timer.Status{timer.StatusExpired},
	}), fragment)
	if err != nil {
		return err
	}

	ringing, ok := s.alarms.AlarmingTimer(deviceID)
	if !ok || resolved.ID != ringing {
		return fmt.Errorf("%q is not the ringing alarm: %w", fragment, timer.ErrNotFound)
	}

	return nil
}

// TimeRemainingRequest asks how long until a timer fires.
type TimeRemainingRequest struct {
	// DeviceID is the satellite that owns the timer. Required.
	DeviceID string
	// Fragment is the spoken name fragment. Empty resolves only when the
	// device has exactly one active timer.
	Fragment string
}

// TimeRemainingResponse is the spoken and displayed remaining time.
type TimeRemainingResponse struct {
	// TimerID is the resolved timer.
	TimerID string
	// Text is the display phrase.
	Text string
	// Speak is the voice-response sentence.
	Speak string
	// Seconds is the whole seconds remaining.
	Seconds int
}

// TimeRemaining resolves a fragment against the device's active timers and
// renders the remaining time. Zero matches report NoMatch; several report
// Ambiguous with all candidates.
func (s *Service) TimeRemaining(ctx context.Context, req TimeRemainingRequest) (TimeRemainingResponse, error) {
	candidates := s.snapshot(ctx, store.Filter{
		DeviceID: req.DeviceID,
		Statuses: store.ActiveStatuses(),
	})

	var (
		resolved *timer.Timer
		err      error
	)

	if req.Fragment == "" {
		// Bare "how much time is left" works only with a single active timer.
		if len(candidates) != 1 {
			return TimeRemainingResponse{}, resolveBare(candidates)
		}

		resolved = candidates[0]
	} else {
		resolved, err = match.Resolve(candidates, req.Fragment)
		if err != nil {
			return TimeRemainingResponse{}, err
		}
	}

	proj := s.projector.Project(resolved, s.now())

	return TimeRemainingResponse{
		TimerID: resolved.ID,
		Text:    proj.Text,
		Speak:   proj.Speak,
		Seconds: proj.Seconds,
	}, nil
}

// resolveBare reports why a fragment-less lookup could not resolve.
func resolveBare(candidates []*timer.Timer) error {
	if len(candidates) == 0 {
		return timer.ErrNoMatch
	}

	return &timer.AmbiguousError{Candidates: candidates}
}

// snapshot drains a filtered listing into a slice for the matcher.
func (s *Service) snapshot(ctx context.Context, f store.Filter) []*timer.Timer {
	var out []*timer.Timer

	for t := range s.timers.List(ctx, f) {
		out = append(out, t)
	}

	return out
}
