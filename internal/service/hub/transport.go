package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oshokin/satellite-timers/internal/api/ws"
	"github.com/oshokin/satellite-timers/internal/domain/timer"
	"github.com/oshokin/satellite-timers/internal/domain/timespec"
)

// setTimerPayload is the set_timer wire request. Duration-style requests
// carry duration_seconds; clock-style requests carry hour/minute/second with
// optional meridiem and day qualifiers. Exactly one style must be present.
type setTimerPayload struct {
	DeviceID string `json:"device_id"`
	Class    string `json:"type"`
	Name     string `json:"name"`
	Sentence string `json:"sentence"`

	DurationSeconds float64 `json:"duration_seconds"`

	Hour     *int   `json:"hour"`
	Minute   int    `json:"minute"`
	Second   int    `json:"second"`
	Meridiem string `json:"meridiem"`
	Day      string `json:"day"`
}

// setTimerResult is the set_timer wire response.
type setTimerResult struct {
	TimerID   string    `json:"timer_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Duplicate bool      `json:"duplicate,omitempty"`
}

// cancelTimerPayload is the cancel_timer wire request.
type cancelTimerPayload struct {
	TimerID     string `json:"timer_id"`
	DeviceID    string `json:"device_id"`
	RemoveAll   bool   `json:"remove_all"`
	JustExpired bool   `json:"just_expired"`
}

// cancelTimerResult is the cancel_timer wire response.
type cancelTimerResult struct {
	Canceled bool `json:"canceled"`
	Count    int  `json:"count"`
}

// getTimersPayload is the get_timers wire request.
type getTimersPayload struct {
	DeviceID string `json:"device_id"`
	TimerID  string `json:"timer_id"`
}

// alarmActionPayload serves snooze_alarm and dismiss_alarm.
type alarmActionPayload struct {
	DeviceID        string  `json:"device_id"`
	Name            string  `json:"name"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// snoozeResult is the snooze_alarm wire response.
type snoozeResult struct {
	TimerID     string    `json:"timer_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	SnoozeCount int       `json:"snooze_count"`
}

// dismissResult is the dismiss_alarm wire response.
type dismissResult struct {
	Dismissed bool `json:"dismissed"`
}

// timeRemainingPayload is the time_remaining wire request.
type timeRemainingPayload struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
}

// timeRemainingResult is the time_remaining wire response.
type timeRemainingResult struct {
	TimerID string `json:"timer_id"`
	Text    string `json:"text"`
	Speak   string `json:"speak"`
	Seconds int    `json:"seconds"`
}

// Handlers builds the websocket dispatch table over the service. Every
// handler decodes its typed payload, validates required fields at the
// boundary and delegates to the corresponding operation.
func (s *Service) Handlers() map[string]ws.Handler {
	return map[string]ws.Handler{
		ws.CommandSetTimer:      s.handleSetTimer,
		ws.CommandCancelTimer:   s.handleCancelTimer,
		ws.CommandGetTimers:     s.handleGetTimers,
		ws.CommandSnoozeAlarm:   s.handleSnoozeAlarm,
		ws.CommandDismissAlarm:  s.handleDismissAlarm,
		ws.CommandTimeRemaining: s.handleTimeRemaining,
	}
}

// decode unmarshals a wire payload, mapping malformed JSON onto the
// invalid_request code.
func decode[T any](data json.RawMessage) (T, error) {
	var payload T

	if len(data) == 0 {
		return payload, nil
	}

	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("%w: %w", ws.ErrInvalidRequest, err)
	}

	return payload, nil
}

func (s *Service) handleSetTimer(ctx context.Context, data json.RawMessage) (any, error) {
	payload, err := decode[setTimerPayload](data)
	if err != nil {
		return nil, err
	}

	if payload.DeviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ws.ErrInvalidRequest)
	}

	class, err := timer.ParseClass(payload.Class)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ws.ErrInvalidRequest, err)
	}

	spec, err := payload.spec()
	if err != nil {
		return nil, err
	}

	resp, err := s.SetTimer(ctx, SetTimerRequest{
		DeviceID:       payload.DeviceID,
		Class:          class,
		Name:           payload.Name,
		SpokenSentence: payload.Sentence,
		Spec:           spec,
	})
	if err != nil {
		return nil, err
	}

	return setTimerResult{
		TimerID:   resp.TimerID,
		ExpiresAt: resp.ExpiresAt,
		Duplicate: resp.Duplicate,
	}, nil
}

// spec derives the time specification from the payload's style.
func (p setTimerPayload) spec() (timespec.Spec, error) {
	if p.DurationSeconds > 0 {
		if p.Hour != nil {
			return timespec.Spec{}, fmt.Errorf(
				"%w: duration_seconds and hour are mutually exclusive", ws.ErrInvalidRequest)
		}

		return timespec.Interval(time.Duration(p.DurationSeconds * float64(time.Second))), nil
	}

	if p.Hour == nil {
		return timespec.Spec{}, fmt.Errorf(
			"%w: either duration_seconds or hour is required", ws.ErrInvalidRequest)
	}

	return timespec.Clock(*p.Hour, p.Minute, p.Second, p.Meridiem, p.Day), nil
}

func (s *Service) handleCancelTimer(ctx context.Context, data json.RawMessage) (any, error) {
	payload, err := decode[cancelTimerPayload](data)
	if err != nil {
		return nil, err
	}

	if payload.TimerID == "" && payload.DeviceID == "" {
		return nil, fmt.Errorf("%w: timer_id or device_id is required", ws.ErrInvalidRequest)
	}

	resp, err := s.CancelTimer(ctx, CancelTimerRequest{
		TimerID:     payload.TimerID,
		DeviceID:    payload.DeviceID,
		RemoveAll:   payload.RemoveAll,
		JustExpired: payload.JustExpired,
	})
	if err != nil {
		return nil, err
	}

	return cancelTimerResult{Canceled: resp.Canceled, Count: resp.Count}, nil
}

func (s *Service) handleGetTimers(ctx context.Context, data json.RawMessage) (any, error) {
	payload, err := decode[getTimersPayload](data)
	if err != nil {
		return nil, err
	}

	resp, err := s.GetTimers(ctx, GetTimersRequest{
		DeviceID: payload.DeviceID,
		TimerID:  payload.TimerID,
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (s *Service) handleSnoozeAlarm(ctx context.Context, data json.RawMessage) (any, error) {
	payload, err := decode[alarmActionPayload](data)
	if err != nil {
		return nil, err
	}

	if payload.DeviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ws.ErrInvalidRequest)
	}

	resp, err := s.SnoozeAlarm(ctx, SnoozeAlarmRequest{
		DeviceID: payload.DeviceID,
		Fragment: payload.Name,
		Duration: time.Duration(payload.DurationSeconds * float64(time.Second)),
	})
	if err != nil {
		return nil, err
	}

	return snoozeResult{
		TimerID:     resp.TimerID,
		ExpiresAt:   resp.ExpiresAt,
		SnoozeCount: resp.SnoozeCount,
	}, nil
}

func (s *Service) handleDismissAlarm(ctx context.Context, data json.RawMessage) (any, error) {
	payload, err := decode[alarmActionPayload](data)
	if err != nil {
		return nil, err
	}

	if payload.DeviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ws.ErrInvalidRequest)
	}

	resp, err := s.DismissAlarm(ctx, DismissAlarmRequest{
		DeviceID: payload.DeviceID,
		Fragment: payload.Name,
	})
	if err != nil {
		return nil, err
	}

	return dismissResult{Dismissed: resp.Dismissed}, nil
}

func (s *Service) handleTimeRemaining(ctx context.Context, data json.RawMessage) (any, error) {
	payload, err := decode[timeRemainingPayload](data)
	if err != nil {
		return nil, err
	}

	if payload.DeviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ws.ErrInvalidRequest)
	}

	resp, err := s.TimeRemaining(ctx, TimeRemainingRequest{
		DeviceID: payload.DeviceID,
		Fragment: payload.Name,
	})
	if err != nil {
		return nil, err
	}

	return timeRemainingResult{
		TimerID: resp.TimerID,
		Text:    resp.Text,
		Speak:   resp.Speak,
		Seconds: resp.Seconds,
	}, nil
}
