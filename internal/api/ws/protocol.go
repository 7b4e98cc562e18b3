package ws

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/oshokin/satellite-timers/internal/domain/timer"
)

// Commands accepted over the websocket. The set is closed; the dispatch
// table is checked against it at construction.
const (
	CommandSetTimer        = "set_timer"
	CommandCancelTimer     = "cancel_timer"
	CommandGetTimers       = "get_timers"
	CommandSnoozeAlarm     = "snooze_alarm"
	CommandDismissAlarm    = "dismiss_alarm"
	CommandTimeRemaining   = "time_remaining"
	CommandSubscribeEvents = "subscribe_events"
)

// Commands returns the closed command set.
func Commands() []string {
	return []string{
		CommandSetTimer,
		CommandCancelTimer,
		CommandGetTimers,
		CommandSnoozeAlarm,
		CommandDismissAlarm,
		CommandTimeRemaining,
		CommandSubscribeEvents,
	}
}

// Push kinds for satellite-directed messages that do not originate from the
// lifecycle broadcaster.
const (
	pushPlayMedia  = "play-media"
	pushStopMedia  = "stop-media"
	pushShowAlarm  = "show-alarm"
	pushClearAlarm = "clear-alarm"
)

// envelopeTypeEvent marks unsolicited pushes.
const envelopeTypeEvent = "event"

// ErrInvalidRequest marks boundary validation failures: malformed payloads,
// missing required fields, unknown commands.
var ErrInvalidRequest = errors.New("invalid request")

// requestEnvelope is a client request frame.
type requestEnvelope struct {
	// ID correlates the response; opaque to the server.
	ID string `json:"id"`
	// Type is one of the closed command set.
	Type string `json:"type"`
	// Data is the command payload.
	Data json.RawMessage `json:"data"`
}

// responseEnvelope answers exactly one request frame.
type responseEnvelope struct {
	ID     string        `json:"id"`
	Type   string        `json:"type"`
	Result any           `json:"result,omitempty"`
	Error  *ErrorPayload `json:"error,omitempty"`
}

// pushEnvelope is an unsolicited server-to-client frame.
type pushEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Error codes carried on the wire.
const (
	CodeInvalidTimeSpec  = "invalid_time_spec"
	CodeNotFound         = "not_found"
	CodeAmbiguous        = "ambiguous"
	CodeNoMatch          = "no_match"
	CodeDownstreamFailed = "downstream_failed"
	CodeInvalidRequest   = "invalid_request"
	CodeInternal         = "internal"
)

// Candidate identifies one option of an ambiguous name match.
type Candidate struct {
	TimerID string `json:"timer_id"`
	Name    string `json:"name"`
}

// ErrorPayload is the wire form of a failed request.
type ErrorPayload struct {
	// Code is one of the error codes above.
	Code string `json:"code"`
	// Message is the human-readable cause.
	Message string `json:"message"`
	// Candidates lists the options when Code is ambiguous, so the caller
	// can disambiguate instead of the server picking one.
	Candidates []Candidate `json:"candidates,omitempty"`
}

// errorBody maps a service error onto the wire taxonomy.
func errorBody(err error) *ErrorPayload {
	var ambiguous *timer.AmbiguousError
	if errors.As(err, &ambiguous) {
		candidates := make([]Candidate, 0, len(ambiguous.Candidates))
		for _, t := range ambiguous.Candidates {
			candidates = append(candidates, Candidate{TimerID: t.ID, Name: t.Label()})
		}

		return &ErrorPayload{Code: CodeAmbiguous, Message: err.Error(), Candidates: candidates}
	}

	code := CodeInternal

	switch {
	case errors.Is(err, ErrInvalidRequest):
		code = CodeInvalidRequest
	case errors.Is(err, timer.ErrInvalidTimeSpec):
		code = CodeInvalidTimeSpec
	case errors.Is(err, timer.ErrNoMatch):
		code = CodeNoMatch
	case errors.Is(err, timer.ErrNotFound):
		code = CodeNotFound
	case errors.Is(err, timer.ErrDownstreamFailed):
		code = CodeDownstreamFailed
	}

	return &ErrorPayload{Code: code, Message: err.Error()}
}

// eventView is the wire form of a broadcaster event.
type eventView struct {
	Kind      string            `json:"kind"`
	DeviceID  string            `json:"device_id,omitempty"`
	TimerID   string            `json:"timer_id,omitempty"`
	Class     string            `json:"class,omitempty"`
	Name      string            `json:"name,omitempty"`
	ExpiresAt time.Time         `json:"expires_at,omitzero"`
	Command   string            `json:"command,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}
