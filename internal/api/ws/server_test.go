package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/satellite-timers/internal/domain/timer"
	"github.com/oshokin/satellite-timers/internal/event"
)

// fullHandlers returns a complete dispatch table of echo handlers.
func fullHandlers() map[string]Handler {
	echo := func(_ context.Context, data json.RawMessage) (any, error) {
		if len(data) == 0 {
			return map[string]string{}, nil
		}

		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}

		return payload, nil
	}

	handlers := make(map[string]Handler)

	for _, cmd := range Commands() {
		if cmd == CommandSubscribeEvents {
			continue
		}

		handlers[cmd] = echo
	}

	return handlers
}

// dial starts the server over httptest and opens a client connection.
func dial(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()

	httpServer := httptest.NewServer(srv.Handler())
	t.Cleanup(httpServer.Close)

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

// roundTrip sends one request frame and decodes the response.
func roundTrip(t *testing.T, conn *websocket.Conn, req requestEnvelope) responseEnvelope {
	t.Helper()

	require.NoError(t, conn.WriteJSON(req))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var resp responseEnvelope
	require.NoError(t, conn.ReadJSON(&resp))

	return resp
}

func TestNewServer_PanicsOnMissingHandler(t *testing.T) {
	t.Parallel()

	handlers := fullHandlers()
	delete(handlers, CommandSetTimer)

	require.Panics(t, func() {
		NewServer(handlers, event.NewBroadcaster())
	})
}

func TestNewServer_PanicsOnUnknownCommand(t *testing.T) {
	t.Parallel()

	handlers := fullHandlers()
	handlers["reboot_satellite"] = handlers[CommandGetTimers]

	require.Panics(t, func() {
		NewServer(handlers, event.NewBroadcaster())
	})
}

func TestDispatch_EchoesResult(t *testing.T) {
	t.Parallel()

	bus := event.NewBroadcaster()
	t.Cleanup(bus.Close)

	conn := dial(t, NewServer(fullHandlers(), bus))

	resp := roundTrip(t, conn, requestEnvelope{
		ID:   "req-1",
		Type: CommandGetTimers,
		Data: json.RawMessage(`{"device_id":"kitchen"}`),
	})

	require.Equal(t, "req-1", resp.ID)
	require.Equal(t, CommandGetTimers, resp.Type)
	require.Nil(t, resp.Error)
}

func TestDispatch_UnknownCommand(t *testing.T) {
	t.Parallel()

	bus := event.NewBroadcaster()
	t.Cleanup(bus.Close)

	conn := dial(t, NewServer(fullHandlers(), bus))

	resp := roundTrip(t, conn, requestEnvelope{ID: "req-2", Type: "fly_to_the_moon"})

	require.NotNil(t, resp.Error)
	require.Equal(t, CodeInvalidRequest, resp.Error.Code)
}

func TestDispatch_HandlerError(t *testing.T) {
	t.Parallel()

	bus := event.NewBroadcaster()
	t.Cleanup(bus.Close)

	handlers := fullHandlers()
	handlers[CommandSnoozeAlarm] = func(context.Context, json.RawMessage) (any, error) {
		return nil, timer.ErrNotFound
	}

	conn := dial(t, NewServer(handlers, bus))

	resp := roundTrip(t, conn, requestEnvelope{ID: "req-3", Type: CommandSnoozeAlarm})

	require.NotNil(t, resp.Error)
	require.Equal(t, CodeNotFound, resp.Error.Code)
}

func TestSubscribe_ReceivesDeviceEvents(t *testing.T) {
	t.Parallel()

	bus := event.NewBroadcaster()
	t.Cleanup(bus.Close)

	srv := NewServer(fullHandlers(), bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.Run(ctx)

	conn := dial(t, srv)

	resp := roundTrip(t, conn, requestEnvelope{
		ID:   "sub-1",
		Type: CommandSubscribeEvents,
		Data: json.RawMessage(`{"device_id":"kitchen"}`),
	})
	require.Nil(t, resp.Error)

	bus.Publish(ctx, event.Event{
		Kind:     event.KindExpired,
		DeviceID: "kitchen",
		TimerID:  "t-1",
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var push struct {
		Type string    `json:"type"`
		Data eventView `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&push))
	require.Equal(t, envelopeTypeEvent, push.Type)
	require.Equal(t, string(event.KindExpired), push.Data.Kind)
	require.Equal(t, "t-1", push.Data.TimerID)
}

func TestPushToDevice_NoSession(t *testing.T) {
	t.Parallel()

	bus := event.NewBroadcaster()
	t.Cleanup(bus.Close)

	srv := NewServer(fullHandlers(), bus)

	require.Error(t, srv.Play(context.Background(), "kitchen", "builtin:alarm"))
}

func TestErrorBody_Taxonomy(t *testing.T) {
	t.Parallel()

	require.Equal(t, CodeInvalidTimeSpec, errorBody(timer.ErrInvalidTimeSpec).Code)
	require.Equal(t, CodeNoMatch, errorBody(timer.ErrNoMatch).Code)
	require.Equal(t, CodeNotFound, errorBody(timer.ErrNotFound).Code)
	require.Equal(t, CodeDownstreamFailed, errorBody(timer.ErrDownstreamFailed).Code)
	require.Equal(t, CodeInvalidRequest, errorBody(ErrInvalidRequest).Code)
	require.Equal(t, CodeInternal, errorBody(errors.New("boom")).Code)

	payload := errorBody(&timer.AmbiguousError{
		Fragment: "e",
		Candidates: []*timer.Timer{
			{ID: "t-1", Name: "Coffee"},
			{ID: "t-2", Name: "Tea"},
		},
	})
	require.Equal(t, CodeAmbiguous, payload.Code)
	require.Len(t, payload.Candidates, 2)
	require.Equal(t, "Coffee", payload.Candidates[0].Name)
}
