package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oshokin/satellite-timers/internal/event"
	"github.com/oshokin/satellite-timers/internal/logger"
)

// Handler serves one command. The payload is the raw request data; the
// result is marshaled into the response envelope.
type Handler func(ctx context.Context, data json.RawMessage) (any, error)

const (
	// writeWait is the deadline for a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is dropped.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize bounds inbound request frames.
	maxMessageSize = 4096
	// sendBufferSize bounds the per-session outbound queue.
	sendBufferSize = 64
	// readBufferSize and writeBufferSize size the upgrader's buffers.
	readBufferSize  = 1024
	writeBufferSize = 1024
)

// Server is the websocket endpoint satellites and dashboards talk to. It
// dispatches request frames over a closed command set and fans broadcaster
// events out to subscribed sessions. It also implements the lifecycle's
// Announcer and Display contracts by pushing directed frames to the
// sessions subscribed to a device.
type Server struct {
	// handlers is the dispatch table for service-backed commands.
	handlers map[string]Handler
	// bus supplies the events fanned out to subscribers.
	bus *event.Broadcaster
	// upgrader promotes HTTP requests to websocket connections.
	upgrader websocket.Upgrader

	// mu protects sessions.
	mu sync.RWMutex
	// sessions is the set of live connections.
	sessions map[*session]struct{}
}

// NewServer builds the endpoint and checks the dispatch table against the
// closed command set. A missing or unknown command is a programming error
// and panics at construction, not at request time.
func NewServer(handlers map[string]Handler, bus *event.Broadcaster) *Server {
	known := make(map[string]struct{}, len(Commands()))
	for _, cmd := range Commands() {
		known[cmd] = struct{}{}
	}

	for cmd := range handlers {
		if _, ok := known[cmd]; !ok {
			panic(fmt.Sprintf("ws: handler registered for unknown command %q", cmd))
		}
	}

	for _, cmd := range Commands() {
		// Subscriptions mutate the session registry, so the server owns
		// that handler itself.
		if cmd == CommandSubscribeEvents {
			continue
		}

		if _, ok := handlers[cmd]; !ok {
			panic(fmt.Sprintf("ws: no handler for command %q", cmd))
		}
	}

	return &Server{
		handlers: handlers,
		bus:      bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			// Satellites are not browsers; origin checks do not apply.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[*session]struct{}),
	}
}

// Handler returns the HTTP handler exposing the /ws endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)

	return mux
}

// serveWS upgrades one HTTP request and starts the session pumps.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithName(r.Context(), "ws")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnKV(ctx, "Websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)

		return
	}

	sess := &session{
		server:  s,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		devices: make(map[string]struct{}),
	}

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	total := len(s.sessions)
	s.mu.Unlock()

	logger.InfoKV(ctx, "Satellite connected", "remote_addr", r.RemoteAddr, "sessions", total)

	go sess.writePump()
	go sess.readPump(context.WithoutCancel(ctx))
}

// drop removes a session from the registry and closes its outbound queue.
func (s *Server) drop(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess]; !ok {
		return
	}

	delete(s.sessions, sess)
	close(sess.send)
}

// Run fans broadcaster events out to subscribed sessions until the context
// is done.
func (s *Server) Run(ctx context.Context) {
	ctx = logger.WithName(ctx, "ws")

	sub := s.bus.Subscribe()
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

			s.pushEvent(ctx, viewOf(e))
		}
	}
}

// viewOf converts a broadcaster event to its wire form.
func viewOf(e event.Event) eventView {
	return eventView{
		Kind:      string(e.Kind),
		DeviceID:  e.DeviceID,
		TimerID:   e.TimerID,
		Class:     string(e.Class),
		Name:      e.Name,
		ExpiresAt: e.ExpiresAt,
		Command:   e.Command,
		Extra:     e.Extra,
	}
}

// pushEvent delivers an event frame to every session subscribed to its
// device (or to all devices).
func (s *Server) pushEvent(ctx context.Context, view eventView) {
	frame, err := json.Marshal(pushEnvelope{Type: envelopeTypeEvent, Data: view})
	if err != nil {
		logger.Errorf(ctx, "Failed to marshal event frame: %v", err)

		return
	}

	var slow []*session

	s.mu.RLock()

	for sess := range s.sessions {
		if !sess.watches(view.DeviceID) {
			continue
		}

		select {
		case sess.send <- frame:
		default:
			slow = append(slow, sess)
		}
	}

	s.mu.RUnlock()

	// A stuck satellite must not block the fan-out. Closing the queue
	// terminates its write pump.
	for _, sess := range slow {
		logger.Warn(ctx, "Dropping slow websocket session")
		s.drop(sess)
	}
}

// pushToDevice delivers a directed frame, failing when no session is
// subscribed to the device. That failure is what surfaces an offline
// satellite as a downstream error.
func (s *Server) pushToDevice(deviceID string, view eventView) error {
	frame, err := json.Marshal(pushEnvelope{Type: envelopeTypeEvent, Data: view})
	if err != nil {
		return fmt.Errorf("marshal push frame: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	delivered := 0

	for sess := range s.sessions {
		if !sess.watches(deviceID) {
			continue
		}

		select {
		case sess.send <- frame:
			delivered++
		default:
		}
	}

	if delivered == 0 {
		return fmt.Errorf("device %s has no connected session", deviceID)
	}

	return nil
}

// Play pushes a play-media frame to the device's sessions.
func (s *Server) Play(_ context.Context, deviceID, mediaRef string) error {
	return s.pushToDevice(deviceID, eventView{
		Kind:     pushPlayMedia,
		DeviceID: deviceID,
		Command:  mediaRef,
	})
}

// Stop pushes a stop-media frame to the device's sessions.
func (s *Server) Stop(_ context.Context, deviceID string) error {
	return s.pushToDevice(deviceID, eventView{Kind: pushStopMedia, DeviceID: deviceID})
}

// ShowAlarm pushes an alarm-indicator frame to the device's sessions.
func (s *Server) ShowAlarm(_ context.Context, deviceID, timerID string) error {
	return s.pushToDevice(deviceID, eventView{
		Kind:     pushShowAlarm,
		DeviceID: deviceID,
		TimerID:  timerID,
	})
}

// ClearAlarm pushes a clear-indicator frame to the device's sessions.
func (s *Server) ClearAlarm(_ context.Context, deviceID string) error {
	return s.pushToDevice(deviceID, eventView{Kind: pushClearAlarm, DeviceID: deviceID})
}

// Close terminates every live session. Used during graceful shutdown after
// the HTTP listener stops accepting upgrades.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sess := range s.sessions {
		delete(s.sessions, sess)
		close(sess.send)
	}
}
