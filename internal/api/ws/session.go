package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oshokin/satellite-timers/internal/logger"
)

// session is one live websocket connection. Inbound frames are handled on
// the read pump; all outbound traffic funnels through the send queue so the
// write pump is the only writer on the connection.
type session struct {
	server *Server
	conn   *websocket.Conn
	// send is the outbound queue, closed exactly once by Server.drop.
	send chan []byte
	// devices holds the device ids this session subscribed to. Guarded by
	// the server's registry lock, like the all flag below.
	devices map[string]struct{}
	// all means the session receives events for every device.
	all bool
}

// watches reports whether the session subscribed to the device. The caller
// must hold the server's registry lock.
func (c *session) watches(deviceID string) bool {
	if c.all {
		return true
	}

	_, ok := c.devices[deviceID]

	return ok
}

// enqueue hands a frame to the write pump without ever blocking the caller.
// It reports false when the session is gone or its queue is full.
func (s *Server) enqueue(sess *session, frame []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sess]; !ok {
		return false
	}

	select {
	case sess.send <- frame:
		return true
	default:
		return false
	}
}

// subscribe registers the session for a device's events, or for all events
// when deviceID is empty.
func (s *Server) subscribe(sess *session, deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if deviceID == "" {
		sess.all = true

		return
	}

	sess.devices[deviceID] = struct{}{}
}

// subscribePayload is the subscribe_events request body.
type subscribePayload struct {
	// DeviceID scopes the subscription; empty subscribes to every device.
	DeviceID string `json:"device_id"`
}

// subscribeResult acknowledges a subscription.
type subscribeResult struct {
	Subscribed bool   `json:"subscribed"`
	DeviceID   string `json:"device_id,omitempty"`
}

// readPump reads request frames until the connection dies, dispatching each
// one and queueing the response.
func (c *session) readPump(ctx context.Context) {
	defer func() {
		c.server.drop(c)
		_ = c.conn.Close()
		logger.Info(ctx, "Satellite disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warnf(ctx, "Websocket read failed: %v", err)
			}

			return
		}

		response := c.handle(ctx, message)

		frame, err := json.Marshal(response)
		if err != nil {
			logger.Errorf(ctx, "Failed to marshal response frame: %v", err)

			continue
		}

		if !c.server.enqueue(c, frame) {
			return
		}
	}
}

// handle dispatches one request frame through the command table.
func (c *session) handle(ctx context.Context, message []byte) responseEnvelope {
	var req requestEnvelope
	if err := json.Unmarshal(message, &req); err != nil {
		return responseEnvelope{
			Error: errorBody(fmt.Errorf("%w: malformed frame: %w", ErrInvalidRequest, err)),
		}
	}

	response := responseEnvelope{ID: req.ID, Type: req.Type}

	// Subscriptions mutate this session's registry entry, so they bypass
	// the service-backed table.
	if req.Type == CommandSubscribeEvents {
		var payload subscribePayload
		if len(req.Data) > 0 {
			if err := json.Unmarshal(req.Data, &payload); err != nil {
				response.Error = errorBody(fmt.Errorf("%w: %w", ErrInvalidRequest, err))

				return response
			}
		}

		c.server.subscribe(c, payload.DeviceID)
		response.Result = subscribeResult{Subscribed: true, DeviceID: payload.DeviceID}

		return response
	}

	handler, ok := c.server.handlers[req.Type]
	if !ok {
		response.Error = errorBody(fmt.Errorf("%w: unknown command %q", ErrInvalidRequest, req.Type))

		return response
	}

	result, err := handler(ctx, req.Data)
	if err != nil {
		logger.WarnKV(ctx, "Command failed", "command", req.Type, "error", err)
		response.Error = errorBody(err)

		return response
	}

	response.Result = result

	return response
}

// writePump drains the send queue onto the wire and keeps the connection
// alive with pings.
func (c *session) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})

				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
