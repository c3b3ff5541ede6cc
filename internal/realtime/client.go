package realtime

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/devsync-io/devsync/backend/internal/model/user"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 64 * 1024
	sendBuffer     = 64
)

// Client is one authenticated websocket connection bound to a single
// room for its lifetime.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan outboundEvent
	user       *user.User
	roomID     string
	hasProject bool
	handler    *Handler
	logger     zerolog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, u *user.User, roomID string, hasProject bool, handler *Handler, logger zerolog.Logger) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan outboundEvent, sendBuffer),
		user:       u,
		roomID:     roomID,
		hasProject: hasProject,
		handler:    handler,
		logger: logger.With().
			Str("room", roomID).
			Str("user", u.ID).
			Logger(),
	}
}

// enqueue queues an event for this connection. Events to a consumer
// that cannot keep up are dropped.
func (c *Client) enqueue(event string, data any) {
	select {
	case c.send <- outboundEvent{Event: event, Data: data}:
	default:
		c.logger.Warn().Str("event", event).Msg("send buffer full, dropping event")
	}
}

// sendError unicasts an error event to this connection.
func (c *Client) sendError(kind, msg string) {
	c.enqueue(EventError, errorPayload{Type: kind, Message: msg})
}

// readPump consumes inbound envelopes until the connection drops. It
// owns the read side and the room membership.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
		c.logger.Debug().Msg("connection closed")
	}()

	c.conn.SetReadLimit(maxInboundSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var evt inboundEvent
		if err := c.conn.ReadJSON(&evt); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("unexpected connection close")
			}
			return
		}
		c.handler.dispatch(c, evt)
	}
}

// writePump owns the write side: queued events and keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
