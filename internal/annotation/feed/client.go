package feed

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds one outbound frame.
	writeWait = 10 * time.Second
	// pongWait is how long a silent peer stays connected.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait so pings keep the read
	// deadline alive.
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize caps inbound frames. Subscribers never send data, only
	// control frames, so anything larger is a misbehaving peer.
	maxMessageSize = 512
	// sendBuffer is per-client; a subscriber further behind than this is
	// disconnected by the hub.
	sendBuffer = 32
)

// Client is one WebSocket subscriber bound to a single document resource.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	resource string
	send     chan []byte
}

func newClient(hub *Hub, conn *websocket.Conn, resource string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		resource: resource,
		send:     make(chan []byte, sendBuffer),
	}
}

// readPump drains the connection until it closes. The feed is one-way, so
// inbound frames are discarded; the loop exists to process pongs and to
// notice the peer going away.
func (c *Client) readPump() {
	defer func() {
		// A stopped hub no longer services unregister; it has already
		// closed every send channel itself.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("feed connection closed unexpectedly",
					"resource", c.resource,
					"error", err,
				)
			}
			return
		}
	}
}

// writePump relays hub broadcasts to the connection and keeps it alive with
// pings. It exits when the hub closes the send channel or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
