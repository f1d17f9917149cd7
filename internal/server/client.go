// Package server manages individual WebSocket peers, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Outbound frames buffered per connection before the hub drops the peer.
	sendBufferSize = 256
)

// Client represents one signaling peer bound to a live WebSocket connection.
// The id, rooms, pendingCode, lastActivity, and closed fields are owned by
// the hub goroutine; the pumps never touch them.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	addr string

	id           string
	rooms        map[string]struct{}
	pendingCode  int
	lastActivity time.Time
	closed       bool

	maxMessageSize int64
	limiter        *rate.Limiter
}

// NewClient creates a Client for an upgraded connection. The peer identifier
// comes from the identity resolver; the hub may still replace it at
// registration time if it collides with a live peer.
func NewClient(hub *Hub, conn *websocket.Conn, id, addr string, cfg Config) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit.Enabled {
		limiter = rate.NewLimiter(cfg.RateLimit.MessagesPerSecond, cfg.RateLimit.Burst)
	}

	return &Client{
		hub:            hub,
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
		addr:           addr,
		id:             id,
		rooms:          make(map[string]struct{}),
		pendingCode:    -1,
		lastActivity:   time.Now(),
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        limiter,
	}
}

// ID returns the peer identifier assigned at registration.
func (c *Client) ID() string {
	return c.id
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// logReadError logs an appropriate message for the error that ended the read loop.
func (c *Client) logReadError(err error) {
	if err == nil {
		return
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		log.Printf("Frame from %s exceeded maximum size of %d bytes", c.addr, c.maxMessageSize)
		return
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		log.Printf("Peer at %s disconnected: %v", c.addr, err)
		return
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		log.Printf("Connection from %s closed: %v", c.addr, err)
		return
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		log.Printf("Unexpected WebSocket error from %s: %v", c.addr, err)
		return
	}

	log.Printf("WebSocket read error from %s: %v", c.addr, err)
}

// allowMessage applies the per-connection rate limit.
func (c *Client) allowMessage() bool {
	if c.limiter != nil && !c.limiter.Allow() {
		log.Printf("Rate limit exceeded for %s; discarding frame", c.addr)
		return false
	}
	return true
}

// closeWithReason sends a close frame carrying a status code and reason, then
// tears down the transport. Safe to call from any goroutine; gorilla permits
// WriteControl concurrently with the write pump.
func (c *Client) closeWithReason(code int, reason string) {
	payload := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, payload, time.Now().Add(writeWait)); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing close frame to %s: %v", c.addr, err)
		}
	}
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		log.Printf("Error closing connection to %s: %v", c.addr, err)
	}
}

// readPump pumps frames from the WebSocket connection into the hub. It is the
// only reader on the connection. Malformed frames close this connection and
// never reach the hub loop.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in readPump: %v", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.allowMessage() {
			continue
		}

		msg, err := decodeMessage(raw)
		if err != nil {
			log.Printf("Closing connection to %s: malformed frame: %v", c.addr, err)
			c.hub.metrics.malformedFrames.Inc()
			c.closeWithReason(websocket.CloseInvalidFramePayloadData, "malformed message")
			return
		}

		select {
		case c.hub.inbound <- inboundFrame{client: c, msg: msg}:
		case <-c.hub.ctx.Done():
			return
		}
	}
}

// writePump pumps frames from the send channel to the WebSocket connection
// and keeps the transport alive with periodic pings. It is the only writer
// of data frames on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeFrame(message, ok) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

// writeFrame writes one outbound frame, or the close message when the hub has
// shut the channel. Returns false when the pump should stop.
func (c *Client) writeFrame(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			if !isExpectedCloseError(err) {
				log.Printf("Error writing close message to %s: %v", c.addr, err)
			}
		}
		return false
	}

	// One message per frame; never coalesce queued frames.
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing frame to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}

func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		return false
	}
	return true
}
