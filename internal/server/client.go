// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gochat-rooms/internal/chat"
)

// Client is one WebSocket connection. It is the chat.Member the room
// delivers to: frames are queued on send and written by writePump.
type Client struct {
	id             string
	name           string
	addr           string
	conn           *websocket.Conn
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
	log            *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient creates a client for a connection that is not upgraded yet;
// attach the connection before starting the pumps.
func NewClient(name, addr string, cfg Config, log *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:             id,
		name:           name,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit()),
		rateLimit:      cfg.RateLimit(),
		log:            log.With("client", id, "remote", addr),
		send:           make(chan []byte, cfg.SendBufferSize),
	}
}

func (c *Client) attach(conn *websocket.Conn) {
	c.conn = conn
	conn.SetReadLimit(c.maxMessageSize)
}

// ID implements chat.Member.
func (c *Client) ID() string { return c.id }

// DisplayName implements chat.Member.
func (c *Client) DisplayName() string { return c.name }

// Deliver queues payload without blocking. A full queue or a closed client
// yields chat.ErrDelivery.
func (c *Client) Deliver(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%w: client closed", chat.ErrDelivery)
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return fmt.Errorf("%w: send buffer full", chat.ErrDelivery)
	}
}

// Evict implements chat.Member. The write pump sends a close frame and
// tears the connection down, which ends the read pump.
func (c *Client) Evict(reason error) {
	if c.shutdown() {
		c.log.Info("Client evicted", "reason", reason)
	}
}

// shutdown closes the send queue once and reports whether this call did it.
func (c *Client) shutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// handleReadError logs the reason the read loop stops.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Message exceeded maximum size", "limit", c.maxMessageSize)
	case isExpectedCloseError(err):
		c.log.Debug("Client disconnected", "reason", err)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		c.log.Warn("Unexpected WebSocket close", "error", err)
	default:
		c.log.Debug("WebSocket read ended", "error", err)
	}
}

// checkRateLimit reports whether the next frame may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter.allow() {
		return true
	}
	c.log.Warn("Rate limit exceeded; discarding message", "burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
	if frame, err := chat.EncodeError("rate limit exceeded"); err == nil {
		_ = c.Deliver(frame)
	}
	return false
}

// readPump feeds inbound frames to session until the connection drops or
// the session asks to close it.
func (c *Client) readPump(ctx context.Context, session *chat.Session) {
	defer func() {
		session.Close()
		c.shutdown()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("Error closing connection in readPump", "error", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		if err := session.Handle(ctx, raw); err != nil {
			c.log.Info("Closing connection", "error", err)
			return
		}
	}
}

// writePump drains the send queue, one frame per message, and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("Error closing connection in writePump", "error", err)
		}
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// handleMessage writes one queued frame, or the close frame once the queue
// is closed, and returns false if the connection should be closed.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("Error setting write deadline", "error", err)
		return false
	}

	if !ok {
		err := c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		if err != nil && !isExpectedCloseError(err) {
			c.log.Warn("Error writing close message", "error", err)
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing message", "error", err)
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("Error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Debug("Error writing ping message", "error", err)
		return false
	}
	return true
}
