package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"pairchat/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // Must be less than pongWait
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Dispatcher is the entry point for inbound message events. Implemented by
// the dispatch service; declared here so the transport layer does not depend
// on it directly.
type Dispatcher interface {
	HandleInbound(ctx context.Context, sub Subscriber, sender, recipient, content string) (*domain.Message, error)
}

// Client wraps one authenticated WebSocket connection. It implements
// Subscriber for the hub and feeds inbound frames to the dispatcher.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	username   string
	dispatcher Dispatcher
	writeMu    sync.Mutex
	closed     atomic.Bool
	sendClosed atomic.Bool
	ctx        context.Context
	ctxCancel  context.CancelFunc
}

// NewClient builds a client for an upgraded connection. username is the
// authenticated sender identity attached to the session.
func NewClient(ctx context.Context, hub *Hub, conn *websocket.Conn, username string, dispatcher Dispatcher) *Client {
	clientCtx, cancel := context.WithCancel(ctx)

	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		username:   username,
		dispatcher: dispatcher,
		ctx:        clientCtx,
		ctxCancel:  cancel,
	}
}

// Username returns the authenticated identity bound to this connection.
func (c *Client) Username() string { return c.username }

// Key implements Subscriber.
func (c *Client) Key() string { return c.username }

// Send implements Subscriber. Non-blocking; reports false when the buffer
// is full so the hub can evict this client. The send channel is never
// closed, so Send is safe against a concurrent Close.
func (c *Client) Send(payload []byte) bool {
	if c.sendClosed.Load() {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close implements Subscriber. Safe to call more than once; the write pump
// observes the cancelled context and shuts the connection down.
func (c *Client) Close() {
	if c.sendClosed.CompareAndSwap(false, true) {
		c.ctxCancel()
	}
}

// ReadPump reads inbound frames and hands them to the dispatcher. It owns
// membership teardown: when the read side ends for any reason the client
// leaves every room, so broadcasts never target a dead connection.
func (c *Client) ReadPump() {
	defer func() {
		c.ctxCancel()
		c.hub.LeaveAll(c)
		c.Close()
		c.closeConnection()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("failed to set read deadline",
			slog.String("error", err.Error()),
			slog.String("user", c.username))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket error",
					slog.String("error", err.Error()),
					slog.String("user", c.username))
			}
			break
		}

		var inbound InboundMessage
		if err := json.Unmarshal(raw, &inbound); err != nil {
			slog.Warn("invalid message frame",
				slog.String("error", err.Error()),
				slog.String("user", c.username))
			c.Send(EncodeError("invalid message frame"))
			continue
		}

		// Dispatch outlives a disconnect: persistence still completes, and
		// the broadcast simply skips this client once LeaveAll has run.
		_, err = c.dispatcher.HandleInbound(c.ctx, c, c.username, inbound.Recipient, inbound.Message)
		if err != nil {
			slog.Error("dispatch failed",
				slog.String("error", err.Error()),
				slog.String("user", c.username),
				slog.String("recipient", inbound.Recipient))
			c.Send(EncodeError(dispatchErrorText(err)))
		}
	}
}

func dispatchErrorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "message could not be saved, try again"
	case errors.Is(err, domain.ErrInvalidInput):
		return "recipient and message are required"
	case errors.Is(err, domain.ErrUnauthorized):
		return "not authenticated"
	default:
		return "message could not be delivered"
	}
}

// WritePump pumps queued payloads to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.writeMessage(websocket.CloseMessage, []byte{})
			return

		case payload := <-c.send:
			if err := c.writeMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeMessage writes a message to the WebSocket connection in a thread-safe manner
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return websocket.ErrCloseSent
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		slog.Warn("failed to set write deadline",
			slog.String("error", err.Error()),
			slog.String("user", c.username))
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// closeConnection safely closes the WebSocket connection
func (c *Client) closeConnection() {
	if c.closed.CompareAndSwap(false, true) {
		c.writeMu.Lock()
		c.conn.Close()
		c.writeMu.Unlock()
	}
}
