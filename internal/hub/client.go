package hub

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

type Client struct {
	ID     string
	UserID string
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	config config.WebSocketConfig

	alive    atomic.Bool
	lastPong atomic.Int64
	logger   zerolog.Logger
}

// NewClient wraps an upgraded connection owned by userID. The client starts
// alive so the first heartbeat sweep pings rather than reaps it.
func NewClient(id, userID string, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	buf := cfg.SendBuffer
	if buf <= 0 {
		buf = 256
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	c := &Client{
		ID:     id,
		UserID: userID,
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, buf),
		config: cfg,
		logger: log.L().With().
			Str(log.FieldConnectionID, id).
			Str(log.FieldUserID, userID).
			Logger(),
	}
	c.MarkAlive()
	return c
}

// Context returns a background context carrying the connection's logger.
// Work started for this connection must not use the upgrade request's
// context, which ends once the handler returns.
func (c *Client) Context() context.Context {
	return log.WithLogger(context.Background(), c.logger)
}

// ReadPump reads frames until the connection fails and hands each to handler.
// It is the only reader of Conn.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	if c.config.MaxMessageSize > 0 {
		c.Conn.SetReadLimit(c.config.MaxMessageSize)
	}
	c.Conn.SetPongHandler(func(string) error {
		c.MarkAlive()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}

		handler(c, message)
	}
}

// WritePump drains Send to the socket. It is the only data writer of Conn,
// so frames never interleave.
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))

		w, err := c.Conn.NextWriter(websocket.TextMessage)
		if err != nil {
			c.drain()
			return
		}
		w.Write(message)

		if err := w.Close(); err != nil {
			c.drain()
			return
		}
	}

	c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
	c.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// drain unblocks senders after a write failure until the hub closes Send.
func (c *Client) drain() {
	c.Hub.Unregister(c)
	for range c.Send {
	}
}

// SendMessage encodes v and queues it for this connection.
func (c *Client) SendMessage(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Hub.Send(c.ID, data)
}

// MarkAlive records a heartbeat response.
func (c *Client) MarkAlive() {
	c.lastPong.Store(time.Now().UnixNano())
	c.alive.Store(true)
}

// IsAlive reports whether the peer answered since the last sweep.
func (c *Client) IsAlive() bool {
	return c.alive.Load()
}

// LastPong returns when the peer last proved it was alive.
func (c *Client) LastPong() time.Time {
	return time.Unix(0, c.lastPong.Load())
}

// ping sends a heartbeat. WriteControl may run concurrently with WritePump.
func (c *Client) ping() error {
	return c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteWait))
}

// Terminate closes the underlying transport without a close handshake.
func (c *Client) Terminate() {
	if c.Conn != nil {
		c.Conn.Close()
	}
}
