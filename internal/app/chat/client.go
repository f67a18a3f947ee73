/*
Package chat contains the core logic of the multi-instance broadcast layer.

This file defines the Client struct, representing one active WebSocket
connection. It manages the read and write pumps and reports lifecycle events
to the Hub. All frames written to the socket flow through a single writer
goroutine, so no two frames are ever written concurrently.
*/
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"parley/internal/app/user"
	"parley/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// MaxContentBytes is the maximum allowed size (in bytes) for text message content.
	MaxContentBytes = 5000
)

// Client represents an active WebSocket connection bound to one user in one chatroom.
type Client struct {
	// hub receives the lifecycle events of this connection.
	hub *Hub

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// the chatroom this connection belongs to.
	chatroomID int64

	// identity captured at handshake time. Used for addressing only; message
	// rendering always re-reads the presence registry.
	info user.UserInfo

	// a buffered channel used to queue payloads waiting to be sent to the client.
	send chan []byte

	// guards the close of the send channel.
	closeOnce sync.Once

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewClient constructs a Client for an upgraded connection.
func NewClient(hub *Hub, wsConn *websocket.Conn, chatroomID int64, info user.UserInfo) *Client {
	clientLogger := logx.Logger().With().
		Int64("chatroom_id", chatroomID).
		Int64("user_id", info.ID).
		Logger()

	return &Client{
		hub:        hub,
		conn:       wsConn,
		chatroomID: chatroomID,
		info:       info,
		send:       make(chan []byte, 256),
		logger:     clientLogger,
	}
}

// Send queues a payload for delivery to the client. It never blocks: a full
// queue drops the payload and reports an error, which the dispatcher treats
// as a delivery failure for this one recipient.
func (c *Client) Send(payload []byte) error {
	select {
	case c.send <- payload:
		return nil
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send queue full, dropping payload.")
		return fmt.Errorf("client send queue full")
	}
}

// ForceClose terminates the connection from the server side, e.g. on chatroom
// removal or shutdown. Closing the send channel makes the write pump emit a
// close frame and exit; the read pump then unblocks and runs its cleanup.
func (c *Client) ForceClose(reason string) {
	c.logger.Info().Str("reason", reason).Msg("Force-closing connection.")

	c.closeSend()
}

// closeSend closes the send channel exactly once.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// ReadPump reads inbound frames from the connection until it fails or closes.
// Each text frame is a raw chat message handed to the hub. On exit the pump
// reports either a plain disconnect or a transport error to the hub, then
// releases the socket.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.closeSend()
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.logger.Warn().Err(err).Msg("Error closing connection after read pump exit.")
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline.")
		c.hub.Disconnect(ctx, c.chatroomID, c.info.ID)
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if isExpectedPeerClose(err) {
				c.hub.Disconnect(ctx, c.chatroomID, c.info.ID)
			} else {
				c.hub.TransportError(ctx, c.chatroomID, c.info.ID, err)
			}
			return
		}

		if len(payload) == 0 {
			continue
		}

		if len(payload) > MaxContentBytes {
			c.logger.Warn().Int("content_bytes", len(payload)).Msg("Oversized message dropped.")
			continue
		}

		c.hub.Message(ctx, c.chatroomID, c.info.ID, string(payload))
	}
}

// WritePump writes queued payloads and periodic pings to the connection.
// It is the only goroutine that writes frames.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.logger.Warn().Err(err).Msg("Error closing connection in write pump.")
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !c.writeQueuedPayload(payload, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedPayload writes one payload pulled from the send channel.
// Returns true if the write pump should continue, false if it should terminate.
func (c *Client) writeQueuedPayload(payload []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline.")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !errors.Is(err, net.ErrClosed) {
			c.logger.Warn().Err(err).Msg("Error writing close message.")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logger.Warn().Err(err).Msg("Error writing payload.")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping to maintain the heartbeat.
// Returns false if the write pump should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping.")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		return false
	}

	return true
}

// isExpectedPeerClose reports whether a read error is an ordinary peer-side
// close rather than an unexpected transport failure.
func isExpectedPeerClose(err error) bool {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return true
	}

	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
