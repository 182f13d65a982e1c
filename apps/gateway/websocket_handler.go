package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mahaj/careerchat/pkg/model"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer. A frame carries at most one
	// message body plus its envelope.
	maxMessageSize = 16 * 1024

	// Outbound frames buffered per connection before it is dropped.
	sendBuffer = 256
)

var (
	errClosed     = errors.New("connection closed")
	errBufferFull = errors.New("send buffer full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// Client is a middleman between the websocket connection and the chat
// service. It satisfies presence.Conn.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	// Closed once the connection is shutting down.
	done      chan struct{}
	closeOnce sync.Once
	closeMsg  []byte

	id   string
	user model.Identity
	log  *zap.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, user model.Identity) *Client {
	id := uuid.NewString()
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
		id:   id,
		user: user,
		log:  hub.log.With(zap.String("user_id", user.ID), zap.String("conn_id", id)),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.user.ID }

// Send queues a frame without blocking. A client that cannot keep up is
// disconnected.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return errClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		c.log.Warn("send buffer full, dropping connection")
		c.Close(websocket.ClosePolicyViolation, "send buffer full")
		return errBufferFull
	}
}

// Close asks the write pump to send a close frame and shut the socket.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeMsg = websocket.FormatCloseMessage(code, reason)
		close(c.done)
	})
}

// readPump pumps frames from the websocket connection to the chat service.
// Requests on one connection are handled in order.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.chat.Disconnect(context.Background(), c)
		c.Close(websocket.CloseNormalClosure, "")
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("connection lost", zap.Error(err))
			}
			break
		}
		c.log.Debug("frame received", zap.Int("bytes", len(message)))

		reply := c.hub.chat.Dispatch(ctx, c, message)
		if err := c.Send(reply); err != nil {
			break
		}
	}
}

// writePump pumps frames from the send buffer to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close(websocket.CloseGoingAway, "")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseGoingAway, "")
				return
			}
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage, c.closeMsg, time.Now().Add(writeWait))
			return
		}
	}
}
