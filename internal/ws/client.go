package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chat-backend/internal/chat"
)

const (
	sendBufferSize = 32
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10

	// a rune escaped as a \uXXXX surrogate pair takes 12 bytes
	maxFrameSize = chat.MaxContentLength*12 + 1024
)

// Conn is the subset of *websocket.Conn a Client needs.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// State is the lifecycle phase of a connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Client is one live websocket. Only the write pump writes to the
// connection; everyone else goes through the bounded send buffer.
type Client struct {
	info   ConnInfo
	conn   Conn
	send   chan []byte
	done   chan struct{}
	state  atomic.Int32
	logger zerolog.Logger

	closeOnce   sync.Once
	closeReason atomic.Value
}

// NewClient wraps conn. The client stays in StateConnecting until registered.
func NewClient(conn Conn, info ConnInfo, logger zerolog.Logger) *Client {
	return &Client{
		info:   info,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger.With().Str("conn_id", info.ConnID).Int("user_id", info.UserID).Logger(),
	}
}

// UserID is the authenticated owner of the connection.
func (c *Client) UserID() int {
	return c.info.UserID
}

// Info returns the metadata captured at handshake.
func (c *Client) Info() ConnInfo {
	return c.info
}

// State reports the current lifecycle phase.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) markOpen() {
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// Close moves the client to StateClosed and releases the connection. Safe to call repeatedly.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		c.closeReason.Store(reason)
		close(c.done)
		_ = c.conn.Close()
	})
}

// CloseReason is the reason given to the first Close call.
func (c *Client) CloseReason() string {
	reason, _ := c.closeReason.Load().(string)
	return reason
}

// enqueue never blocks: it reports false when the client is not open or its buffer is full.
func (c *Client) enqueue(payload []byte) bool {
	if c.State() != StateOpen {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// SendEvent encodes and enqueues an event for this connection only.
func (c *Client) SendEvent(event any) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.Error().Err(err).Msg("encode websocket event")
		return false
	}
	return c.enqueue(payload)
}

// WritePump drains the send buffer and keeps the peer alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug().Err(err).Msg("websocket write failed")
				c.Close("write: " + err.Error())
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close("ping: " + err.Error())
				return
			}
		}
	}
}

// ReadLoop hands every inbound frame to handle until the connection fails.
func (c *Client) ReadLoop(handle func([]byte)) error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		handle(data)
	}
}
