package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	closeTimeout = time.Second
)

// wsConn adapts a gorilla connection to the device transport interface.
// Gorilla allows one concurrent writer, so all writes funnel through the
// mutex; the read side stays on the connection's own read loop.
type wsConn struct {
	id string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func newWSConn(id string, conn *websocket.Conn) *wsConn {
	return &wsConn{id: id, conn: conn}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame carrying the reason, then tears the connection
// down. Closing twice is a no-op.
func (c *wsConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	deadline := time.Now().Add(closeTimeout)
	frame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	// Best effort: the peer may already be gone.
	_ = c.conn.WriteControl(websocket.CloseMessage, frame, deadline)
	return c.conn.Close()
}
