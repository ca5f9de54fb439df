package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// clientConn serialises writes to one gorilla connection.
type clientConn struct {
	rawConn   *websocket.Conn
	writeWait time.Duration
	mu        sync.Mutex
}

func (c *clientConn) write(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.rawConn.WriteMessage(mt, data) // Text/Binary only
}

func (c *clientConn) ping() error {
	return c.rawConn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

// closeWith sends a close frame; the peer may already be gone.
func (c *clientConn) closeWith(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.rawConn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait))
}
