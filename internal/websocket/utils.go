package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// Conn serialises writes; gorilla allows one concurrent writer only.
type Conn struct {
	*websocket.Conn
	mu sync.Mutex
}

func NewConn(c *websocket.Conn) *Conn {
	return &Conn{Conn: c}
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteJSON(v)
}

// WriteEvent wraps data in a Message envelope.
func (c *Conn) WriteEvent(event Event, data any) error {
	return c.WriteTyped(Message{Event: event, Data: data})
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func (c *Conn) WriteError(code, errMsg string) error {
	return c.WriteTyped(ErrorResponse{
		Event: EventError,
		Code:  code,
		Error: errMsg,
	})
}

// ReadRequest reads and decodes one client message with a read deadline.
func (c *Conn) ReadRequest(v *Request) error {
	c.SetReadDeadline(time.Now().Add(readWait))
	return c.Conn.ReadJSON(v)
}
