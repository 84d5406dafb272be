package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// Conn serializes writes to a gorilla connection. Engine events arrive on
// timer goroutines while the read loop answers commands, and gorilla allows
// only one concurrent writer.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func (c *Conn) WriteError(code, errMsg string) error {
	return c.WriteTyped(ErrorResponse{
		Event: EventError,
		Code:  code,
		Error: errMsg,
	})
}

// ReadEnvelope reads one message and peeks at its action. The raw bytes are
// kept so the caller can decode the action-specific request.
func (c *Conn) ReadEnvelope() (RequestEnvelope, error) {
	c.ws.SetReadDeadline(time.Now().Add(readWait))
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return RequestEnvelope{}, err
	}
	var env RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return RequestEnvelope{Raw: data}, err
	}
	env.Raw = data
	return env, nil
}

func (c *Conn) Close() error { return c.ws.Close() }
