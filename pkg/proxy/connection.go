package proxy

import (
	"sync"

	"emperror.dev/errors"
	"github.com/gorilla/websocket"
	"github.com/je4/mediaport/pkg/event"
)

func newConnection(conn *websocket.Conn, name string, secure bool) *connection {
	return &connection{
		Secure: secure,
		Conn:   conn,
		Name:   name,
	}
}

// connection is one display or controller attached to the hub. Workers
// write concurrently, so all writes go through send.
type connection struct {
	Secure  bool
	Conn    *websocket.Conn
	Name    string
	writeMu sync.Mutex
}

func (c *connection) send(evt *event.Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return errors.WithStack(c.Conn.WriteJSON(evt))
}

func (c *connection) Close() error {
	if c.Conn != nil {
		return errors.WithStack(c.Conn.Close())
	}
	return nil
}
