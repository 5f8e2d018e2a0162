package server

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// client is one attached WebSocket connection. Send is safe for concurrent
// use; gorilla allows only one writer at a time, so a mutex serializes the
// dispatcher reply path and hub broadcasts.
type client struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex
}

func newClient(conn *websocket.Conn) *client {
	return &client{id: uuid.NewString(), conn: conn}
}

func (c *client) ID() string { return c.id }

func (c *client) Send(event any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(event)
}
