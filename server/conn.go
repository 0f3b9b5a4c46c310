// Package server exposes the lobby over TCP with length-prefixed JSON
// frames. One goroutine per connection reads commands; asynchronous
// notifications share the socket through the connection's write lock.
package server

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"lobby-lab/domain/event"
	"lobby-lab/protocol"
)

// Conn wraps one client socket. Responses and event notifications come
// from different goroutines; the write mutex keeps frames whole.
type Conn struct {
	mu   sync.Mutex
	log  *slog.Logger
	sock net.Conn
}

func NewConn(log *slog.Logger, sock net.Conn) *Conn {
	return &Conn{log: log, sock: sock}
}

// WriteResponse sends a command response frame.
func (c *Conn) WriteResponse(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return protocol.Write(c.sock, v)
}

type eventEnvelope struct {
	Status  string           `json:"status"`
	Event   string           `json:"event"`
	Payload event.LobbyEvent `json:"payload"`
}

// Notify implements contract.EventSink: lobby events are pushed to the
// client as frames with status "event", distinguishable from command
// responses.
func (c *Conn) Notify(_ context.Context, e event.LobbyEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return protocol.Write(c.sock, eventEnvelope{
		Status:  "event",
		Event:   e.Name(),
		Payload: e,
	})
}

// Close tears the socket down. Pending reads fail immediately.
func (c *Conn) Close() error {
	return c.sock.Close()
}

func (c *Conn) RemoteAddr() string {
	return c.sock.RemoteAddr().String()
}
