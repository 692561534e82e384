// Package websocket pushes alert events to connected dashboard panels.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
)

// MessageSnapshot is the type of the first message a client receives: the
// unresolved alerts at connect time.
const MessageSnapshot = "alerts.snapshot"

type message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub maintains the set of connected clients and broadcasts alert events to
// them. The client set is owned by the Run goroutine.
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
	count      atomic.Int64

	snapshot func() []domain.Alert
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHub creates a Hub. snapshot supplies the active alerts sent to each new
// client and may be nil. It is called from the Run goroutine.
func NewHub(snapshot func() []domain.Alert, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
		snapshot:   snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			h.logger.Debug("websocket client registered", "remote", c.conn.RemoteAddr().String())
			h.sendSnapshot(c)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.logger.Warn("websocket client too slow, disconnecting", "remote", c.conn.RemoteAddr().String())
					h.drop(c)
				}
			}
		}
	}
}

// sendSnapshot queues the active alerts for a client that is already in the
// broadcast set, so an alert committed around connect time arrives either in
// the snapshot or as an event.
func (h *Hub) sendSnapshot(c *client) {
	if h.snapshot == nil {
		return
	}
	data, err := json.Marshal(message{Type: MessageSnapshot, Payload: h.snapshot()})
	if err != nil {
		h.logger.Warn("serialize alert snapshot failed", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		h.drop(c)
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int64(len(h.clients)))
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	return int(h.count.Load())
}

// Notify broadcasts the event to every connected client. It implements
// notify.Subscriber.
func (h *Hub) Notify(ctx context.Context, event domain.AlertEvent) error {
	data, err := json.Marshal(message{Type: string(event.Type), Payload: event})
	if err != nil {
		return fmt.Errorf("serialize alert event: %w", err)
	}
	select {
	case h.broadcast <- data:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
