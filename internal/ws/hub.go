package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	sendQueue = 64
)

// client owns the write side of one connection. Frames are queued on send
// and written by writePump so a slow reader never blocks the broadcaster.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn, queue int) *client {
	return &client{
		conn: conn,
		send: make(chan []byte, queue),
		done: make(chan struct{}),
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.stop()
				return
			}
		case <-c.done:
			return
		}
	}
}

// enqueue hands msg to the writer. It reports false when the client is gone
// or its queue is full.
func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) sendJSON(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return c.enqueue(data)
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// Hub manages active bridge connections keyed by account ID and provides
// helper methods to broadcast events to them.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*websocket.Conn]*client
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]map[*websocket.Conn]*client),
	}
}

// Register adds a connection for the given account and starts its writer.
func (h *Hub) Register(accountID string, conn *websocket.Conn) *client {
	c := newClient(conn, sendQueue)
	go c.writePump()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[accountID] == nil {
		h.conns[accountID] = make(map[*websocket.Conn]*client)
	}
	h.conns[accountID][conn] = c
	return c
}

// Unregister removes a connection for the given account and stops its writer.
func (h *Hub) Unregister(accountID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.conns[accountID]; ok {
		if c := conns[conn]; c != nil {
			c.stop()
		}
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.conns, accountID)
		}
	}
}

// Count returns the number of live connections for accountID.
func (h *Hub) Count(accountID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[accountID])
}

// Broadcast queues the payload for every connection of accountID without
// waiting on the network. A connection whose queue is full is closed; its
// read loop unregisters it.
func (h *Hub) Broadcast(accountID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.conns[accountID]))
	for _, c := range h.conns[accountID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(data) {
			c.stop()
			c.conn.Close()
		}
	}
	return nil
}
