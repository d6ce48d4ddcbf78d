// Copyright (c) 2026 Homerteo
// SPDX-License-Identifier: Apache-2.0
// See LICENSE file for details.

// Package ws fans fleet aggregate snapshots out to websocket subscribers.
// It is a convenience surface for dashboards connecting directly to the
// reporter; the gateway's own subscription fan-out rides the MQTT broadcast.
package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/homerteo/ms-reporter/internal/notifier"
	"github.com/homerteo/ms-reporter/internal/stats"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second

	// sendBuffer bounds the per-client queue; a subscriber that cannot keep
	// up is dropped rather than allowed to stall the pipeline.
	sendBuffer = 16
)

// Client is one connected websocket subscriber.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// Hub tracks connected subscribers and broadcasts snapshots to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify broadcasts the snapshot to every subscriber. It satisfies the
// aggregator's Notifier contract: non-blocking, best-effort.
func (h *Hub) Notify(snapshot *stats.FleetSnapshot) {
	payload, err := json.Marshal(notifier.Message{Type: notifier.TypeFleetStatsModified, Data: snapshot})
	if err != nil {
		log.Printf("ws: marshal snapshot failed: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.send <- payload:
		default:
			// Slow subscriber; closing its send channel ends the write pump.
			go h.remove(client)
		}
	}
}

// Add registers a new subscriber connection and starts its pumps.
func (h *Hub) Add(conn *websocket.Conn) *Client {
	client := &Client{
		id:   uuid.New().String()[:8],
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	h.clients[client.id] = client
	h.mu.Unlock()

	go client.writePump(h)
	go client.readPump(h)

	log.Printf("ws: subscriber %s connected", client.id)
	return client
}

// Stop disconnects every subscriber and refuses new ones.
func (h *Hub) Stop() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client.id]
	if ok {
		delete(h.clients, client.id)
	}
	h.mu.Unlock()

	if ok {
		client.close()
		log.Printf("ws: subscriber %s disconnected", client.id)
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

// writePump forwards queued snapshots to the connection and keeps it alive
// with pings.
func (c *Client) writePump(h *Hub) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readPump discards inbound frames; its job is noticing the close.
func (c *Client) readPump(h *Hub) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
