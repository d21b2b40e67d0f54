package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"lob/internal/engine"
	"lob/internal/logger"
	"lob/internal/orderbook"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

type MessageType string

const (
	MessageDepth MessageType = "depth"
	MessageBatch MessageType = "batch"
)

// Message is the frame sent to websocket clients. A depth frame is sent
// once after subscribing, batch frames follow for every applied command.
type Message struct {
	Type       MessageType      `json:"type"`
	Instrument string           `json:"instrument"`
	Depth      *orderbook.Depth `json:"depth,omitempty"`
	Batch      *engine.Batch    `json:"batch,omitempty"`
}

// Hub fans engine batches out to websocket clients. It is an engine.Sink.
type Hub struct {
	log     *logger.Logger
	mu      sync.RWMutex
	clients map[*Client]bool
	stopped bool
}

type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	instrument string // empty receives every market
	send       chan []byte
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*Client]bool),
	}
}

func newClient(hub *Hub, conn *websocket.Conn, instrument string) *Client {
	return &Client{hub: hub, conn: conn, instrument: instrument, send: make(chan []byte, sendBuffer)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		close(client.send)
		return
	}
	h.clients[client] = true
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish never blocks the market: a client whose buffer is full misses
// the batch.
func (h *Hub) Publish(_ context.Context, b engine.Batch) error {
	data, err := json.Marshal(Message{Type: MessageBatch, Instrument: b.Instrument, Batch: &b})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.instrument != "" && client.instrument != b.Instrument {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.log.Warn("websocket client too slow, dropping batch",
				logger.NewField("instrument", b.Instrument),
				logger.NewField("sequence", b.Sequence),
			)
		}
	}
	return nil
}

// Stop disconnects every client. Later registrations are refused.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

func (c *Client) sendJSON(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump discards client frames and keeps the read deadline fresh on
// pongs. It returns when the peer goes away.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
