package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/gridsim/internal/logging"
	"github.com/signalsfoundry/gridsim/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	sendBufferSize = 8
)

// StreamMetrics tracks connected stream subscribers.
type StreamMetrics interface {
	StreamClientConnected()
	StreamClientDisconnected()
}

// Hub fans snapshots out to every connected websocket client. All clients
// observe the same shared grid; a slow or broken client is dropped without
// affecting the others.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*wsClient
	closed  bool

	log     logging.Logger
	metrics StreamMetrics
}

type wsClient struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewHub creates an empty hub. metrics may be nil.
func NewHub(log logging.Logger, metrics StreamMetrics) *Hub {
	if log == nil {
		log = logging.Noop()
	}
	return &Hub{
		clients: make(map[uuid.UUID]*wsClient),
		log:     log,
		metrics: metrics,
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register takes ownership of conn and starts its pumps. initial, when
// non-nil, is queued before any broadcast.
func (h *Hub) Register(conn *websocket.Conn, initial []byte) uuid.UUID {
	client := &wsClient{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	if initial != nil {
		client.send <- initial
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return client.id
	}
	h.clients[client.id] = client
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.StreamClientConnected()
	}
	h.log.Info(context.Background(), "stream client connected",
		logging.String("client_id", client.id.String()))

	go h.readPump(client)
	go h.writePump(client)
	return client.id
}

// Broadcast encodes snap once and queues it for every client. Clients whose
// buffer is full are disconnected.
func (h *Hub) Broadcast(snap model.GridSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	var slow []*wsClient
	h.mu.RLock()
	for _, c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn(context.Background(), "dropping slow stream client",
			logging.String("client_id", c.id.String()))
		h.unregister(c)
	}
	return nil
}

// Close disconnects every client and rejects new registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

func (h *Hub) unregister(c *wsClient) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()

		close(c.done)
		_ = c.conn.Close()

		if h.metrics != nil {
			h.metrics.StreamClientDisconnected()
		}
		h.log.Info(context.Background(), "stream client disconnected",
			logging.String("client_id", c.id.String()))
	})
}

// readPump drains inbound frames so control messages are processed and a
// closed peer is noticed.
func (h *Hub) readPump(c *wsClient) {
	defer h.unregister(c)

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

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.unregister(c)
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
