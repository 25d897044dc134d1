// Package websocket streams pipeline progress to connected browsers.
// Delivery is at-most-once: the hub never buffers for absent clients,
// and a client that cannot keep up is disconnected rather than allowed
// to stall the broadcast.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"docpulse/internal/infrastructure"
	"docpulse/pkg/contracts/events"
)

// Hub frame types beyond the pipeline event types
const (
	TypeConnection = "connection"
	TypeSnapshot   = "pipeline:snapshot"
)

// Hub maintains the set of active clients and fans frames out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *infrastructure.Metrics

	quit    chan struct{}
	running bool
}

// NewHub creates a hub. Call Start before registering clients.
func NewHub(logger *slog.Logger, metrics *infrastructure.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		metrics:    metrics,
		quit:       make(chan struct{}),
	}
}

// Start launches the hub loop. Idempotent.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()
	go h.run()
}

// Stop terminates the hub loop and disconnects every client.
func (h *Hub) Stop() {
	close(h.quit)
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("hub stopped")
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
	}
	h.logger.Info("client connected",
		slog.String("client_id", client.id),
		slog.String("remote_addr", client.remoteAddr),
		slog.Int("total_clients", count))

	// Greet the new client so the frontend can confirm the stream is up
	greeting, err := json.Marshal(events.Frame{
		Type:      TypeConnection,
		Data:      map[string]string{"status": "connected", "client_id": client.id},
		Timestamp: time.Now(),
		TraceID:   client.traceID,
	})
	if err == nil {
		select {
		case client.send <- greeting:
		default:
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	if h.metrics != nil {
		h.metrics.WSConnections.Dec()
	}
	h.logger.Info("client disconnected",
		slog.String("client_id", client.id),
		slog.Duration("connected_for", time.Since(client.connectedAt)),
		slog.Int("total_clients", count))
}

// fanOut delivers one frame to every client. A full send buffer means
// the client is too slow; it is evicted so one stalled connection
// cannot block the run's progress stream.
func (h *Hub) fanOut(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- message:
			if h.metrics != nil {
				h.metrics.WSMessagesSent.Inc()
			}
		default:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

			if h.metrics != nil {
				h.metrics.WSMessagesDropped.Inc()
				h.metrics.WSConnections.Dec()
			}
			h.logger.Warn("client send buffer full, evicting",
				slog.String("client_id", client.id))
		}
	}
}

// BroadcastEvent sends one pipeline event to every connected client.
func (h *Hub) BroadcastEvent(ev events.PipelineEvent, traceID string) {
	h.broadcastFrame(events.Frame{
		Type:      ev.Type,
		Data:      ev,
		Timestamp: time.Now(),
		TraceID:   traceID,
	})
}

// BroadcastSnapshot sends the full tracker state, used when a client
// needs to catch up on statuses after the fact (texts of events it
// missed are not replayed).
func (h *Hub) BroadcastSnapshot(snapshot interface{}, traceID string) {
	h.broadcastFrame(events.Frame{
		Type:      TypeSnapshot,
		Data:      snapshot,
		Timestamp: time.Now(),
		TraceID:   traceID,
	})
}

func (h *Hub) broadcastFrame(frame events.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to marshal frame",
			slog.String("type", frame.Type),
			slog.String("error", err.Error()))
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
