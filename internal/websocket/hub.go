// Package websocket pushes sync and license status to the terminal UI. A
// single Hub fans every message out to all connected clients; clients never
// send commands, only heartbeats.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"poscore/internal/infrastructure"
	"poscore/pkg/contracts/events"
)

const broadcastQueue = 64

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu       sync.RWMutex
	logger   *slog.Logger
	metrics  *infrastructure.Metrics
	greeting func() []events.Message
	now      func() time.Time

	totalConnections int64
	messagesSent     int64
	messagesDropped  int64
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithMetrics records client counts and message outcomes.
func WithMetrics(m *infrastructure.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithGreeting sets the messages sent to every newly registered client after
// the connect frame, typically the latest sync and license status.
func WithGreeting(fn func() []events.Message) HubOption {
	return func(h *Hub) { h.greeting = fn }
}

// WithClock overrides the time source for message timestamps.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

// NewHub creates a Hub. Call Run to start dispatching.
func NewHub(logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, broadcastQueue),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		metrics:    infrastructure.NoopMetrics(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run dispatches registrations and broadcasts until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			h.logger.InfoContext(ctx, "hub shutting down")
			return nil

		case client := <-h.register:
			h.addClient(ctx, client)

		case client := <-h.unregister:
			h.removeClient(ctx, client, "normal")

		case message := <-h.broadcast:
			h.fanOut(ctx, message)
		}
	}
}

func (h *Hub) addClient(ctx context.Context, client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.totalConnections++
	h.mu.Unlock()

	h.metrics.WebSocketClients.Add(ctx, 1)
	h.logger.InfoContext(client.context(ctx), "client registered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.String("remote_addr", client.remoteAddr))

	frames := []events.Message{{
		Type:      events.MessageTypeConnect,
		Timestamp: h.now().UTC(),
		Data: map[string]string{
			"status":    "connected",
			"client_id": client.id,
		},
	}}
	if h.greeting != nil {
		frames = append(frames, h.greeting()...)
	}
	for _, msg := range frames {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.logger.WarnContext(client.context(ctx), "client buffer full during greeting",
				slog.String("client_id", client.id))
		}
	}
}

func (h *Hub) removeClient(ctx context.Context, client *Client, reason string) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.WebSocketClients.Add(ctx, -1)
	h.logger.InfoContext(client.context(ctx), "client unregistered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.String("reason", reason),
		slog.Duration("connection_duration", h.now().Sub(client.connectedAt)))
}

func (h *Hub) fanOut(ctx context.Context, message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	var sent, dropped int64
	for _, client := range clients {
		select {
		case client.send <- message:
			sent++
		default:
			// A client that cannot keep up is disconnected rather than
			// allowed to stall every other client.
			dropped++
			h.removeClient(ctx, client, "slow_consumer")
		}
	}

	h.mu.Lock()
	h.messagesSent += sent
	h.messagesDropped += dropped
	h.mu.Unlock()

	h.metrics.WebSocketMessages.Add(ctx, sent, metric.WithAttributes(attribute.String("outcome", "sent")))
	if dropped > 0 {
		h.metrics.WebSocketMessages.Add(ctx, dropped, metric.WithAttributes(attribute.String("outcome", "dropped")))
		h.logger.WarnContext(ctx, "some clients failed to receive broadcast",
			slog.Int64("success_count", sent),
			slog.Int64("fail_count", dropped))
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	n := int64(len(h.clients))
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()
	if n > 0 {
		h.metrics.WebSocketClients.Add(context.Background(), -n)
	}
	close(h.done)
}

// Broadcast sends msg to every connected client. It returns without sending
// once the hub has stopped.
func (h *Hub) Broadcast(msg events.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = h.now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("error marshaling message",
			slog.String("error", err.Error()),
			slog.String("message_type", string(msg.Type)))
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

// BroadcastSyncStatus pushes a sync cycle result.
func (h *Hub) BroadcastSyncStatus(status events.SyncStatus) {
	h.Broadcast(events.Message{Type: events.MessageTypeSyncStatus, Data: status})
}

// BroadcastLicenseStatus pushes the current license outcome.
func (h *Hub) BroadcastLicenseStatus(info any) {
	h.Broadcast(events.Message{Type: events.MessageTypeLicenseStatus, Data: info})
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.closeSend()
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns hub counters.
func (h *Hub) Stats() map[string]int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]int64{
		"active_clients":    int64(len(h.clients)),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
		"messages_dropped":  h.messagesDropped,
	}
}
