// Package websocket pushes refresh notices to open console tabs.
package websocket

import (
	"context"
	"log/slog"
	"sync"
)

const defaultBroadcastBufferSize = 256

// Gauge receives the number of connected clients.
type Gauge interface {
	Set(float64)
}

// Hub tracks every open connection and fans messages out to them.
type Hub struct {
	clients map[*Client]bool

	// sessionClients maps a browser session to its open tabs.
	sessionClients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage

	mu     sync.RWMutex
	logger *slog.Logger
	gauge  Gauge

	done      chan struct{}
	stopOnce  sync.Once
	running   bool
	runningMu sync.RWMutex
}

// broadcastMessage targets every client, or one session when sessionID is set.
type broadcastMessage struct {
	sessionID string
	message   []byte
}

// HubOption configures the Hub.
type HubOption func(*Hub)

// WithHubLogger sets the logger for the hub.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithHubGauge reports the connected client count to g.
func WithHubGauge(g Gauge) HubOption {
	return func(h *Hub) {
		h.gauge = g
	}
}

// NewHub creates a new Hub with the given options.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:        make(map[*Client]bool),
		sessionClients: make(map[string]map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *broadcastMessage, defaultBroadcastBufferSize),
		logger:         slog.Default(),
		done:           make(chan struct{}),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Run starts the hub's event loop. It should be run as a goroutine.
func (h *Hub) Run(ctx context.Context) {
	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		return
	}
	h.running = true
	h.runningMu.Unlock()

	h.logger.InfoContext(ctx, "websocket hub started")

	for {
		select {
		case <-ctx.Done():
			h.Stop()
			h.shutdown()
			return

		case <-h.done:
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.handleBroadcast(msg)
		}
	}
}

// Stop signals the hub to stop. It is safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

func (h *Hub) shutdown() {
	h.runningMu.Lock()
	h.running = false
	h.runningMu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.Close()
	}

	h.clients = make(map[*Client]bool)
	h.sessionClients = make(map[string]map[*Client]bool)
	h.report()

	h.logger.Info("websocket hub stopped")
}

// Register registers a new client with the hub.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister unregisters a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	if client.sessionID != "" {
		if h.sessionClients[client.sessionID] == nil {
			h.sessionClients[client.sessionID] = make(map[*Client]bool)
		}
		h.sessionClients[client.sessionID][client] = true
	}
	h.report()

	h.logger.Debug("client registered",
		slog.String("session_id", client.sessionID),
		slog.Int("total_clients", len(h.clients)),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	if tabs, ok := h.sessionClients[client.sessionID]; ok {
		delete(tabs, client)
		if len(tabs) == 0 {
			delete(h.sessionClients, client.sessionID)
		}
	}

	delete(h.clients, client)
	client.Close()
	h.report()

	h.logger.Debug("client unregistered",
		slog.String("session_id", client.sessionID),
		slog.Int("total_clients", len(h.clients)),
	)
}

// Broadcast sends message to every connected client.
func (h *Hub) Broadcast(message []byte) {
	h.enqueue(&broadcastMessage{message: message})
}

// SendToSession sends message to every tab of one browser session.
func (h *Hub) SendToSession(sessionID string, message []byte) {
	h.enqueue(&broadcastMessage{sessionID: sessionID, message: message})
}

func (h *Hub) enqueue(msg *broadcastMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

func (h *Hub) handleBroadcast(msg *broadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := h.clients
	if msg.sessionID != "" {
		targets = h.sessionClients[msg.sessionID]
	}

	for client := range targets {
		client.Send(msg.message)
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SessionConnectionCount returns the number of open tabs for one session.
func (h *Hub) SessionConnectionCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessionClients[sessionID])
}

// IsRunning returns whether the hub is currently running.
func (h *Hub) IsRunning() bool {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.running
}

// report must be called with mu held.
func (h *Hub) report() {
	if h.gauge != nil {
		h.gauge.Set(float64(len(h.clients)))
	}
}
