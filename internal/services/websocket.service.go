package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message types carried in WebSocketMessage.Type
const (
	MessageEvent        = "event"
	MessageResult       = "result"
	MessageError        = "error"
	MessagePing         = "ping"
	MessagePong         = "pong"
	MessageInvoke       = "invoke"
	MessageAuth         = "auth"
	MessageAuthSuccess  = "auth_success"
	MessageAuthError    = "auth_error"
	MessageSubscribe    = "subscribe"
	MessageUnsubscribe  = "unsubscribe"
	clientSendQueueSize = 256
)

var (
	// ErrViewNotConnected is returned by EmitTo when no connection belongs to the view
	ErrViewNotConnected = errors.New("view not connected")
	// ErrHubClosed is returned once the hub has been shut down
	ErrHubClosed = errors.New("event hub closed")
)

// WebSocketMessage is the envelope exchanged with views in both directions
type WebSocketMessage struct {
	Type      string          `json:"type"`
	Event     string          `json:"event,omitempty"`
	ID        string          `json:"id,omitempty"`      // correlates invoke with result/error
	Command   string          `json:"command,omitempty"` // for invoke messages from the view
	Args      json.RawMessage `json:"args,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      interface{}     `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Token     string          `json:"token,omitempty"` // for auth messages from the view
}

// ClientConnection is one websocket connection of a view
type ClientConnection struct {
	ID    string
	View  string
	Conn  *websocket.Conn
	Send  chan WebSocketMessage
	Close chan struct{}
}

// NewClientConnection wraps conn for view with a buffered send queue
func NewClientConnection(id, view string, conn *websocket.Conn) *ClientConnection {
	return &ClientConnection{
		ID:    id,
		View:  view,
		Conn:  conn,
		Send:  make(chan WebSocketMessage, clientSendQueueSize),
		Close: make(chan struct{}),
	}
}

// WebSocketHub tracks connected views and fans events out to them
type WebSocketHub struct {
	mu      sync.RWMutex
	clients map[string]*ClientConnection
	closed  bool
	logger  *zap.Logger
}

func NewWebSocketHub(logger *zap.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients: make(map[string]*ClientConnection),
		logger:  logger.Named("ws"),
	}
}

// Register adds a connection to the hub
func (h *WebSocketHub) Register(client *ClientConnection) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	h.clients[client.ID] = client
	h.logger.Info("client connected",
		zap.String("client", client.ID), zap.String("view", client.View), zap.Int("total", len(h.clients)))
	return nil
}

// Unregister removes a connection and closes its send queue. Safe to call twice.
func (h *WebSocketHub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, exists := h.clients[clientID]
	if !exists {
		return
	}
	delete(h.clients, clientID)
	close(client.Send)
	h.logger.Info("client disconnected",
		zap.String("client", clientID), zap.String("view", client.View), zap.Int("total", len(h.clients)))
}

// Emit publishes event to every connected view. Having no listeners is not an error.
func (h *WebSocketHub) Emit(event string, payload interface{}) error {
	msg := eventMessage(event, payload)

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrHubClosed
	}
	for _, client := range h.clients {
		h.deliver(client, msg)
	}
	return nil
}

// EmitTo publishes event to the connections of view only
func (h *WebSocketHub) EmitTo(view, event string, payload interface{}) error {
	msg := eventMessage(event, payload)

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrHubClosed
	}
	delivered := false
	for _, client := range h.clients {
		if client.View != view {
			continue
		}
		h.deliver(client, msg)
		delivered = true
	}
	if !delivered {
		return fmt.Errorf("%w: %s", ErrViewNotConnected, view)
	}
	return nil
}

// SendMessage queues msg for one connection. It reports false when the client
// is gone or its queue is full.
func (h *WebSocketHub) SendMessage(clientID string, msg WebSocketMessage) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, exists := h.clients[clientID]
	if !exists {
		return false
	}
	return h.deliver(client, msg)
}

// deliver must be called with h.mu held
func (h *WebSocketHub) deliver(client *ClientConnection, msg WebSocketMessage) bool {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	select {
	case client.Send <- msg:
		return true
	default:
		h.logger.Warn("send queue full, message dropped",
			zap.String("client", client.ID), zap.String("type", msg.Type), zap.String("event", msg.Event))
		return false
	}
}

// Views lists the distinct labels of connected views, sorted
func (h *WebSocketHub) Views() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, client := range h.clients {
		seen[client.View] = struct{}{}
	}
	views := make([]string, 0, len(seen))
	for view := range seen {
		views = append(views, view)
	}
	sort.Strings(views)
	return views
}

// ConnectionCount returns the number of open connections
func (h *WebSocketHub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connection's send queue and rejects further use
func (h *WebSocketHub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.Send)
	}
	h.logger.Info("hub stopped")
}

func eventMessage(event string, payload interface{}) WebSocketMessage {
	return WebSocketMessage{
		Type:      MessageEvent,
		Event:     event,
		Timestamp: time.Now(),
		Data:      payload,
	}
}
