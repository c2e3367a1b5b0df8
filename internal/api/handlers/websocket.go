// Package handlers provides HTTP request handlers for the nmapdeck API.
// This file implements the WebSocket hub that pushes scan lifecycle events
// to connected browsers.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anstrom/nmapdeck/internal/api/middleware"
)

const (
	// WebSocket configuration constants.
	writeWait       = 10 * time.Second                                   // Time allowed to write a message to the peer
	pongWait        = 60 * time.Second                                   // Time to read next pong message from peer
	pingPeriodRatio = 0.9                                                // Ratio of pongWait for pingPeriod
	pingPeriod      = time.Duration(float64(pongWait) * pingPeriodRatio) // Send pings to peer (must be < pongWait)
	maxMessageSize  = 512                                                // Maximum message size allowed from peer
	bufferSize      = 256                                                // Size of the broadcast channel buffer
)

// Scan lifecycle event types.
const (
	EventScanStarted   = "scan_started"
	EventScanCompleted = "scan_completed"
	EventScanFailed    = "scan_failed"
)

// Broadcaster publishes events to connected clients.
type Broadcaster interface {
	Broadcast(eventType string, data interface{}) error
}

// WebSocketMessage is the envelope of every pushed event.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// ScanEvent is the payload of scan lifecycle events.
type ScanEvent struct {
	RequestID string `json:"request_id,omitempty"`
	Targets   string `json:"targets"`
	Mode      string `json:"mode"`
	File      string `json:"file,omitempty"`
	Duration  string `json:"duration,omitempty"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// WebSocketHandler owns the client set. All writes to client connections
// happen on the hub goroutine; gorilla connections allow one writer.
type WebSocketHandler struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	shutdown   chan struct{}
	closeOnce  sync.Once
	mutex      sync.RWMutex
}

// NewWebSocketHandler creates the hub and starts its goroutine. Origins are
// checked against allowedOrigins; "*" allows any.
func NewWebSocketHandler(logger *slog.Logger, allowedOrigins []string) *WebSocketHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	handler := &WebSocketHandler{
		logger: logger.With("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, bufferSize),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		shutdown:   make(chan struct{}),
	}

	go handler.run()

	return handler
}

// ServeWS upgrades the request and keeps the connection registered until
// the peer goes away.
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", "request_id", requestID, "error", err)
		return
	}
	h.logger.Info("New WebSocket connection", "request_id", requestID, "remote_addr", r.RemoteAddr)

	select {
	case h.register <- conn:
	case <-h.shutdown:
		_ = conn.Close()
		return
	}

	h.readPump(conn, requestID)
}

// run manages client connections and broadcasts.
func (h *WebSocketHandler) run() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-h.shutdown:
			h.closeAll()
			return

		case conn := <-h.register:
			h.mutex.Lock()
			h.clients[conn] = true
			h.mutex.Unlock()
			h.logger.Debug("Client registered", "total_clients", h.ConnectedClients())

		case conn := <-h.unregister:
			h.drop(conn)

		case message := <-h.broadcast:
			h.writeAll(websocket.TextMessage, message)

		case <-ticker.C:
			h.writeAll(websocket.PingMessage, nil)
		}
	}
}

// readPump consumes client frames so that pongs and close frames are
// processed. Clients are not expected to send anything else.
func (h *WebSocketHandler) readPump(conn *websocket.Conn, requestID string) {
	defer func() {
		select {
		case h.unregister <- conn:
		case <-h.shutdown:
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.Error("Failed to set read deadline", "request_id", requestID, "error", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket unexpected close", "request_id", requestID, "error", err)
			}
			return
		}
	}
}

// writeAll sends one frame to every client, dropping clients that fail.
func (h *WebSocketHandler) writeAll(messageType int, data []byte) {
	h.mutex.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mutex.RUnlock()

	for _, conn := range conns {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			h.drop(conn)
			continue
		}
		if err := conn.WriteMessage(messageType, data); err != nil {
			h.logger.Debug("Write failed, closing connection", "error", err)
			h.drop(conn)
		}
	}
}

func (h *WebSocketHandler) drop(conn *websocket.Conn) {
	h.mutex.Lock()
	_, known := h.clients[conn]
	delete(h.clients, conn)
	h.mutex.Unlock()

	if known {
		if err := conn.Close(); err != nil {
			h.logger.Debug("Error closing WebSocket connection", "error", err)
		}
		h.logger.Debug("Client unregistered", "total_clients", h.ConnectedClients())
	}
}

func (h *WebSocketHandler) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for conn := range h.clients {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		if err := conn.Close(); err != nil {
			h.logger.Debug("Error closing WebSocket connection", "error", err)
		}
	}
	h.clients = make(map[*websocket.Conn]bool)
}

// Broadcast queues an event for every connected client. Events are dropped
// rather than blocking the caller when the queue is full.
func (h *WebSocketHandler) Broadcast(eventType string, data interface{}) error {
	message := WebSocketMessage{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	select {
	case <-h.shutdown:
		return fmt.Errorf("websocket hub is closed")
	default:
	}

	select {
	case h.broadcast <- payload:
		return nil
	default:
		h.logger.Warn("Broadcast channel full, dropping message", "type", eventType)
		return fmt.Errorf("broadcast channel full")
	}
}

// ConnectedClients returns the number of connected clients.
func (h *WebSocketHandler) ConnectedClients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and stops the hub.
func (h *WebSocketHandler) Close() error {
	h.closeOnce.Do(func() {
		close(h.shutdown)
	})
	h.logger.Info("WebSocket handler closed")
	return nil
}
