package server

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketManager handles WebSocket connections and broadcasts
type WebSocketManager struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.Mutex
}

// NewWebSocketManager creates a new WebSocket manager
func NewWebSocketManager() *WebSocketManager {
	return &WebSocketManager{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Start begins the WebSocket manager loop
func (wsm *WebSocketManager) Start() {
	go func() {
		for {
			select {
			case client := <-wsm.register:
				wsm.mu.Lock()
				wsm.clients[client] = true
				wsm.mu.Unlock()
				log.Printf("WebSocket client connected. Total clients: %d", len(wsm.clients))
			case client := <-wsm.unregister:
				wsm.mu.Lock()
				if _, ok := wsm.clients[client]; ok {
					delete(wsm.clients, client)
					client.Close()
				}
				wsm.mu.Unlock()
			case message := <-wsm.broadcast:
				wsm.mu.Lock()
				for client := range wsm.clients {
					if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
						client.Close()
						delete(wsm.clients, client)
					}
				}
				wsm.mu.Unlock()
			}
		}
	}()
}

// Broadcast sends a typed JSON event to all connected clients.
func (wsm *WebSocketManager) Broadcast(eventType string, payload any) {
	data, err := json.Marshal(map[string]any{
		"type": eventType,
		"data": payload,
	})
	if err != nil {
		log.Printf("Failed to marshal %s event: %v", eventType, err)
		return
	}

	select {
	case wsm.broadcast <- data:
	default:
		// a stalled broadcast loop must not back-pressure the scheduler
	}
}

// RegisterClient registers a new WebSocket client
func (wsm *WebSocketManager) RegisterClient(conn *websocket.Conn) {
	wsm.register <- conn
}

// UnregisterClient unregisters a WebSocket client
func (wsm *WebSocketManager) UnregisterClient(conn *websocket.Conn) {
	wsm.unregister <- conn
}
