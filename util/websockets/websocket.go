package websockets

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/bwise1/safestreet/internal/model"
	"github.com/gorilla/websocket"
)

const (
	queueSize = 256
	// writeWait bounds a single write so a stalled peer cannot hold mu.
	writeWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewWebSocketManager initializes a WebSocketManager
func NewWebSocketManager() *WebSocketManager {
	return &WebSocketManager{
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, queueSize),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		send:       make(chan DirectMessage, queueSize),
		done:       make(chan struct{}),
		writeWait:  writeWait,
	}
}

// Run owns all connection writes until ctx is done.
func (manager *WebSocketManager) Run(ctx context.Context) {
	defer close(manager.done)
	for {
		select {
		case <-ctx.Done():
			manager.mu.Lock()
			for conn := range manager.clients {
				conn.Close()
				delete(manager.clients, conn)
			}
			manager.mu.Unlock()
			return

		case client := <-manager.register:
			manager.mu.Lock()
			manager.clients[client.Conn] = client
			manager.mu.Unlock()

		case conn := <-manager.unregister:
			manager.mu.Lock()
			if client, exists := manager.clients[conn]; exists {
				delete(manager.clients, conn)
				conn.Close()
				log.Printf("[WebSocket] client %s disconnected", client.UserID)
			}
			manager.mu.Unlock()

		case message := <-manager.broadcast:
			manager.mu.Lock()
			for _, client := range manager.clients {
				if client.IsAdmin {
					manager.write(client, message)
				}
			}
			manager.mu.Unlock()

		case direct := <-manager.send:
			manager.mu.Lock()
			for _, client := range manager.clients {
				if client.UserID == direct.ReceiverID {
					manager.write(client, direct.Message)
				}
			}
			manager.mu.Unlock()
		}
	}
}

// write must be called with mu held. A client that cannot take the message
// within writeWait is disconnected.
func (manager *WebSocketManager) write(client *Client, message []byte) {
	err := client.Conn.SetWriteDeadline(time.Now().Add(manager.writeWait))
	if err == nil {
		err = client.Conn.WriteMessage(websocket.TextMessage, message)
	}
	if err != nil {
		log.Printf("[WebSocket] dropping client %s: %v", client.UserID, err)
		client.Conn.Close()
		delete(manager.clients, client.Conn)
	}
}

// HandleConnections upgrades an authenticated request and keeps the
// connection registered until the peer goes away.
func (manager *WebSocketManager) HandleConnections(w http.ResponseWriter, r *http.Request, userID string, isAdmin bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("[WebSocket] upgrade error:", err)
		return
	}

	select {
	case manager.register <- &Client{Conn: conn, UserID: userID, IsAdmin: isAdmin}:
	case <-manager.done:
		conn.Close()
		return
	}
	defer func() {
		select {
		case manager.unregister <- conn:
		case <-manager.done:
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// SendToUser queues payload for every connection of userID. Messages are
// dropped when the queue is full.
func (manager *WebSocketManager) SendToUser(userID string, msgType string, payload interface{}) {
	message, err := json.Marshal(Envelope{Type: msgType, Data: payload})
	if err != nil {
		log.Printf("[WebSocket] encoding %s failed: %v", msgType, err)
		return
	}

	select {
	case manager.send <- DirectMessage{ReceiverID: userID, Message: message}:
	default:
		log.Printf("[WebSocket] send queue full, dropping %s for %s", msgType, userID)
	}
}

// Publish delivers a report event to the report owner and to every
// connected administrator.
func (manager *WebSocketManager) Publish(_ context.Context, event model.ReportEvent) error {
	message, err := json.Marshal(Envelope{Type: MsgTypeReportEvent, Data: event})
	if err != nil {
		return err
	}

	select {
	case manager.broadcast <- message:
	default:
		log.Printf("[WebSocket] broadcast queue full, dropping %s", event.Type)
	}
	if event.OwnerID != "" {
		select {
		case manager.send <- DirectMessage{ReceiverID: event.OwnerID, Message: message}:
		default:
			log.Printf("[WebSocket] send queue full, dropping %s for %s", event.Type, event.OwnerID)
		}
	}
	return nil
}

func (manager *WebSocketManager) ClientCount() int {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	return len(manager.clients)
}
