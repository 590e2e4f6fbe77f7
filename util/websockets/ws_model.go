package websockets

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message types
const (
	MsgTypeSubmissionProgress = "submission_progress"
	MsgTypeReportEvent        = "report_event"
)

// Client represents a connected WebSocket user
type Client struct {
	Conn    *websocket.Conn
	UserID  string
	IsAdmin bool
}

type WebSocketManager struct {
	clients    map[*websocket.Conn]*Client
	broadcast  chan []byte
	register   chan *Client
	unregister chan *websocket.Conn
	send       chan DirectMessage
	done       chan struct{}
	writeWait  time.Duration
	mu         sync.Mutex
}

// DirectMessage is delivered to every connection of one user.
type DirectMessage struct {
	ReceiverID string
	Message    []byte
}

// Envelope is the shape of every outgoing message.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}
