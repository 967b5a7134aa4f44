package services

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// BoardEvent is one message pushed to connected board clients: task changes,
// workflow outcomes and notifications. ProjectID zero means broadcast to all.
type BoardEvent struct {
	Type      string      `json:"type"`
	ProjectID uint        `json:"project_id,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type boardClient struct {
	ID        string
	ProjectID uint
	Conn      *websocket.Conn
	Send      chan BoardEvent
}

// BoardHub fans board events out to websocket clients subscribed per project.
type BoardHub struct {
	clients    map[string]*boardClient
	broadcast  chan BoardEvent
	register   chan *boardClient
	unregister chan *boardClient
	mutex      sync.RWMutex
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin is checked by the auth middleware upstream
	},
}

func NewBoardHub() *BoardHub {
	return &BoardHub{
		clients:    make(map[string]*boardClient),
		broadcast:  make(chan BoardEvent, 64),
		register:   make(chan *boardClient),
		unregister: make(chan *boardClient),
	}
}

func (h *BoardHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.ID] = client
			h.mutex.Unlock()
			logrus.Infof("Board client %s connected (project %d)", client.ID, client.ProjectID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
				logrus.Infof("Board client %s disconnected", client.ID)
			}
			h.mutex.Unlock()

		case event := <-h.broadcast:
			h.mutex.Lock()
			for id, client := range h.clients {
				if event.ProjectID != 0 && client.ProjectID != 0 && client.ProjectID != event.ProjectID {
					continue
				}
				select {
				case client.Send <- event:
				default:
					close(client.Send)
					delete(h.clients, id)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Broadcast queues an event for delivery; it never blocks the caller.
func (h *BoardHub) Broadcast(event BoardEvent) {
	select {
	case h.broadcast <- event:
	default:
		logrus.Warn("Board hub broadcast buffer full, dropping event")
	}
}

func (h *BoardHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the connection and subscribes it to a project's events.
func (h *BoardHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	var projectID uint
	if raw := c.Query("project_id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 32); err == nil {
			projectID = uint(id)
		}
	}

	client := &boardClient{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Conn:      conn,
		Send:      make(chan BoardEvent, 256),
	}
	h.register <- client

	go h.writePump(client)
	go h.readPump(client)
}

func (h *BoardHub) writePump(client *boardClient) {
	defer client.Conn.Close()
	for event := range client.Send {
		if err := client.Conn.WriteJSON(event); err != nil {
			logrus.Warnf("Board client %s write failed: %v", client.ID, err)
			return
		}
	}
}

// readPump drains the connection so pings/closes are processed; clients do not
// send board commands over the socket.
func (h *BoardHub) readPump(client *boardClient) {
	defer func() {
		h.unregister <- client
		client.Conn.Close()
	}()
	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
