package services

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHubServer(t *testing.T) (*BoardHub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewBoardHub()
	go hub.Run()

	r := gin.New()
	r.GET("/ws", hub.HandleWebSocket)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return hub, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func dialBoard(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "dial websocket")
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *BoardHub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.ClientCount(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBoardHub_BroadcastReachesSubscribers(t *testing.T) {
	hub, url := startHubServer(t)
	conn := dialBoard(t, url+"?project_id=1")
	waitForClients(t, hub, 1)

	hub.Broadcast(BoardEvent{Type: "task_updated", ProjectID: 1, Data: "payload", Timestamp: time.Now()})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event BoardEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "task_updated", event.Type)
	assert.Equal(t, uint(1), event.ProjectID)
}

func TestBoardHub_ProjectScoping(t *testing.T) {
	hub, url := startHubServer(t)
	other := dialBoard(t, url+"?project_id=2")
	waitForClients(t, hub, 1)

	// Event for project 1 must not reach a project-2 subscriber.
	hub.Broadcast(BoardEvent{Type: "task_updated", ProjectID: 1, Timestamp: time.Now()})
	// A global event (no project) reaches everyone.
	hub.Broadcast(BoardEvent{Type: "announcement", Timestamp: time.Now()})

	other.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event BoardEvent
	require.NoError(t, other.ReadJSON(&event))
	assert.Equal(t, "announcement", event.Type)
}

func TestBoardHub_DisconnectPrunesClient(t *testing.T) {
	hub, url := startHubServer(t)
	conn := dialBoard(t, url)
	waitForClients(t, hub, 1)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()
	waitForClients(t, hub, 0)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestBoardHub_BroadcastNeverBlocks(t *testing.T) {
	hub := NewBoardHub()
	// No Run loop draining: the buffered channel fills, later events drop.
	for i := 0; i < 200; i++ {
		done := make(chan struct{})
		go func() {
			hub.Broadcast(BoardEvent{Type: "spam", Timestamp: time.Now()})
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Broadcast blocked")
		}
	}
}

func TestBoardHub_StaleRequestRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewBoardHub()
	r := gin.New()
	r.GET("/ws", hub.HandleWebSocket)

	// Plain HTTP request without an upgrade handshake.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.ServeHTTP(w, req)
	assert.NotEqual(t, http.StatusSwitchingProtocols, w.Code)
	assert.Equal(t, 0, hub.ClientCount())
}
