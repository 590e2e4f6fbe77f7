package websockets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwise1/safestreet/internal/model"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, manager *WebSocketManager, userID string, isAdmin bool) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		manager.HandleConnections(w, r, userID, isAdmin)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func TestSendToUserAndPublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := NewWebSocketManager()
	go manager.Run(ctx)

	owner := dial(t, manager, "u1", false)
	admin := dial(t, manager, "admin", true)
	require.Eventually(t, func() bool { return manager.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	manager.SendToUser("u1", MsgTypeSubmissionProgress, map[string]string{"message": "Uploading..."})
	env := readEnvelope(t, owner)
	assert.Equal(t, MsgTypeSubmissionProgress, env["type"])

	require.NoError(t, manager.Publish(ctx, model.ReportEvent{
		Type:     model.EventReportStatusChanged,
		ReportID: "r1",
		OwnerID:  "u1",
		Status:   model.StatusResolved,
	}))

	for _, conn := range []*websocket.Conn{owner, admin} {
		env := readEnvelope(t, conn)
		assert.Equal(t, MsgTypeReportEvent, env["type"])
		data := env["data"].(map[string]interface{})
		assert.Equal(t, "r1", data["report_id"])
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := NewWebSocketManager()
	go manager.Run(ctx)

	conn := dial(t, manager, "u1", false)
	require.Eventually(t, func() bool { return manager.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return manager.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStalledClientIsDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := NewWebSocketManager()
	manager.writeWait = 100 * time.Millisecond
	go manager.Run(ctx)

	dial(t, manager, "slow", false)
	require.Eventually(t, func() bool { return manager.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	chunk := strings.Repeat("x", 512<<10)
	for i := 0; i < 128; i++ {
		manager.SendToUser("slow", MsgTypeSubmissionProgress, chunk)
	}
	require.Eventually(t, func() bool { return manager.ClientCount() == 0 }, 10*time.Second, 20*time.Millisecond)

	fast := dial(t, manager, "fast", false)
	require.Eventually(t, func() bool { return manager.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	manager.SendToUser("fast", MsgTypeSubmissionProgress, map[string]string{"message": "Saving..."})
	env := readEnvelope(t, fast)
	assert.Equal(t, MsgTypeSubmissionProgress, env["type"])
}
