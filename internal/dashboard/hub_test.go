package dashboard

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server) (*websocket.Conn, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ClientCount() == n }, 5*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastsPublishedEvents(t *testing.T) {
	hub := NewHub(Config{})
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, ctx := dial(t, srv)
	assert.Equal(t, MessageTypeHello, readMessage(t, ctx, conn).Type)
	waitForClients(t, hub, 1)

	hub.Publish("job_created", map[string]any{"jobId": "WO-1001", "rowIndex": 2})

	msg := readMessage(t, ctx, conn)
	assert.Equal(t, "job_created", msg.Type)
	assert.False(t, msg.Timestamp.IsZero())
	assert.JSONEq(t, `{"jobId":"WO-1001","rowIndex":2}`, string(msg.Data))
}

func TestHub_FansOutToEveryClient(t *testing.T) {
	hub := NewHub(Config{})
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a, ctxA := dial(t, srv)
	b, ctxB := dial(t, srv)
	readMessage(t, ctxA, a)
	readMessage(t, ctxB, b)
	waitForClients(t, hub, 2)

	hub.Publish("schedule_synced", nil)
	assert.Equal(t, "schedule_synced", readMessage(t, ctxA, a).Type)
	assert.Equal(t, "schedule_synced", readMessage(t, ctxB, b).Type)
}

func TestHub_RemovesDisconnectedClients(t *testing.T) {
	hub := NewHub(Config{})
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, ctx := dial(t, srv)
	readMessage(t, ctx, conn)
	waitForClients(t, hub, 1)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	waitForClients(t, hub, 0)
}

func TestHub_NilIsNoop(t *testing.T) {
	var hub *Hub
	assert.NotPanics(t, func() {
		hub.Publish("job_updated", map[string]string{"a": "b"})
		hub.Close()
	})
	assert.Equal(t, 0, hub.ClientCount())

	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest("GET", "/ws", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestHub_PublishAfterCloseDoesNotBlock(t *testing.T) {
	hub := NewHub(Config{Buffer: 1})
	hub.Close()
	done := make(chan struct{})
	go func() {
		hub.Publish("job_created", nil)
		hub.Publish("job_created", nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
}
