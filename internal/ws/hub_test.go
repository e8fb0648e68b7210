package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tush00nka/teledrive/internal/model"
)

func dialHub(t *testing.T, hub *Hub, sessionID string) *websocket.Conn {
	t.Helper()
	upgrader := NewUpgrader([]string{"*"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(context.Background(), conn, sessionID)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) OutEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev OutEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestHubDeliversNoticesToSession(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar())
	defer hub.Shutdown()

	conn := dialHub(t, hub, "sess-1")
	assert.Equal(t, EventTypeHello, readEvent(t, conn).Type)

	hub.Notify("other", model.Notice{Title: "not for us"})
	hub.Notify("sess-1", model.Notice{Level: model.NoticeError, Title: "Error Loading Media", Time: time.Now()})

	ev := readEvent(t, conn)
	assert.Equal(t, EventTypeNotice, ev.Type)
	require.NotNil(t, ev.Notice)
	assert.Equal(t, "Error Loading Media", ev.Notice.Title)
}

func TestHubAnswersPing(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar())
	defer hub.Shutdown()

	conn := dialHub(t, hub, "sess-1")
	readEvent(t, conn)

	require.NoError(t, conn.WriteJSON(InEvent{Type: "ping"}))
	assert.Equal(t, EventTypePong, readEvent(t, conn).Type)
}

func TestNotifyWithoutClientsDoesNotBlock(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar())
	defer hub.Shutdown()

	for i := 0; i < 1000; i++ {
		hub.Notify("nobody", model.Notice{Title: "x"})
	}
	sent, _, _ := hub.Stats()
	assert.Zero(t, sent)
}

func TestUpgraderOrigins(t *testing.T) {
	up := NewUpgrader([]string{"http://localhost:3000"})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, up.CheckOrigin(r))

	r.Header.Set("Origin", "http://evil.example")
	assert.False(t, up.CheckOrigin(r))
}

func TestRoomDropsClosedClientsOnBroadcast(t *testing.T) {
	conns := make(chan *websocket.Conn, 1)
	upgrader := NewUpgrader([]string{"*"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)

	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })

	log := zap.NewNop().Sugar()
	room := NewRoom("sess-1", 2, log)
	defer room.Shutdown()

	client := NewClient(context.Background(), <-conns, "sess-1", log)
	require.True(t, room.RegisterClient(client))
	require.Eventually(t, func() bool { return !room.IsEmpty() }, time.Second, 10*time.Millisecond)

	client.Close()
	assert.True(t, client.IsClosed())

	assert.True(t, room.Broadcast([]byte(`{"type":"notice"}`)))
	assert.Eventually(t, room.IsEmpty, time.Second, 10*time.Millisecond)
}
