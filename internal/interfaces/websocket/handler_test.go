package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-status-hub/internal/domain"
	"go-status-hub/internal/infrastructure/hub"
	"go-status-hub/internal/infrastructure/logger"
)

type frame struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Channel   string          `json:"channel"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

func newServer(t *testing.T) (*hub.Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := hub.New(logger.NewNopLogger(), hub.WithChannels(domain.ChannelServiceUpdates, domain.ChannelIncidentUpdates))
	require.NoError(t, h.Start(context.Background()))

	cfg := Config{HandshakeTimeout: time.Second, Connection: hub.DefaultWebSocketConfig()}
	r := gin.New()
	InitWebSocketRouter(logger.NewNopLogger(), h, cfg, r.Group(""))

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		_ = h.Stop(context.Background())
		srv.Close()
	})
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWebSocket_JoinThenReceiveEvents(t *testing.T) {
	h, srv := newServer(t)
	conn := dial(t, srv)

	hello := read(t, conn)
	assert.Equal(t, hub.TypeConnected, hello.Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "join", "channel": domain.ChannelServiceUpdates}))
	joined := read(t, conn)
	assert.Equal(t, hub.TypeJoined, joined.Type)
	assert.Equal(t, domain.ChannelServiceUpdates, joined.Channel)

	ts := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	svc := domain.Service{ID: "svc-1", Name: "API", Status: domain.StatusMajorOutage, UpdatedAt: ts}
	report := h.Publish(context.Background(), domain.ChannelServiceUpdates, hub.EventMessage(domain.StatusEvent{
		Kind: domain.ServiceUpdated, EntityID: svc.ID, Payload: svc, Timestamp: ts,
	}))
	assert.Equal(t, 1, report.Delivered)

	ev := read(t, conn)
	assert.Equal(t, "serviceUpdated", ev.Type)
	assert.True(t, ts.Equal(ev.Timestamp))
	var got domain.Service
	require.NoError(t, json.Unmarshal(ev.Payload, &got))
	assert.Equal(t, domain.StatusMajorOutage, got.Status)

	// incident events are not delivered to a service subscriber
	h.Publish(context.Background(), domain.ChannelIncidentUpdates, hub.KeepAliveMessage())
	require.NoError(t, conn.WriteJSON(map[string]string{"action": "ping"}))
	assert.Equal(t, hub.TypePong, read(t, conn).Type)
}

func TestWebSocket_ConnectionsEndpoint(t *testing.T) {
	_, srv := newServer(t)
	conn := dial(t, srv)
	read(t, conn)
	require.NoError(t, conn.WriteJSON(map[string]string{"action": "join", "channel": domain.ChannelIncidentUpdates}))
	read(t, conn)

	resp, err := http.Get(srv.URL + "/api/v1/ws/connections")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Total       int                  `json:"total_connections"`
		Connections []hub.ConnectionInfo `json:"connections"`
		Running     bool                 `json:"hub_running"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Running)
	require.Equal(t, 1, body.Total)
	assert.True(t, strings.HasPrefix(body.Connections[0].ID, "ws-"))
	assert.Equal(t, []string{domain.ChannelIncidentUpdates}, body.Connections[0].Channels)
}

func TestWebSocket_MalformedFrameDisconnects(t *testing.T) {
	h, srv := newServer(t)
	conn := dial(t, srv)
	read(t, conn)
	require.Eventually(t, func() bool { return h.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	require.Eventually(t, func() bool { return h.ConnectionCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWebSocket_ClientCloseUnregisters(t *testing.T) {
	h, srv := newServer(t)
	conn := dial(t, srv)
	read(t, conn)
	require.NoError(t, conn.WriteJSON(map[string]string{"action": "join", "channel": domain.ChannelServiceUpdates}))
	read(t, conn)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.ConnectionCount() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, h.Channels()[domain.ChannelServiceUpdates])
}

func TestWebSocket_HubStopped(t *testing.T) {
	h, srv := newServer(t)
	require.NoError(t, h.Stop(context.Background()))

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
