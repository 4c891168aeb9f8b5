package client_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-status-hub/internal/application/gateway"
	"go-status-hub/internal/client"
	"go-status-hub/internal/domain"
	"go-status-hub/internal/infrastructure/auth"
	"go-status-hub/internal/infrastructure/hub"
	"go-status-hub/internal/infrastructure/logger"
	"go-status-hub/internal/infrastructure/store"
	"go-status-hub/internal/interfaces/rest/v1/handler"
	"go-status-hub/internal/interfaces/websocket"
)

func TestController_AgainstHub(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logger.NewNopLogger()

	h := hub.New(log, hub.WithChannels(domain.ChannelServiceUpdates, domain.ChannelIncidentUpdates))
	require.NoError(t, h.Start(context.Background()))
	gw := gateway.New(store.NewMemoryStore(), h, nil, log, gateway.DefaultConfig())

	r := gin.New()
	handler.InitRESTRouter(log, gw, auth.NewIdentity("secret", "status-hub"), r.Group(""))
	websocket.InitWebSocketRouter(log, h, websocket.Config{
		HandshakeTimeout: time.Second,
		Connection:       hub.DefaultWebSocketConfig(),
	}, r.Group(""))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		_ = h.Stop(context.Background())
		srv.Close()
	})

	ctx := context.Background()
	api, err := gw.CreateService(ctx, "user-1", domain.Service{Name: "API", Description: "public api"})
	require.NoError(t, err)

	live := make(chan struct{}, 1)
	c := client.NewController(
		&client.WebSocketDialer{URL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", HandshakeTimeout: time.Second},
		client.NewHTTPFetcher(srv.URL, time.Second),
		client.Config{
			Channels: []string{domain.ChannelServiceUpdates, domain.ChannelIncidentUpdates},
			OnStateChange: func(s client.State) {
				if s == client.StateLive {
					live <- struct{}{}
				}
			},
		},
		log,
	)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- c.Run(runCtx) }()

	select {
	case <-live:
	case <-time.After(3 * time.Second):
		t.Fatal("controller never went live")
	}

	held, ok := c.Snapshot().Get("service", api.ID)
	require.True(t, ok, "snapshot contains the service created before connecting")
	assert.False(t, held.Deleted)

	_, err = gw.ApplyServiceChange(ctx, "user-1", api.ID, domain.ServicePatch{Status: ptr(domain.StatusMajorOutage)})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		e, _ := c.Snapshot().Get("service", api.ID)
		var svc domain.Service
		return json.Unmarshal(e.Data, &svc) == nil && svc.Status == domain.StatusMajorOutage
	}, 3*time.Second, 10*time.Millisecond)

	_, err = gw.DeleteService(ctx, "user-1", api.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(c.Snapshot().List("service")) == 0 }, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.Eventually(t, func() bool { return h.ConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func ptr[T any](v T) *T { return &v }
