package bus_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/reusedev/gen-hub/config"
	"github.com/reusedev/gen-hub/internal/consts"
	"github.com/reusedev/gen-hub/internal/modules/bus"
	"github.com/stretchr/testify/require"
)

type staticValidator map[string]string

func (v staticValidator) Validate(token string) (string, error) {
	if userId, ok := v[token]; ok {
		return userId, nil
	}
	return "", fmt.Errorf("unknown token")
}

func newTestHub(t *testing.T) (*bus.Hub, *httptest.Server) {
	t.Helper()
	hub := bus.NewHub(
		config.Bus{IdleTimeout: "60s", SendBufferLen: 32},
		staticValidator{"tok-alice": "alice", "tok-bob": "bob"},
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Connect(w, r, r.URL.Query().Get("token"))
	}))
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	// first frame is the connected ack
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(raw), "connected")
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	var event map[string]any
	require.NoError(t, json.Unmarshal(raw, &event))
	return event
}

func silent(ws *websocket.Conn) bool {
	ws.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := ws.ReadMessage()
	return err != nil
}

func TestRejectsUnknownToken(t *testing.T) {
	_, srv := newTestHub(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=bogus"
	_, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
}

func TestUserScopedDelivery(t *testing.T) {
	hub, srv := newTestHub(t)
	alice := dial(t, srv, "tok-alice")
	bob := dial(t, srv, "tok-bob")

	hub.Publish(bus.UserEvent("alice", consts.EventGenerationProgress, map[string]any{"run_id": "r1"}))

	event := readEvent(t, alice)
	require.Equal(t, consts.EventGenerationProgress.String(), event["type"])
	require.Equal(t, consts.ScopeUser.String(), event["targetScope"])
	require.True(t, silent(bob))
}

func TestBroadcastReachesEveryUser(t *testing.T) {
	hub, srv := newTestHub(t)
	alice := dial(t, srv, "tok-alice")
	bob := dial(t, srv, "tok-bob")

	hub.Publish(bus.BroadcastEvent(consts.EventSystemStatus, map[string]any{"status": "degraded"}))

	for _, ws := range []*websocket.Conn{alice, bob} {
		event := readEvent(t, ws)
		require.Equal(t, consts.EventSystemStatus.String(), event["type"])
		require.Equal(t, consts.ScopeBroadcast.String(), event["targetScope"])
	}
}

func TestDeliveryPreservesPublishOrder(t *testing.T) {
	hub, srv := newTestHub(t)
	alice := dial(t, srv, "tok-alice")

	for i := 0; i < 20; i++ {
		hub.Publish(bus.UserEvent("alice", consts.EventGenerationProgress, map[string]any{"seq": i}))
	}
	for i := 0; i < 20; i++ {
		event := readEvent(t, alice)
		payload := event["payload"].(map[string]any)
		require.Equal(t, float64(i), payload["seq"])
	}
}

func TestSubscriptionFilter(t *testing.T) {
	hub, srv := newTestHub(t)
	alice := dial(t, srv, "tok-alice")

	err := alice.WriteJSON(map[string]any{"action": "subscribe", "event_types": []string{"gallery_update"}})
	require.NoError(t, err)
	// probe until the subscription narrows delivery
	require.Eventually(t, func() bool {
		hub.Publish(bus.UserEvent("alice", consts.EventGenerationProgress, map[string]any{"probe": true}))
		return silent(alice)
	}, 2*time.Second, 100*time.Millisecond)

	hub.Publish(bus.UserEvent("alice", consts.EventGalleryUpdate, map[string]any{"generation_id": "g1"}))
	event := readEvent(t, alice)
	require.Equal(t, consts.EventGalleryUpdate.String(), event["type"])
}

func TestNoReplayAfterReconnect(t *testing.T) {
	hub, srv := newTestHub(t)
	alice := dial(t, srv, "tok-alice")
	alice.Close()
	require.Eventually(t, func() bool {
		return hub.ConnectionCount("alice") == 0
	}, 2*time.Second, 50*time.Millisecond)

	hub.Publish(bus.UserEvent("alice", consts.EventGenerationProgress, map[string]any{"run_id": "missed"}))

	again := dial(t, srv, "tok-alice")
	hub.Publish(bus.UserEvent("alice", consts.EventGenerationProgress, map[string]any{"run_id": "fresh"}))

	event := readEvent(t, again)
	payload := event["payload"].(map[string]any)
	require.Equal(t, "fresh", payload["run_id"])
	require.True(t, silent(again))
}

func TestUnregisterOnDisconnect(t *testing.T) {
	hub, srv := newTestHub(t)
	alice := dial(t, srv, "tok-alice")
	require.Equal(t, 1, hub.ConnectionCount("alice"))

	alice.Close()
	require.Eventually(t, func() bool {
		return hub.ConnectionCount("alice") == 0
	}, 2*time.Second, 50*time.Millisecond)
}
