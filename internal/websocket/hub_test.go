package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/unitedbyai/droidclaw/internal/agent"
	"github.com/unitedbyai/droidclaw/internal/crypto"
	"github.com/unitedbyai/droidclaw/internal/device"
	"github.com/unitedbyai/droidclaw/internal/wire"
)

type hubRig struct {
	hub *Hub
	jwt *crypto.JWTManager
	ts  *httptest.Server
}

func newHubRig(t *testing.T) *hubRig {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwt, err := crypto.NewJWTManager("test-master-secret")
	require.NoError(t, err)

	hub := NewHub(jwt)
	router := gin.New()
	router.GET("/ws/dashboard", hub.HandleDashboard)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return &hubRig{hub: hub, jwt: jwt, ts: ts}
}

func (r *hubRig) dial(t *testing.T, userID string) *gorilla.Conn {
	t.Helper()
	token, err := r.jwt.IssueToken(userID, time.Minute)
	require.NoError(t, err)

	before := r.hub.ClientCount()
	url := "ws" + strings.TrimPrefix(r.ts.URL, "http") + "/ws/dashboard?token=" + token
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		return r.hub.ClientCount() == before+1
	}, time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *gorilla.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestHubRejectsBadToken(t *testing.T) {
	r := newHubRig(t)

	url := "ws" + strings.TrimPrefix(r.ts.URL, "http") + "/ws/dashboard?token=garbage"
	_, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	url = "ws" + strings.TrimPrefix(r.ts.URL, "http") + "/ws/dashboard"
	_, resp, err = gorilla.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHubPresenceEvents(t *testing.T) {
	r := newHubRig(t)
	conn := r.dial(t, "user-1")

	r.hub.DeviceOnline(device.Snapshot{DeviceID: "device-1", UserID: "user-1", Online: true})
	ev := readEvent(t, conn)
	require.Equal(t, EventDeviceOnline, ev.Type)

	r.hub.DeviceTelemetry(device.Snapshot{DeviceID: "device-1", UserID: "user-1", BatteryLevel: 42})
	ev = readEvent(t, conn)
	require.Equal(t, EventDeviceTelemetry, ev.Type)

	data, err := json.Marshal(ev.Data)
	require.NoError(t, err)
	var snap device.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	require.Equal(t, "device-1", snap.DeviceID)
	require.Equal(t, 42, snap.BatteryLevel)
}

func TestHubScopesEventsToOwner(t *testing.T) {
	r := newHubRig(t)
	owner := r.dial(t, "user-1")
	other := r.dial(t, "user-2")

	r.hub.DeviceOffline(device.Snapshot{DeviceID: "device-1", UserID: "user-1"})

	ev := readEvent(t, owner)
	require.Equal(t, EventDeviceOffline, ev.Type)

	require.NoError(t, other.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	var stray Event
	require.Error(t, other.ReadJSON(&stray))
}

func TestHubSessionEvents(t *testing.T) {
	r := newHubRig(t)
	conn := r.dial(t, "user-1")

	info := agent.Info{ID: "session-1", DeviceID: "device-1", UserID: "user-1", Goal: "open settings", Status: agent.StatusRunning}
	r.hub.SessionStarted(info)
	ev := readEvent(t, conn)
	require.Equal(t, EventSessionStarted, ev.Type)

	r.hub.SessionStep(info, agent.StepRecord{Step: 1, Action: wire.Tap{X: 5, Y: 6}, Success: true})
	ev = readEvent(t, conn)
	require.Equal(t, EventSessionStep, ev.Type)

	data, err := json.Marshal(ev.Data)
	require.NoError(t, err)
	var step struct {
		SessionID string          `json:"sessionId"`
		Step      int             `json:"step"`
		Action    json.RawMessage `json:"action"`
	}
	require.NoError(t, json.Unmarshal(data, &step))
	require.Equal(t, "session-1", step.SessionID)
	require.Equal(t, 1, step.Step)
	require.JSONEq(t, `{"action":"tap","x":5,"y":6}`, string(step.Action))

	info.Status = agent.StatusCompleted
	r.hub.SessionFinished(info)
	ev = readEvent(t, conn)
	require.Equal(t, EventSessionFinished, ev.Type)
}

func TestHubDropsOnSlowClient(t *testing.T) {
	r := newHubRig(t)

	// An unread client only has the socket and channel buffers; flooding it
	// must not block the emitter.
	r.dial(t, "user-1")
	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBuffer*10; i++ {
			r.hub.DeviceTelemetry(device.Snapshot{DeviceID: "device-1", UserID: "user-1", BatteryLevel: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
}
