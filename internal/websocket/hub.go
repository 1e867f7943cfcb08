package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/unitedbyai/droidclaw/internal/agent"
	"github.com/unitedbyai/droidclaw/internal/crypto"
	"github.com/unitedbyai/droidclaw/internal/device"
	"github.com/unitedbyai/droidclaw/internal/logger"
	"github.com/unitedbyai/droidclaw/internal/wire"
)

// Event is one outbound dashboard frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Dashboard event types.
const (
	EventDeviceOnline    = "device_online"
	EventDeviceOffline   = "device_offline"
	EventDeviceTelemetry = "device_telemetry"
	EventSessionStarted  = "session_started"
	EventSessionStep     = "session_step"
	EventSessionFinished = "session_finished"
)

// sendBuffer is the per-client queue depth. A client that cannot drain this
// many events loses the overflow rather than stalling the emitters.
const sendBuffer = 64

// Hub fans presence and session events out to authenticated dashboard
// clients. It implements the device presence sink and the agent session sink;
// both deliver from hot paths, so emission never blocks.
type Hub struct {
	jwt      *crypto.JWTManager
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	userID string
	send   chan Event
}

// NewHub creates a dashboard hub authenticating clients with jwt.
func NewHub(jwt *crypto.JWTManager) *Hub {
	return &Hub{
		jwt: jwt,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*hubClient]struct{}),
	}
}

// HandleDashboard upgrades an authenticated dashboard client and streams
// events to it until it disconnects. The token travels in the `token` query
// parameter (browser WebSocket clients cannot set headers).
func (h *Hub) HandleDashboard(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := h.jwt.VerifyToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("[hub] upgrade failed: %v", err)
		return
	}

	client := &hubClient{userID: claims.Subject, send: make(chan Event, sendBuffer)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	logger.Infof("[hub] dashboard client connected (user %s)", client.userID)

	done := make(chan struct{})
	go h.writeLoop(raw, client, done)

	// Dashboard clients only listen; the read loop exists to notice the
	// close.
	for {
		if _, _, err := raw.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	close(done)
	_ = raw.Close()
	logger.Infof("[hub] dashboard client disconnected (user %s)", client.userID)
}

func (h *Hub) writeLoop(raw *websocket.Conn, client *hubClient, done chan struct{}) {
	for {
		select {
		case ev := <-client.send:
			_ = raw.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := raw.WriteJSON(ev); err != nil {
				_ = raw.Close()
				return
			}
		case <-done:
			return
		}
	}
}

// broadcast queues an event on every client owned by userID, dropping when a
// client's buffer is full.
func (h *Hub) broadcast(userID string, ev Event) {
	h.mu.Lock()
	targets := make([]*hubClient, 0, len(h.clients))
	for client := range h.clients {
		if client.userID == userID {
			targets = append(targets, client)
		}
	}
	h.mu.Unlock()

	for _, client := range targets {
		select {
		case client.send <- ev:
		default:
			logger.Debugf("[hub] dropping %s event for slow client (user %s)", ev.Type, userID)
		}
	}
}

// ClientCount returns the number of connected dashboard clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Presence sink.

func (h *Hub) DeviceOnline(snap device.Snapshot) {
	h.broadcast(snap.UserID, Event{Type: EventDeviceOnline, Data: snap})
}

func (h *Hub) DeviceOffline(snap device.Snapshot) {
	h.broadcast(snap.UserID, Event{Type: EventDeviceOffline, Data: snap})
}

func (h *Hub) DeviceTelemetry(snap device.Snapshot) {
	h.broadcast(snap.UserID, Event{Type: EventDeviceTelemetry, Data: snap})
}

// Session sink.

func (h *Hub) SessionStarted(info agent.Info) {
	h.broadcast(info.UserID, Event{Type: EventSessionStarted, Data: info})
}

// stepEvent pairs a step record with its session identity for the feed. The
// action goes out in its flat wire shape so dashboard consumers see the same
// union the device does.
type stepEvent struct {
	SessionID string          `json:"sessionId"`
	DeviceID  string          `json:"deviceId"`
	Step      int             `json:"step"`
	Action    json.RawMessage `json:"action"`
	Reasoning string          `json:"reasoning,omitempty"`
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
}

func (h *Hub) SessionStep(info agent.Info, rec agent.StepRecord) {
	action, err := wire.MarshalAction(rec.Action)
	if err != nil {
		action = []byte(`{}`)
	}
	h.broadcast(info.UserID, Event{Type: EventSessionStep, Data: stepEvent{
		SessionID: info.ID,
		DeviceID:  info.DeviceID,
		Step:      rec.Step,
		Action:    action,
		Reasoning: rec.Reasoning,
		Success:   rec.Success,
		Error:     rec.Error,
	}})
}

func (h *Hub) SessionFinished(info agent.Info) {
	h.broadcast(info.UserID, Event{Type: EventSessionFinished, Data: info})
}
