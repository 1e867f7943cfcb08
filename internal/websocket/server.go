package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/unitedbyai/droidclaw/internal/agent"
	"github.com/unitedbyai/droidclaw/internal/crypto"
	"github.com/unitedbyai/droidclaw/internal/device"
	"github.com/unitedbyai/droidclaw/internal/logger"
	"github.com/unitedbyai/droidclaw/internal/models"
	"github.com/unitedbyai/droidclaw/internal/wire"
)

// authTimeout bounds the wait for the first (auth) message after upgrade.
const authTimeout = 10 * time.Second

// dbTimeout bounds best-effort persistence writes from the connection path.
const dbTimeout = 5 * time.Second

// DeviceQueries is the subset of queries used by the device server.
type DeviceQueries interface {
	GetAPIKey(ctx context.Context, keyID string) (models.APIKey, error)
	UpsertDevice(ctx context.Context, arg models.UpsertDeviceParams) error
	MarkDeviceOffline(ctx context.Context, arg models.MarkDeviceOfflineParams) error
	UpdateDeviceTelemetry(ctx context.Context, arg models.UpdateDeviceTelemetryParams) error
}

// GoalStarter starts a goal session; the voice path uses it to turn a
// transcript into a goal.
type GoalStarter interface {
	StartGoal(deviceID, userID, goal string, maxSteps int) (agent.Info, error)
}

// DeviceServer accepts device WebSocket connections: auth handshake first,
// then a read loop that dispatches decoded messages to the registry, the
// correlator, and the voice relay.
type DeviceServer struct {
	registry *device.Registry
	relay    *device.Relay
	queries  DeviceQueries
	goals    GoalStarter
	now      func() time.Time
	newID    func() string
	upgrader websocket.Upgrader
}

// NewDeviceServer creates the device-facing WebSocket server.
func NewDeviceServer(registry *device.Registry, relay *device.Relay, queries DeviceQueries, goals GoalStarter, now func() time.Time, newID func() string) *DeviceServer {
	if now == nil {
		now = time.Now
	}
	return &DeviceServer{
		registry: registry,
		relay:    relay,
		queries:  queries,
		goals:    goals,
		now:      now,
		newID:    newID,
		upgrader: websocket.Upgrader{
			// Devices connect with API keys, not cookies; origin checks add
			// nothing here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleDevice upgrades the request and runs the connection to completion.
func (s *DeviceServer) HandleDevice(c *gin.Context) {
	raw, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("[ws] upgrade failed: %v", err)
		return
	}

	ws := newWSConn(s.newID(), raw)
	claims, err := s.handshake(raw)
	if err != nil {
		logger.Infof("[ws] handshake failed (conn %s): %v", ws.ID(), err)
		_ = ws.Close("authentication failed")
		return
	}

	dc := s.register(ws, claims)
	logger.Infof("[ws] device %s connected (conn %s, user %s)", claims.DeviceID, ws.ID(), claims.UserID)

	reason := s.readLoop(raw, dc)

	if gone := s.registry.MarkOffline(ws.ID(), reason); gone != nil {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		if err := s.queries.MarkDeviceOffline(ctx, models.MarkDeviceOfflineParams{
			ID:         gone.DeviceID(),
			LastSeenAt: s.now(),
		}); err != nil {
			logger.Warnf("[ws] mark device %s offline: %v", gone.DeviceID(), err)
		}
		cancel()
	}
	s.relay.Drop(ws.ID())
	_ = ws.Close("")
}

// handshake reads and validates the auth message. Any protocol violation
// before authentication is fatal.
func (s *DeviceServer) handshake(raw *websocket.Conn) (device.AuthClaims, error) {
	if err := raw.SetReadDeadline(s.now().Add(authTimeout)); err != nil {
		return device.AuthClaims{}, err
	}
	_, data, err := raw.ReadMessage()
	if err != nil {
		return device.AuthClaims{}, err
	}

	msg, err := wire.Decode(data)
	if err != nil {
		return device.AuthClaims{}, err
	}
	auth, ok := msg.(wire.AuthMessage)
	if !ok {
		return device.AuthClaims{}, errors.New("first message must be auth")
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()
	return s.authenticate(ctx, auth)
}

// authenticate resolves the API key to an account and builds the claims.
func (s *DeviceServer) authenticate(ctx context.Context, auth wire.AuthMessage) (device.AuthClaims, error) {
	if auth.DeviceInfo.DeviceID == "" {
		return device.AuthClaims{}, errors.New("auth missing deviceId")
	}
	keyID, secret, err := crypto.ParseAPIKey(auth.APIKey)
	if err != nil {
		return device.AuthClaims{}, err
	}
	key, err := s.queries.GetAPIKey(ctx, keyID)
	if err != nil {
		return device.AuthClaims{}, errors.New("unknown api key")
	}
	if !crypto.VerifyAPIKeySecret(key.SecretHash, secret) {
		return device.AuthClaims{}, errors.New("api key verification failed")
	}
	return device.AuthClaims{
		DeviceID: auth.DeviceInfo.DeviceID,
		UserID:   key.AccountID,
		Info:     auth.DeviceInfo,
	}, nil
}

// register records the connection, persists the device row, and acknowledges
// the handshake.
func (s *DeviceServer) register(ws *wsConn, claims device.AuthClaims) *device.Connection {
	dc := s.registry.Register(ws, claims)

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	err := s.queries.UpsertDevice(ctx, models.UpsertDeviceParams{
		ID:           claims.DeviceID,
		AccountID:    claims.UserID,
		Model:        claims.Info.Model,
		Manufacturer: claims.Info.Manufacturer,
		LastSeenAt:   s.now(),
	})
	cancel()
	if err != nil {
		logger.Warnf("[ws] upsert device %s: %v", claims.DeviceID, err)
	}

	if frame, err := wire.EncodeAuthOK(claims.DeviceID); err == nil {
		if err := ws.WriteMessage(frame); err != nil {
			logger.Debugf("[ws] auth_ok write failed: %v", err)
		}
	}
	return dc
}

// readLoop consumes frames until the transport fails and returns the close
// reason.
func (s *DeviceServer) readLoop(raw *websocket.Conn, dc *device.Connection) string {
	// The liveness monitor owns staleness; the transport itself never times
	// reads out.
	if err := raw.SetReadDeadline(time.Time{}); err != nil {
		return err.Error()
	}
	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debugf("[ws] read error on conn %s: %v", dc.ConnID(), err)
			}
			return "read loop ended"
		}
		s.handleFrame(dc, data)
	}
}

// handleFrame decodes and dispatches one inbound frame. Malformed frames
// after authentication are logged and dropped; the connection stays up.
func (s *DeviceServer) handleFrame(dc *device.Connection, data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		logger.Warnf("[ws] dropping frame from device %s: %v", dc.DeviceID(), err)
		return
	}
	s.registry.Touch(dc.ConnID())

	switch m := msg.(type) {
	case wire.ScreenMessage:
		if !dc.Correlator().Resolve(m.RequestID, m) {
			logger.Debugf("[ws] stale screen response %s from device %s", m.RequestID, dc.DeviceID())
		}

	case wire.ResultMessage:
		if !dc.Correlator().Resolve(m.RequestID, m) {
			logger.Debugf("[ws] stale result %s from device %s", m.RequestID, dc.DeviceID())
		}

	case wire.PongMessage:
		// Touch above is the whole point.

	case wire.HeartbeatMessage:
		s.registry.UpdateTelemetry(dc.ConnID(), m.BatteryLevel, m.IsCharging)
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		if err := s.queries.UpdateDeviceTelemetry(ctx, models.UpdateDeviceTelemetryParams{
			ID:           dc.DeviceID(),
			BatteryLevel: m.BatteryLevel,
			IsCharging:   m.IsCharging,
			LastSeenAt:   s.now(),
		}); err != nil {
			logger.Warnf("[ws] persist telemetry for %s: %v", dc.DeviceID(), err)
		}
		cancel()

	case wire.AppsMessage:
		s.registry.SetApps(dc.ConnID(), m.Apps)
		logger.Debugf("[ws] device %s reported %d apps", dc.DeviceID(), len(m.Apps))

	case wire.VoiceStartMessage:
		s.relay.StartVoice(dc)

	case wire.VoiceChunkMessage:
		if err := s.relay.Chunk(dc.ConnID(), m.Data); err != nil {
			logger.Warnf("[ws] voice chunk from device %s: %v", dc.DeviceID(), err)
		}

	case wire.VoiceStopMessage:
		s.finishVoice(dc, m.Action)

	case wire.AuthMessage:
		logger.Warnf("[ws] repeated auth from device %s ignored", dc.DeviceID())

	default:
		logger.Warnf("[ws] unhandled message %q from device %s", msg.Kind(), dc.DeviceID())
	}
}

// finishVoice closes the voice stream and, when asked, turns the transcript
// into a goal on the same device.
func (s *DeviceServer) finishVoice(dc *device.Connection, action string) {
	deviceID, transcript, err := s.relay.StopVoice(dc.ConnID())
	if err != nil {
		logger.Warnf("[ws] voice stop from device %s: %v", dc.DeviceID(), err)
		return
	}
	if action != "goal" {
		return
	}
	if transcript == "" {
		logger.Infof("[ws] empty transcript from device %s, no goal started", deviceID)
		return
	}
	if s.goals == nil {
		logger.Warnf("[ws] transcript from device %s dropped: goal starting not wired", deviceID)
		return
	}
	info, err := s.goals.StartGoal(deviceID, dc.UserID(), transcript, 0)
	if err != nil {
		logger.Warnf("[ws] voice goal on device %s: %v", deviceID, err)
		return
	}
	logger.Infof("[ws] voice goal %q started session %s on device %s", transcript, info.ID, deviceID)
}
