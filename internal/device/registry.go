package device

import (
	"errors"
	"sync"
	"time"

	"github.com/unitedbyai/droidclaw/internal/logger"
	"github.com/unitedbyai/droidclaw/internal/wire"
)

// Close reasons sent to the device when the server tears a connection down.
const (
	CloseReasonSuperseded       = "superseded"
	CloseReasonHeartbeatTimeout = "heartbeat timeout"
)

// ErrNotConnected reports that no live connection exists for a device.
var ErrNotConnected = errors.New("device not connected")

// PresenceSink consumes presence and telemetry events. Delivery is
// fire-and-forget; registry correctness never depends on a sink being
// attached.
type PresenceSink interface {
	DeviceOnline(snap Snapshot)
	DeviceOffline(snap Snapshot)
	DeviceTelemetry(snap Snapshot)
}

// Registry tracks every live device connection, keyed both by the ephemeral
// connection id and the persistent device id. Offline records are retained
// for last-seen reporting.
type Registry struct {
	events PresenceSink
	now    func() time.Time
	newID  func() string

	// onGone is invoked (outside the registry lock) whenever the current
	// connection for a device stops being usable: transport close, heartbeat
	// expiry, or supersede-on-reconnect. The agent manager uses it to fail a
	// running session on that device.
	onGone func(deviceID, connID, reason string)

	mu       sync.Mutex
	byConn   map[string]*Connection
	byDevice map[string]*Connection
}

// NewRegistry creates an empty registry.
func NewRegistry(events PresenceSink, now func() time.Time, newID func() string) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		events:   events,
		now:      now,
		newID:    newID,
		byConn:   make(map[string]*Connection),
		byDevice: make(map[string]*Connection),
	}
}

// OnConnectionGone installs the connection-loss hook. Must be called before
// devices connect.
func (r *Registry) OnConnectionGone(fn func(deviceID, connID, reason string)) {
	r.onGone = fn
}

// Register creates (or resurrects) the connection record for an authenticated
// device. A prior live connection for the same persistent device id is
// superseded: its transport is closed, its pending requests fail, and any
// session running on it is torn down through the connection-gone hook.
func (r *Registry) Register(t Transport, claims AuthClaims) *Connection {
	now := r.now()
	conn := &Connection{
		connID:     t.ID(),
		deviceID:   claims.DeviceID,
		userID:     claims.UserID,
		transport:  t,
		correlator: NewCorrelator(r.newID),
		online:     true,
		lastSeen:   now,
		battery:    -1,
		info:       claims.Info,
	}

	r.mu.Lock()
	prev := r.byDevice[claims.DeviceID]
	r.byDevice[claims.DeviceID] = conn
	r.byConn[conn.connID] = conn
	if prev != nil {
		delete(r.byConn, prev.connID)
	}
	r.mu.Unlock()

	if prev != nil && prev.Online() {
		logger.Infof("[registry] device %s reconnected, superseding connection %s", claims.DeviceID, prev.connID)
		prev.setOnline(false, now)
		prev.correlator.FailAll(ErrConnectionLost)
		if err := prev.transport.Close(CloseReasonSuperseded); err != nil {
			logger.Debugf("[registry] close superseded transport: %v", err)
		}
		if r.onGone != nil {
			r.onGone(claims.DeviceID, prev.connID, CloseReasonSuperseded)
		}
	}

	if r.events != nil {
		r.events.DeviceOnline(conn.Snapshot())
	}
	return conn
}

// MarkOffline handles transport close for a connection. The device record is
// retained (demoted to offline) for last-seen reporting. Calls for a
// connection that was already superseded are ignored. It returns the demoted
// connection, or nil when the connection was unknown or already superseded.
func (r *Registry) MarkOffline(connID, reason string) *Connection {
	r.mu.Lock()
	conn, ok := r.byConn[connID]
	if ok {
		delete(r.byConn, connID)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}

	conn.setOnline(false, r.now())
	conn.correlator.FailAll(ErrConnectionLost)

	logger.Infof("[registry] device %s offline (conn %s): %s", conn.deviceID, connID, reason)
	if r.onGone != nil {
		r.onGone(conn.deviceID, connID, reason)
	}
	if r.events != nil {
		r.events.DeviceOffline(conn.Snapshot())
	}
	return conn
}

// Expire closes a connection that missed its heartbeat grace window.
func (r *Registry) Expire(connID string) {
	r.mu.Lock()
	conn, ok := r.byConn[connID]
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := conn.transport.Close(CloseReasonHeartbeatTimeout); err != nil {
		logger.Debugf("[registry] close expired transport: %v", err)
	}
	// The read loop normally observes the close and calls MarkOffline; do it
	// here as well so liveness does not depend on the read loop noticing.
	r.MarkOffline(connID, CloseReasonHeartbeatTimeout)
}

// UpdateTelemetry records battery state from a heartbeat message.
func (r *Registry) UpdateTelemetry(connID string, battery int, charging bool) {
	conn := r.LookupByConnectionID(connID)
	if conn == nil {
		return
	}
	conn.setTelemetry(battery, charging, r.now())
	if r.events != nil {
		r.events.DeviceTelemetry(conn.Snapshot())
	}
}

// Touch records message arrival for liveness tracking.
func (r *Registry) Touch(connID string) {
	if conn := r.LookupByConnectionID(connID); conn != nil {
		conn.touch(r.now())
	}
}

// SetApps caches the installed-app inventory on the connection.
func (r *Registry) SetApps(connID string, apps []wire.AppInfo) {
	if conn := r.LookupByConnectionID(connID); conn != nil {
		conn.setApps(apps)
	}
}

// LookupByConnectionID returns the live connection with the given ephemeral
// id, or nil.
func (r *Registry) LookupByConnectionID(connID string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byConn[connID]
}

// LookupByPersistentID returns the most recent connection record for a device
// id, online or not, or nil if the device never connected.
func (r *Registry) LookupByPersistentID(deviceID string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byDevice[deviceID]
}

// Live returns the current live connection for a device id, or
// ErrNotConnected.
func (r *Registry) Live(deviceID string) (*Connection, error) {
	conn := r.LookupByPersistentID(deviceID)
	if conn == nil || !conn.Online() {
		return nil, ErrNotConnected
	}
	return conn, nil
}

// OnlineConnections returns all currently live connections.
func (r *Registry) OnlineConnections() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Connection, 0, len(r.byConn))
	for _, conn := range r.byConn {
		out = append(out, conn)
	}
	return out
}

// Snapshots returns the state of every known device for an account.
func (r *Registry) Snapshots(userID string) []Snapshot {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.byDevice))
	for _, conn := range r.byDevice {
		conns = append(conns, conn)
	}
	r.mu.Unlock()

	var out []Snapshot
	for _, conn := range conns {
		if userID == "" || conn.userID == userID {
			out = append(out, conn.Snapshot())
		}
	}
	return out
}
