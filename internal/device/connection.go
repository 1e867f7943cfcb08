package device

import (
	"sync"
	"time"

	"github.com/unitedbyai/droidclaw/internal/wire"
)

// Transport is the write side of one device connection. The concrete
// implementation wraps a WebSocket; tests substitute fakes.
type Transport interface {
	// ID returns the ephemeral connection id assigned at handshake time.
	ID() string
	// WriteMessage writes one complete frame to the device.
	WriteMessage(data []byte) error
	// Close closes the transport, sending the reason to the peer when the
	// protocol allows it. Closing an already-closed transport is a no-op.
	Close(reason string) error
}

// AuthClaims is the validated identity of an authenticating device.
type AuthClaims struct {
	// DeviceID is the persistent device identity.
	DeviceID string
	// UserID is the owning account.
	UserID string
	// Info carries negotiated capabilities from the auth message.
	Info wire.DeviceInfo
}

// Connection is one live (or recently live) device connection. The registry
// owns creation and teardown; telemetry fields are guarded by the connection's
// own mutex so updates for different devices never contend.
type Connection struct {
	connID   string
	deviceID string
	userID   string

	transport  Transport
	correlator *Correlator

	mu       sync.Mutex
	online   bool
	lastSeen time.Time
	battery  int
	charging bool
	info     wire.DeviceInfo
	apps     []wire.AppInfo
}

// ConnID returns the ephemeral connection id.
func (c *Connection) ConnID() string { return c.connID }

// DeviceID returns the persistent device id.
func (c *Connection) DeviceID() string { return c.deviceID }

// UserID returns the owning account id.
func (c *Connection) UserID() string { return c.userID }

// Transport returns the underlying write side.
func (c *Connection) Transport() Transport { return c.transport }

// Correlator returns the request/response correlator bound to this connection.
func (c *Connection) Correlator() *Correlator { return c.correlator }

// Online reports whether the connection is currently live.
func (c *Connection) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *Connection) setOnline(online bool, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = online
	c.lastSeen = at
}

func (c *Connection) touch(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = at
}

func (c *Connection) setTelemetry(battery int, charging bool, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.battery = battery
	c.charging = charging
	c.lastSeen = at
}

func (c *Connection) setApps(apps []wire.AppInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apps = apps
}

// Apps returns the cached installed-app inventory.
func (c *Connection) Apps() []wire.AppInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wire.AppInfo, len(c.apps))
	copy(out, c.apps)
	return out
}

// LastSeen returns the last time any message arrived on this connection.
func (c *Connection) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Snapshot is a point-in-time copy of connection state for observers.
type Snapshot struct {
	ConnID       string         `json:"connId"`
	DeviceID     string         `json:"deviceId"`
	UserID       string         `json:"userId"`
	Online       bool           `json:"online"`
	LastSeen     time.Time      `json:"lastSeen"`
	BatteryLevel int            `json:"batteryLevel"`
	IsCharging   bool           `json:"isCharging"`
	Model        string         `json:"model,omitempty"`
	Manufacturer string         `json:"manufacturer,omitempty"`
	ScreenWidth  int            `json:"screenWidth,omitempty"`
	ScreenHeight int            `json:"screenHeight,omitempty"`
	Apps         []wire.AppInfo `json:"-"`
}

// Snapshot copies the connection state under its lock.
func (c *Connection) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		ConnID:       c.connID,
		DeviceID:     c.deviceID,
		UserID:       c.userID,
		Online:       c.online,
		LastSeen:     c.lastSeen,
		BatteryLevel: c.battery,
		IsCharging:   c.charging,
		Model:        c.info.Model,
		Manufacturer: c.info.Manufacturer,
		ScreenWidth:  c.info.ScreenWidth,
		ScreenHeight: c.info.ScreenHeight,
		Apps:         c.apps,
	}
}
