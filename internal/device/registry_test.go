package device

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/unitedbyai/droidclaw/internal/wire"
)

// fakePresence records presence events.
type fakePresence struct {
	mu        sync.Mutex
	online    []Snapshot
	offline   []Snapshot
	telemetry []Snapshot
}

func (f *fakePresence) DeviceOnline(snap Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = append(f.online, snap)
}

func (f *fakePresence) DeviceOffline(snap Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = append(f.offline, snap)
}

func (f *fakePresence) DeviceTelemetry(snap Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.telemetry = append(f.telemetry, snap)
}

func testClaims(deviceID string) AuthClaims {
	return AuthClaims{
		DeviceID: deviceID,
		UserID:   "u1",
		Info:     wire.DeviceInfo{DeviceID: deviceID, Model: "Pixel 7"},
	}
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	events := &fakePresence{}
	r := NewRegistry(events, nil, sequentialIDs("req"))

	conn := r.Register(newFakeTransport("c1"), testClaims("d1"))
	require.True(t, conn.Online())
	require.Same(t, conn, r.LookupByConnectionID("c1"))
	require.Same(t, conn, r.LookupByPersistentID("d1"))
	require.Len(t, events.online, 1)
	require.Equal(t, "d1", events.online[0].DeviceID)

	live, err := r.Live("d1")
	require.NoError(t, err)
	require.Same(t, conn, live)

	_, err = r.Live("d2")
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestRegistrySupersedeOnReconnect(t *testing.T) {
	events := &fakePresence{}
	r := NewRegistry(events, nil, sequentialIDs("req"))

	var goneDevice, goneConn, goneReason string
	r.OnConnectionGone(func(deviceID, connID, reason string) {
		goneDevice, goneConn, goneReason = deviceID, connID, reason
	})

	first := newFakeTransport("c1")
	old := r.Register(first, testClaims("d1"))

	second := newFakeTransport("c2")
	fresh := r.Register(second, testClaims("d1"))

	// The new connection wins; the old transport closes with "superseded".
	closed, reason := first.closedWith()
	require.True(t, closed)
	require.Equal(t, CloseReasonSuperseded, reason)
	require.False(t, old.Online())
	require.True(t, fresh.Online())
	require.Same(t, fresh, r.LookupByPersistentID("d1"))
	require.Nil(t, r.LookupByConnectionID("c1"))
	require.Equal(t, "d1", goneDevice)
	require.Equal(t, "c1", goneConn)
	require.Equal(t, CloseReasonSuperseded, goneReason)

	// The stale read loop's MarkOffline must not demote the new connection.
	r.MarkOffline("c1", "transport closed")
	require.True(t, fresh.Online())
	live, err := r.Live("d1")
	require.NoError(t, err)
	require.Same(t, fresh, live)
}

func TestRegistryMarkOfflineRetainsRecord(t *testing.T) {
	events := &fakePresence{}
	r := NewRegistry(events, nil, sequentialIDs("req"))

	r.Register(newFakeTransport("c1"), testClaims("d1"))
	r.MarkOffline("c1", "transport closed")

	require.Nil(t, r.LookupByConnectionID("c1"))
	record := r.LookupByPersistentID("d1")
	require.NotNil(t, record)
	require.False(t, record.Online())
	require.Len(t, events.offline, 1)

	_, err := r.Live("d1")
	require.ErrorIs(t, err, ErrNotConnected)

	// Idempotent: a second close is ignored.
	r.MarkOffline("c1", "transport closed")
	require.Len(t, events.offline, 1)
}

func TestRegistryTelemetryAndApps(t *testing.T) {
	events := &fakePresence{}
	r := NewRegistry(events, nil, sequentialIDs("req"))

	conn := r.Register(newFakeTransport("c1"), testClaims("d1"))
	r.UpdateTelemetry("c1", 42, true)
	r.SetApps("c1", []wire.AppInfo{{PackageName: "com.android.settings", Label: "Settings"}})

	snap := conn.Snapshot()
	require.Equal(t, 42, snap.BatteryLevel)
	require.True(t, snap.IsCharging)
	require.Len(t, events.telemetry, 1)
	require.Len(t, conn.Apps(), 1)

	// Updates for unknown connections are dropped, not fatal.
	r.UpdateTelemetry("ghost", 10, false)
	require.Len(t, events.telemetry, 1)
}

func TestRegistrySnapshotsFilterByUser(t *testing.T) {
	r := NewRegistry(nil, nil, sequentialIDs("req"))
	r.Register(newFakeTransport("c1"), testClaims("d1"))
	r.Register(newFakeTransport("c2"), AuthClaims{DeviceID: "d2", UserID: "u2"})

	require.Len(t, r.Snapshots(""), 2)
	mine := r.Snapshots("u1")
	require.Len(t, mine, 1)
	require.Equal(t, "d1", mine[0].DeviceID)
}

func TestMonitorSweepExpiresSilentDevices(t *testing.T) {
	current := time.Unix(1000, 0)
	now := func() time.Time { return current }

	r := NewRegistry(nil, now, sequentialIDs("req"))
	transport := newFakeTransport("c1")
	conn := r.Register(transport, testClaims("d1"))

	m := NewMonitor(r, 15*time.Second, 45*time.Second, now)

	// Within the grace window: a ping goes out, the device stays online.
	current = current.Add(20 * time.Second)
	m.Sweep()
	require.True(t, conn.Online())
	require.Equal(t, 1, transport.frameCount())

	// Past the grace window: the connection is expired and marked offline.
	current = current.Add(time.Minute)
	m.Sweep()
	require.False(t, conn.Online())
	closed, reason := transport.closedWith()
	require.True(t, closed)
	require.Equal(t, CloseReasonHeartbeatTimeout, reason)

	// A pong would have refreshed LastSeen and prevented expiry.
	r2 := NewRegistry(nil, now, sequentialIDs("req"))
	t2 := newFakeTransport("c2")
	conn2 := r2.Register(t2, testClaims("d2"))
	m2 := NewMonitor(r2, 15*time.Second, 45*time.Second, now)

	current = current.Add(40 * time.Second)
	r2.Touch("c2")
	m2.Sweep()
	require.True(t, conn2.Online())
}
