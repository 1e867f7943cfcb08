package device

import (
	"context"
	"time"

	"github.com/unitedbyai/droidclaw/internal/logger"
	"github.com/unitedbyai/droidclaw/internal/wire"
)

// Monitor periodically sends heartbeat expectations and expires connections
// whose devices stayed silent past the grace window. Expiry goes through the
// registry, which fails any running agent session via the disconnect path.
type Monitor struct {
	registry *Registry
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
}

// NewMonitor creates a liveness monitor.
func NewMonitor(registry *Registry, interval, grace time.Duration, now func() time.Time) *Monitor {
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		registry: registry,
		interval: interval,
		grace:    grace,
		now:      now,
	}
}

// Run drives the liveness loop until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep performs one liveness pass: expire stale connections, ping the rest.
func (m *Monitor) Sweep() {
	now := m.now()
	for _, conn := range m.registry.OnlineConnections() {
		if stale := now.Sub(conn.LastSeen()); stale > m.grace {
			logger.Warnf("[liveness] device %s silent for %s, expiring conn %s", conn.DeviceID(), stale.Round(time.Second), conn.ConnID())
			m.registry.Expire(conn.ConnID())
			continue
		}

		frame, err := wire.EncodePing()
		if err != nil {
			continue
		}
		if err := conn.Transport().WriteMessage(frame); err != nil {
			logger.Debugf("[liveness] ping write failed for device %s: %v", conn.DeviceID(), err)
		}
	}
}
