package agent

import (
	"sync"
	"time"

	"github.com/unitedbyai/droidclaw/internal/device"
	"github.com/unitedbyai/droidclaw/internal/logger"
	"github.com/unitedbyai/droidclaw/internal/wire"
)

// Config holds control-loop tunables.
type Config struct {
	// MaxSteps is the default step ceiling when the caller supplies none.
	MaxSteps int
	// ScreenTimeout bounds one screen round trip.
	ScreenTimeout time.Duration
	// ActionTimeout bounds one action round trip.
	ActionTimeout time.Duration
	// PlannerTimeout bounds a single planner call.
	PlannerTimeout time.Duration
	// PlannerRetries is the retry bound after a failed planner call.
	PlannerRetries int
	// PlannerBackoff is the base delay between planner retries, doubled per
	// attempt.
	PlannerBackoff time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxSteps <= 0 {
		c.MaxSteps = 30
	}
	if c.ScreenTimeout <= 0 {
		c.ScreenTimeout = 20 * time.Second
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 20 * time.Second
	}
	if c.PlannerTimeout <= 0 {
		c.PlannerTimeout = 60 * time.Second
	}
	if c.PlannerRetries < 0 {
		c.PlannerRetries = 0
	}
	if c.PlannerBackoff <= 0 {
		c.PlannerBackoff = time.Second
	}
}

// Manager owns the active-session map and the per-device "one running
// session" reservation. It is created at server start; per-device entries
// appear when sessions start and disappear when they terminate.
type Manager struct {
	cfg      Config
	registry *device.Registry
	planner  Planner
	sinks    []Sink
	now      func() time.Time
	newID    func() string

	// mu guards the reservation map only. The critical section spans no I/O,
	// so different devices never wait on each other's round trips.
	mu      sync.Mutex
	running map[string]*Session // persistent device id -> running session
}

// NewManager creates a session manager. sinks receive lifecycle and step
// events (persistence recorder, dashboard hub).
func NewManager(cfg Config, registry *device.Registry, planner Planner, sinks []Sink, now func() time.Time, newID func() string) *Manager {
	cfg.applyDefaults()
	if now == nil {
		now = time.Now
	}
	return &Manager{
		cfg:      cfg,
		registry: registry,
		planner:  planner,
		sinks:    sinks,
		now:      now,
		newID:    newID,
		running:  make(map[string]*Session),
	}
}

// StartGoal starts a goal session on a device. The session id is minted
// synchronously before this returns; only the step loop runs asynchronously.
// It fails with device.ErrNotConnected when the device has no live
// connection, and with *DuplicateSessionError when a session is already
// running on it.
func (m *Manager) StartGoal(deviceID, userID, goal string, maxSteps int) (Info, error) {
	if m.planner == nil {
		return Info{}, ErrNoPlanner
	}
	conn, err := m.registry.Live(deviceID)
	if err != nil {
		return Info{}, err
	}
	// A device owned by another account looks not-connected to the caller.
	if userID != "" && conn.UserID() != userID {
		return Info{}, device.ErrNotConnected
	}
	if maxSteps <= 0 {
		maxSteps = m.cfg.MaxSteps
	}

	// Check-and-reserve is a single critical section: two concurrent goals
	// for the same device cannot both pass.
	m.mu.Lock()
	if cur, ok := m.running[deviceID]; ok {
		info := cur.Info()
		m.mu.Unlock()
		return Info{}, &DuplicateSessionError{SessionID: info.ID, Goal: info.Goal}
	}
	s := newSession(m, conn, m.newID(), goal, maxSteps)
	m.running[deviceID] = s
	m.mu.Unlock()

	logger.Infof("[agent] session %s started device=%s goal=%q maxSteps=%d", s.id, deviceID, goal, maxSteps)
	info := s.Info()
	m.emitStarted(info)

	// Tell the device a goal session is starting. Best-effort: the loop's
	// first screen request is the authoritative signal.
	if frame, err := wire.EncodeGoal(goal); err == nil {
		if err := conn.Transport().WriteMessage(frame); err != nil {
			logger.Debugf("[agent] goal notice write failed: %v", err)
		}
	}

	go s.run()
	return info, nil
}

// StopGoal requests cancellation of the running session on a device. The
// session reaches Stopped at its next safe point.
func (m *Manager) StopGoal(deviceID string) (Info, error) {
	m.mu.Lock()
	s, ok := m.running[deviceID]
	m.mu.Unlock()
	if !ok {
		return Info{}, ErrNoRunningSession
	}
	s.requestStop(ReasonStopped)
	return s.Info(), nil
}

// Running returns the running session info for a device, if any.
func (m *Manager) Running(deviceID string) (Info, bool) {
	m.mu.Lock()
	s, ok := m.running[deviceID]
	m.mu.Unlock()
	if !ok {
		return Info{}, false
	}
	return s.Info(), true
}

// HandleConnectionGone fails the running session when its transport goes
// away. Wired to the registry's connection-gone hook; a session already
// migrated to a newer connection is left alone.
func (m *Manager) HandleConnectionGone(deviceID, connID, reason string) {
	m.mu.Lock()
	s, ok := m.running[deviceID]
	m.mu.Unlock()
	if !ok || s.connID != connID {
		return
	}
	logger.Infof("[agent] session %s losing connection %s (%s)", s.id, connID, reason)
	s.requestStop(ReasonDeviceDisconnected)
}

// release frees the per-device reservation when a session terminates.
func (m *Manager) release(s *Session) {
	m.mu.Lock()
	if cur, ok := m.running[s.deviceID]; ok && cur == s {
		delete(m.running, s.deviceID)
	}
	m.mu.Unlock()
}

func (m *Manager) emitStarted(info Info) {
	for _, sink := range m.sinks {
		sink.SessionStarted(info)
	}
}

func (m *Manager) emitStep(info Info, rec StepRecord) {
	for _, sink := range m.sinks {
		sink.SessionStep(info, rec)
	}
}

func (m *Manager) emitFinished(info Info) {
	for _, sink := range m.sinks {
		sink.SessionFinished(info)
	}
}
