package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/unitedbyai/droidclaw/internal/device"
	"github.com/unitedbyai/droidclaw/internal/logger"
	"github.com/unitedbyai/droidclaw/internal/wire"
)

// Session is one run of a goal on one device: the perception-action state
// machine. All mutation happens on the session's own goroutine except
// requestStop, which only flips the stop cause and cancels the context.
type Session struct {
	id       string
	deviceID string
	connID   string
	userID   string
	goal     string
	maxSteps int

	m    *Manager
	conn *device.Connection

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	status      Status
	reason      Reason
	detail      string
	stepsUsed   int
	history     []StepRecord
	startedAt   time.Time
	completedAt time.Time
	stopCause   Reason
}

func newSession(m *Manager, conn *device.Connection, id, goal string, maxSteps int) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:        id,
		deviceID:  conn.DeviceID(),
		connID:    conn.ConnID(),
		userID:    conn.UserID(),
		goal:      goal,
		maxSteps:  maxSteps,
		m:         m,
		conn:      conn,
		ctx:       ctx,
		cancel:    cancel,
		status:    StatusRunning,
		startedAt: m.now(),
	}
}

// Info returns a point-in-time snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

func (s *Session) infoLocked() Info {
	return Info{
		ID:          s.id,
		DeviceID:    s.deviceID,
		UserID:      s.userID,
		Goal:        s.goal,
		Status:      s.status,
		Reason:      s.reason,
		Detail:      s.detail,
		StepsUsed:   s.stepsUsed,
		MaxSteps:    s.maxSteps,
		StartedAt:   s.startedAt,
		CompletedAt: s.completedAt,
	}
}

// run drives the step sequence: Observe -> Plan -> Act -> Advance, strictly
// sequential within the session, until a terminal transition.
func (s *Session) run() {
	for step := 1; ; step++ {
		// Cancellation is checked before each observation.
		select {
		case <-s.ctx.Done():
			s.terminateFromCause()
			return
		default:
		}

		screen, err := s.observe()
		if err != nil {
			s.failFromTransport(err, "screen request")
			return
		}

		decision, err := s.plan(step, screen)
		if err != nil {
			if s.ctx.Err() != nil {
				s.terminateFromCause()
				return
			}
			s.terminate(StatusFailed, ReasonPlannerError, err.Error())
			return
		}

		if decision.Done {
			s.setStepsUsed(step)
			if decision.Success {
				s.terminate(StatusCompleted, ReasonGoalReached, decision.Reasoning)
			} else {
				s.terminate(StatusFailed, ReasonGoalFailed, decision.Reasoning)
			}
			return
		}

		rec, err := s.act(step, screen, decision)
		if err != nil {
			s.failFromTransport(err, "action dispatch")
			return
		}

		s.recordStep(rec)

		if step >= s.maxSteps {
			s.terminate(StatusFailed, ReasonStepLimitExceeded,
				fmt.Sprintf("step ceiling of %d reached", s.maxSteps))
			return
		}
	}
}

// observe requests the current screen state over the correlator.
func (s *Session) observe() (ScreenState, error) {
	msg, err := s.conn.Correlator().Send(s.ctx, s.conn.Transport(), func(requestID string) ([]byte, error) {
		return wire.EncodeGetScreen(requestID, false)
	}, s.m.cfg.ScreenTimeout)
	if err != nil {
		return ScreenState{}, err
	}
	screen, ok := msg.(wire.ScreenMessage)
	if !ok {
		return ScreenState{}, fmt.Errorf("unexpected %q response to screen request", msg.Kind())
	}
	return ScreenState{
		Elements:    screen.Elements,
		ScreenHash:  screen.ScreenHash,
		Screenshot:  screen.Screenshot,
		PackageName: screen.PackageName,
	}, nil
}

// plan invokes the planning collaborator with bounded retry and backoff.
func (s *Session) plan(step int, screen ScreenState) (Decision, error) {
	req := PlanRequest{
		Goal:           s.goal,
		Screen:         screen,
		History:        s.historyCopy(),
		StepsRemaining: s.maxSteps - step + 1,
		Apps:           s.conn.Apps(),
	}

	var lastErr error
	for attempt := 0; attempt <= s.m.cfg.PlannerRetries; attempt++ {
		if attempt > 0 {
			backoff := s.m.cfg.PlannerBackoff << (attempt - 1)
			select {
			case <-s.ctx.Done():
				return Decision{}, s.ctx.Err()
			case <-time.After(backoff):
			}
		}

		pctx, cancel := context.WithTimeout(s.ctx, s.m.cfg.PlannerTimeout)
		decision, err := s.m.planner.PlanStep(pctx, req)
		cancel()

		if err == nil {
			if !decision.Done && decision.Action == nil {
				err = errors.New("planner returned neither action nor verdict")
			} else {
				return decision, nil
			}
		}
		if s.ctx.Err() != nil {
			return Decision{}, s.ctx.Err()
		}
		lastErr = err
		logger.Warnf("[agent] session %s planner attempt %d failed: %v", s.id, attempt+1, err)
	}
	return Decision{}, fmt.Errorf("planner failed after %d attempts: %w", s.m.cfg.PlannerRetries+1, lastErr)
}

// act dispatches the chosen action and awaits the device result. A
// device-reported action error does not fail the session; it is recorded and
// fed back into the next planning call.
func (s *Session) act(step int, screen ScreenState, decision Decision) (StepRecord, error) {
	msg, err := s.conn.Correlator().Send(s.ctx, s.conn.Transport(), func(requestID string) ([]byte, error) {
		return wire.EncodeAction(requestID, step, decision.Action, decision.Reasoning, screen.ScreenHash)
	}, s.m.cfg.ActionTimeout)
	if err != nil {
		return StepRecord{}, err
	}

	rec := StepRecord{
		Step:       step,
		ScreenHash: screen.ScreenHash,
		Action:     decision.Action,
		Reasoning:  decision.Reasoning,
	}
	if result, ok := msg.(wire.ResultMessage); ok {
		rec.Success = result.Success
		rec.Error = result.Error
	} else {
		rec.Error = fmt.Sprintf("unexpected %q response to action", msg.Kind())
	}
	return rec, nil
}

func (s *Session) recordStep(rec StepRecord) {
	s.mu.Lock()
	s.history = append(s.history, rec)
	s.stepsUsed = rec.Step
	info := s.infoLocked()
	s.mu.Unlock()

	logger.Debugf("[agent] session %s step %d action=%s success=%t", s.id, rec.Step, rec.Action.ActionKind(), rec.Success)
	s.m.emitStep(info, rec)
}

func (s *Session) historyCopy() []StepRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StepRecord, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) setStepsUsed(n int) {
	s.mu.Lock()
	s.stepsUsed = n
	s.mu.Unlock()
}

// requestStop flips the session toward termination. The first cause wins;
// the loop observes the cancellation at its next safe point. In-flight
// correlated requests are abandoned and removed from the pending table.
func (s *Session) requestStop(cause Reason) {
	s.mu.Lock()
	if s.status != StatusRunning {
		s.mu.Unlock()
		return
	}
	if s.stopCause == "" {
		s.stopCause = cause
	}
	s.mu.Unlock()
	s.cancel()
}

func (s *Session) terminateFromCause() {
	s.mu.Lock()
	cause := s.stopCause
	s.mu.Unlock()

	switch cause {
	case ReasonDeviceDisconnected:
		s.terminate(StatusFailed, ReasonDeviceDisconnected, "device disconnected")
	default:
		s.terminate(StatusStopped, ReasonStopped, "stopped by request")
	}
}

// failFromTransport maps a correlator failure to a terminal transition.
func (s *Session) failFromTransport(err error, op string) {
	switch {
	case s.ctx.Err() != nil:
		s.terminateFromCause()
	case errors.Is(err, device.ErrTimeout):
		s.terminate(StatusFailed, ReasonDeviceUnresponsive, op+" timed out")
	case errors.Is(err, device.ErrConnectionLost):
		s.terminate(StatusFailed, ReasonDeviceDisconnected, "device disconnected")
	default:
		s.terminate(StatusFailed, ReasonDeviceUnresponsive, fmt.Sprintf("%s failed: %v", op, err))
	}
}

// terminate performs the exactly-once terminal transition: it releases the
// per-device reservation, emits the final record, and guarantees no step
// executes afterwards.
func (s *Session) terminate(status Status, reason Reason, detail string) {
	s.mu.Lock()
	if s.status != StatusRunning {
		s.mu.Unlock()
		return
	}
	s.status = status
	s.reason = reason
	s.detail = detail
	s.completedAt = s.m.now()
	info := s.infoLocked()
	s.mu.Unlock()

	s.cancel()
	s.m.release(s)

	// Tell the device the goal session ended, unless the transport is gone.
	if reason != ReasonDeviceDisconnected && s.conn.Online() {
		if frame, err := wire.EncodeStopGoal(); err == nil {
			if err := s.conn.Transport().WriteMessage(frame); err != nil {
				logger.Debugf("[agent] stop notice write failed: %v", err)
			}
		}
	}

	logger.Infof("[agent] session %s terminal status=%s reason=%s steps=%d", s.id, status, reason, info.StepsUsed)
	s.m.emitFinished(info)
}
