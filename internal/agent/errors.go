package agent

import (
	"errors"
	"fmt"
)

// ErrNoRunningSession reports a stop request for a device with no running
// session.
var ErrNoRunningSession = errors.New("no running session")

// ErrNoPlanner reports that no planning collaborator is configured.
var ErrNoPlanner = errors.New("no planner configured")

// DuplicateSessionError rejects a goal request while a session is already
// running on the device. It carries the survivor so callers can surface it.
type DuplicateSessionError struct {
	// SessionID is the running session's id.
	SessionID string
	// Goal is the running session's goal text.
	Goal string
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("session %s already running (goal: %q)", e.SessionID, e.Goal)
}
