package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/unitedbyai/droidclaw/internal/wire"
)

// Status is the lifecycle state of an agent session.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Reason classifies why a session left the running state.
type Reason string

const (
	// ReasonGoalReached is the planner's done:success verdict.
	ReasonGoalReached Reason = "goal_reached"
	// ReasonGoalFailed is the planner's done:failure verdict.
	ReasonGoalFailed Reason = "goal_failed"
	// ReasonStopped is an explicit stop request.
	ReasonStopped Reason = "stopped"
	// ReasonDeviceUnresponsive is a device round-trip timeout.
	ReasonDeviceUnresponsive Reason = "device_unresponsive"
	// ReasonDeviceDisconnected is transport loss mid-session.
	ReasonDeviceDisconnected Reason = "device_disconnected"
	// ReasonPlannerError is a planner failure after bounded retries.
	ReasonPlannerError Reason = "planner_error"
	// ReasonStepLimitExceeded is the configured step ceiling.
	ReasonStepLimitExceeded Reason = "step_limit_exceeded"
)

// ScreenState is one observation of the device UI.
type ScreenState struct {
	// Elements is the extracted element list, opaque to the loop.
	Elements json.RawMessage `json:"elements,omitempty"`
	// ScreenHash is a content fingerprint used to detect unchanged screens.
	ScreenHash string `json:"screenHash,omitempty"`
	// Screenshot is an optional base64 screenshot.
	Screenshot string `json:"screenshot,omitempty"`
	// PackageName is the foreground app package.
	PackageName string `json:"packageName,omitempty"`
}

// StepRecord is one completed observe-plan-act iteration.
type StepRecord struct {
	// Step numbers increase monotonically from 1 with no gaps.
	Step int `json:"step"`
	// ScreenHash is the fingerprint of the screen the action was chosen on.
	ScreenHash string `json:"screenHash,omitempty"`
	// Action is the action that was dispatched.
	Action wire.Action `json:"action"`
	// Reasoning is the planner's stated rationale.
	Reasoning string `json:"reasoning,omitempty"`
	// Success reports the device-side outcome.
	Success bool `json:"success"`
	// Error is the device-reported failure annotation, fed back to the next
	// planning call.
	Error string `json:"error,omitempty"`
}

// Decision is the planner's answer for one step: either a concrete next
// action or a terminal verdict.
type Decision struct {
	// Done marks a terminal verdict; Action is nil.
	Done bool
	// Success is the verdict polarity when Done.
	Success bool
	// Action is the next action when not Done.
	Action wire.Action
	// Reasoning is the planner's rationale (or verdict reason).
	Reasoning string
}

// PlanRequest is the input to one planning call.
type PlanRequest struct {
	// Goal is the natural-language objective.
	Goal string
	// Screen is the current observation.
	Screen ScreenState
	// History is the step history so far, including device-reported action
	// errors.
	History []StepRecord
	// StepsRemaining is the step budget left.
	StepsRemaining int
	// Apps is the device's cached app inventory.
	Apps []wire.AppInfo
}

// Planner is the planning collaborator: screen state + goal + history in,
// next action or terminal verdict out. Implementations must honor ctx.
type Planner interface {
	PlanStep(ctx context.Context, req PlanRequest) (Decision, error)
}

// Info is a point-in-time description of a session, used for records and
// observer events.
type Info struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"deviceId"`
	UserID      string    `json:"userId"`
	Goal        string    `json:"goal"`
	Status      Status    `json:"status"`
	Reason      Reason    `json:"reason,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	StepsUsed   int       `json:"stepsUsed"`
	MaxSteps    int       `json:"maxSteps"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
}

// Sink observes session lifecycle and step progress. Delivery is synchronous
// from the session goroutine; implementations must not block (the dashboard
// hub drops on backpressure, the recorder logs write failures).
type Sink interface {
	SessionStarted(info Info)
	SessionStep(info Info, rec StepRecord)
	SessionFinished(info Info)
}
