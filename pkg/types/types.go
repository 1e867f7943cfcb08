package types

import (
	"encoding/json"
	"time"
)

// Common response types.

type ErrorResponse struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

// Account and credential types.

type RegisterAccountRequest struct {
	Name string `json:"name" binding:"required"`
}

type RegisterAccountResponse struct {
	AccountID string `json:"accountId"`
	// APIKey is the full device credential. It is shown once; only its hash
	// is stored.
	APIKey string `json:"apiKey"`
	Token  string `json:"token"`
}

type TokenRequest struct {
	APIKey string `json:"apiKey" binding:"required"`
}

type TokenResponse struct {
	AccountID string `json:"accountId"`
	Token     string `json:"token"`
}

type CreateAPIKeyRequest struct {
	Label string `json:"label"`
}

type CreateAPIKeyResponse struct {
	KeyID  string `json:"keyId"`
	APIKey string `json:"apiKey"`
}

// Goal control types.

type StartGoalRequest struct {
	Goal     string `json:"goal" binding:"required"`
	MaxSteps int    `json:"maxSteps"`
}

type GoalResponse struct {
	SessionID string     `json:"sessionId"`
	DeviceID  string     `json:"deviceId"`
	Goal      string     `json:"goal"`
	Status    string     `json:"status"`
	Reason    string     `json:"reason,omitempty"`
	Detail    string     `json:"detail,omitempty"`
	StepsUsed int        `json:"stepsUsed"`
	MaxSteps  int        `json:"maxSteps"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// DuplicateGoalResponse is the 409 body when a session is already running on
// the device.
type DuplicateGoalResponse struct {
	Error     string `json:"error"`
	SessionID string `json:"sessionId"`
	Goal      string `json:"goal"`
}

// Device types.

type DeviceResponse struct {
	ID           string    `json:"id"`
	Model        string    `json:"model,omitempty"`
	Manufacturer string    `json:"manufacturer,omitempty"`
	Online       bool      `json:"online"`
	BatteryLevel int       `json:"batteryLevel"`
	IsCharging   bool      `json:"isCharging"`
	LastSeenAt   time.Time `json:"lastSeenAt"`
}

// Session history types.

type SessionResponse struct {
	ID          string     `json:"id"`
	DeviceID    string     `json:"deviceId"`
	Goal        string     `json:"goal"`
	Status      string     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	StepsUsed   int        `json:"stepsUsed"`
	MaxSteps    int        `json:"maxSteps"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type SessionStepResponse struct {
	Step       int             `json:"step"`
	ScreenHash string          `json:"screenHash,omitempty"`
	Action     json.RawMessage `json:"action"`
	Reasoning  string          `json:"reasoning,omitempty"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
}

type SessionDetailResponse struct {
	SessionResponse
	Steps []SessionStepResponse `json:"steps"`
}
