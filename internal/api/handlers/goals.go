package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unitedbyai/droidclaw/internal/agent"
	"github.com/unitedbyai/droidclaw/internal/api/middleware"
	"github.com/unitedbyai/droidclaw/internal/device"
	"github.com/unitedbyai/droidclaw/pkg/types"
)

// GoalController is the session-control surface exposed to the API.
type GoalController interface {
	StartGoal(deviceID, userID, goal string, maxSteps int) (agent.Info, error)
	StopGoal(deviceID string) (agent.Info, error)
	Running(deviceID string) (agent.Info, bool)
}

type GoalHandler struct {
	goals    GoalController
	registry *device.Registry
}

func NewGoalHandler(goals GoalController, registry *device.Registry) *GoalHandler {
	return &GoalHandler{goals: goals, registry: registry}
}

func goalResponse(info agent.Info) types.GoalResponse {
	resp := types.GoalResponse{
		SessionID: info.ID,
		DeviceID:  info.DeviceID,
		Goal:      info.Goal,
		Status:    string(info.Status),
		Reason:    string(info.Reason),
		Detail:    info.Detail,
		StepsUsed: info.StepsUsed,
		MaxSteps:  info.MaxSteps,
		StartedAt: info.StartedAt,
	}
	if !info.CompletedAt.IsZero() {
		ended := info.CompletedAt
		resp.EndedAt = &ended
	}
	return resp
}

// ownsDevice reports whether the calling account owns the (possibly offline)
// device. Unknown devices are not owned by anyone.
func (h *GoalHandler) ownsDevice(c *gin.Context, deviceID string) bool {
	userID, _ := middleware.GetUserID(c)
	conn := h.registry.LookupByPersistentID(deviceID)
	return conn != nil && conn.UserID() == userID
}

// StartGoal starts a goal session on a device.
// POST /v1/devices/:deviceId/goal
func (h *GoalHandler) StartGoal(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	deviceID := c.Param("deviceId")

	var req types.StartGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}

	info, err := h.goals.StartGoal(deviceID, userID, req.Goal, req.MaxSteps)
	if err != nil {
		var dup *agent.DuplicateSessionError
		switch {
		case errors.As(err, &dup):
			c.JSON(http.StatusConflict, types.DuplicateGoalResponse{
				Error:     "session already running",
				SessionID: dup.SessionID,
				Goal:      dup.Goal,
			})
		case errors.Is(err, device.ErrNotConnected):
			c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "device not connected"})
		case errors.Is(err, agent.ErrNoPlanner):
			c.JSON(http.StatusServiceUnavailable, types.ErrorResponse{Error: "planner not configured"})
		default:
			c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to start goal"})
		}
		return
	}

	c.JSON(http.StatusOK, goalResponse(info))
}

// StopGoal requests cancellation of the running session on a device.
// DELETE /v1/devices/:deviceId/goal
func (h *GoalHandler) StopGoal(c *gin.Context) {
	deviceID := c.Param("deviceId")
	if !h.ownsDevice(c, deviceID) {
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "no running session"})
		return
	}

	info, err := h.goals.StopGoal(deviceID)
	if err != nil {
		if errors.Is(err, agent.ErrNoRunningSession) {
			c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "no running session"})
			return
		}
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to stop goal"})
		return
	}

	c.JSON(http.StatusOK, goalResponse(info))
}

// GetGoal returns the running session on a device, if any.
// GET /v1/devices/:deviceId/goal
func (h *GoalHandler) GetGoal(c *gin.Context) {
	deviceID := c.Param("deviceId")
	if !h.ownsDevice(c, deviceID) {
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "no running session"})
		return
	}

	info, ok := h.goals.Running(deviceID)
	if !ok {
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "no running session"})
		return
	}
	c.JSON(http.StatusOK, goalResponse(info))
}
