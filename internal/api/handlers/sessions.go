package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unitedbyai/droidclaw/internal/api/middleware"
	"github.com/unitedbyai/droidclaw/internal/logger"
	"github.com/unitedbyai/droidclaw/internal/models"
	"github.com/unitedbyai/droidclaw/pkg/types"
)

// SessionHistoryQueries is the subset of queries used by the session handler.
type SessionHistoryQueries interface {
	ListAgentSessions(ctx context.Context, accountID string) ([]models.AgentSession, error)
	GetAgentSession(ctx context.Context, id string) (models.AgentSession, error)
	ListSessionSteps(ctx context.Context, sessionID string) ([]models.SessionStep, error)
}

type SessionHandler struct {
	queries SessionHistoryQueries
}

func NewSessionHandler(queries SessionHistoryQueries) *SessionHandler {
	return &SessionHandler{queries: queries}
}

func sessionResponse(s models.AgentSession) types.SessionResponse {
	resp := types.SessionResponse{
		ID:        s.ID,
		DeviceID:  s.DeviceID,
		Goal:      s.Goal,
		Status:    s.Status,
		Reason:    s.Reason,
		StepsUsed: s.StepsUsed,
		MaxSteps:  s.MaxSteps,
		StartedAt: s.StartedAt,
	}
	if s.CompletedAt.Valid {
		completed := s.CompletedAt.Time
		resp.CompletedAt = &completed
	}
	return resp
}

func stepResponse(s models.SessionStep) types.SessionStepResponse {
	action := json.RawMessage(s.Action)
	if !json.Valid(action) {
		action = json.RawMessage(`{}`)
	}
	return types.SessionStepResponse{
		Step:       s.Step,
		ScreenHash: s.ScreenHash,
		Action:     action,
		Reasoning:  s.Reasoning,
		Success:    s.Success,
		Error:      s.Error,
	}
}

// ListSessions returns the account's session history, newest first.
// GET /v1/sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	sessions, err := h.queries.ListAgentSessions(c.Request.Context(), userID)
	if err != nil {
		logger.Errorf("[api] list sessions: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to list sessions"})
		return
	}

	response := make([]types.SessionResponse, len(sessions))
	for i, s := range sessions {
		response[i] = sessionResponse(s)
	}
	c.JSON(http.StatusOK, response)
}

// GetSession returns one session with its recorded steps.
// GET /v1/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	sessionID := c.Param("id")

	session, err := h.queries.GetAgentSession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNoRows) {
			c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "session not found"})
			return
		}
		logger.Errorf("[api] get session %s: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to load session"})
		return
	}
	if session.AccountID != userID {
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "session not found"})
		return
	}

	steps, err := h.queries.ListSessionSteps(c.Request.Context(), sessionID)
	if err != nil {
		logger.Errorf("[api] list steps for %s: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to load steps"})
		return
	}

	detail := types.SessionDetailResponse{
		SessionResponse: sessionResponse(session),
		Steps:           make([]types.SessionStepResponse, len(steps)),
	}
	for i, s := range steps {
		detail.Steps[i] = stepResponse(s)
	}
	c.JSON(http.StatusOK, detail)
}
