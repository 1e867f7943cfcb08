package agent

import (
	"context"
	"time"

	"github.com/unitedbyai/droidclaw/internal/logger"
	"github.com/unitedbyai/droidclaw/internal/models"
	"github.com/unitedbyai/droidclaw/internal/wire"
)

// Recorder hands session and step records to the persistence collaborator.
// Write failures are logged and swallowed: loop correctness never depends on
// the store.
type Recorder struct {
	queries *models.Queries
	timeout time.Duration
}

// NewRecorder creates a recorder over the query layer.
func NewRecorder(queries *models.Queries) *Recorder {
	return &Recorder{queries: queries, timeout: 5 * time.Second}
}

func (r *Recorder) SessionStarted(info Info) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	err := r.queries.CreateAgentSession(ctx, models.CreateAgentSessionParams{
		ID:        info.ID,
		DeviceID:  info.DeviceID,
		AccountID: info.UserID,
		Goal:      info.Goal,
		Status:    string(info.Status),
		MaxSteps:  info.MaxSteps,
		StartedAt: info.StartedAt,
	})
	if err != nil {
		logger.Warnf("[recorder] create session %s: %v", info.ID, err)
	}
}

func (r *Recorder) SessionStep(info Info, rec StepRecord) {
	action, err := wire.MarshalAction(rec.Action)
	if err != nil {
		action = []byte(`{}`)
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	err = r.queries.CreateSessionStep(ctx, models.CreateSessionStepParams{
		SessionID:  info.ID,
		Step:       rec.Step,
		ScreenHash: rec.ScreenHash,
		Action:     string(action),
		Reasoning:  rec.Reasoning,
		Success:    rec.Success,
		Error:      rec.Error,
	})
	if err != nil {
		logger.Warnf("[recorder] create step %d for session %s: %v", rec.Step, info.ID, err)
	}
}

func (r *Recorder) SessionFinished(info Info) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	err := r.queries.FinishAgentSession(ctx, models.FinishAgentSessionParams{
		ID:          info.ID,
		Status:      string(info.Status),
		Reason:      string(info.Reason),
		StepsUsed:   info.StepsUsed,
		CompletedAt: info.CompletedAt,
	})
	if err != nil {
		logger.Warnf("[recorder] finish session %s: %v", info.ID, err)
	}
}
