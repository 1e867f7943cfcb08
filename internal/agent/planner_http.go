package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/unitedbyai/droidclaw/internal/wire"
)

// HTTPPlanner implements Planner against an external planning service. The
// service receives the goal, the current screen, the step history, and the
// app inventory, and answers with either a flat action object or a terminal
// verdict.
type HTTPPlanner struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPlanner creates a planner client for the given base URL. The
// per-call deadline comes from the caller's context; the transport timeout
// here is a hard backstop.
func NewHTTPPlanner(baseURL string, timeout time.Duration) *HTTPPlanner {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &HTTPPlanner{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type plannerStep struct {
	Step       int             `json:"step"`
	ScreenHash string          `json:"screenHash,omitempty"`
	Action     json.RawMessage `json:"action"`
	Reasoning  string          `json:"reasoning,omitempty"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
}

type planRequestBody struct {
	Goal           string         `json:"goal"`
	Screen         ScreenState    `json:"screen"`
	History        []plannerStep  `json:"history"`
	StepsRemaining int            `json:"stepsRemaining"`
	Apps           []wire.AppInfo `json:"apps,omitempty"`
}

type planResponseBody struct {
	Done      bool            `json:"done"`
	Success   bool            `json:"success"`
	Reasoning string          `json:"reasoning"`
	Action    json.RawMessage `json:"action"`
}

// PlanStep posts one planning request and maps the reply to a Decision.
func (p *HTTPPlanner) PlanStep(ctx context.Context, req PlanRequest) (Decision, error) {
	body := planRequestBody{
		Goal:           req.Goal,
		Screen:         req.Screen,
		History:        make([]plannerStep, 0, len(req.History)),
		StepsRemaining: req.StepsRemaining,
		Apps:           req.Apps,
	}
	for _, rec := range req.History {
		action, err := wire.MarshalAction(rec.Action)
		if err != nil {
			return Decision{}, fmt.Errorf("encode history step %d: %w", rec.Step, err)
		}
		body.History = append(body.History, plannerStep{
			Step:       rec.Step,
			ScreenHash: rec.ScreenHash,
			Action:     action,
			Reasoning:  rec.Reasoning,
			Success:    rec.Success,
			Error:      rec.Error,
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Decision{}, fmt.Errorf("encode plan request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/plan", bytes.NewReader(payload))
	if err != nil {
		return Decision{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Decision{}, fmt.Errorf("planner request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Decision{}, fmt.Errorf("planner returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out planResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Decision{}, fmt.Errorf("decode plan response: %w", err)
	}

	decision := Decision{Done: out.Done, Success: out.Success, Reasoning: out.Reasoning}
	if out.Done {
		return decision, nil
	}
	if len(out.Action) == 0 {
		return Decision{}, fmt.Errorf("planner response carries neither action nor verdict")
	}
	action, err := wire.ParseAction(out.Action)
	if err != nil {
		return Decision{}, fmt.Errorf("parse planner action: %w", err)
	}
	decision.Action = action
	return decision, nil
}
