package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unitedbyai/droidclaw/internal/wire"
)

func TestHTTPPlannerReturnsAction(t *testing.T) {
	var got planRequestBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/plan", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"reasoning":"tap the gear","action":{"action":"tap","x":33,"y":44}}`))
	}))
	defer srv.Close()

	planner := NewHTTPPlanner(srv.URL, time.Second)
	decision, err := planner.PlanStep(context.Background(), PlanRequest{
		Goal:           "open settings",
		Screen:         ScreenState{ScreenHash: "h1"},
		StepsRemaining: 7,
		History: []StepRecord{
			{Step: 1, Action: wire.Key{Code: 3}, Success: true},
		},
	})
	require.NoError(t, err)
	require.False(t, decision.Done)
	require.Equal(t, "tap the gear", decision.Reasoning)
	require.Equal(t, wire.Tap{X: 33, Y: 44}, decision.Action)

	require.Equal(t, "open settings", got.Goal)
	require.Equal(t, 7, got.StepsRemaining)
	require.Len(t, got.History, 1)
	require.JSONEq(t, `{"action":"key","code":3}`, string(got.History[0].Action))
}

func TestHTTPPlannerReturnsVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"done":true,"success":true,"reasoning":"goal reached"}`))
	}))
	defer srv.Close()

	planner := NewHTTPPlanner(srv.URL, time.Second)
	decision, err := planner.PlanStep(context.Background(), PlanRequest{Goal: "g"})
	require.NoError(t, err)
	require.True(t, decision.Done)
	require.True(t, decision.Success)
	require.Equal(t, "goal reached", decision.Reasoning)
	require.Nil(t, decision.Action)
}

func TestHTTPPlannerErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "upstream error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model overloaded", http.StatusServiceUnavailable)
			},
			wantErr: "planner returned 503",
		},
		{
			name: "no action and no verdict",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"reasoning":"hmm"}`))
			},
			wantErr: "neither action nor verdict",
		},
		{
			name: "unknown action kind",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"action":{"action":"teleport"}}`))
			},
			wantErr: "parse planner action",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			planner := NewHTTPPlanner(srv.URL, time.Second)
			_, err := planner.PlanStep(context.Background(), PlanRequest{Goal: "g"})
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHTTPPlannerHonorsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	planner := NewHTTPPlanner(srv.URL, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := planner.PlanStep(ctx, PlanRequest{Goal: "g"})
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
