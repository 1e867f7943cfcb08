package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds server configuration.
type Config struct {
	// Addr is the listen address for the HTTP server.
	Addr           string
	DatabasePath   string
	MasterSecret   string
	Debug          bool
	AllowedOrigins []string

	// PlannerURL is the endpoint of the planning collaborator. Empty means no
	// planner is configured and goal requests are rejected.
	PlannerURL string

	// Agent holds control-loop tunables.
	Agent AgentConfig

	// Liveness holds heartbeat monitor tunables.
	Liveness LivenessConfig
}

// AgentConfig holds tunables for the agent control loop.
type AgentConfig struct {
	// MaxSteps is the default step ceiling for a session.
	MaxSteps int
	// ScreenTimeout bounds one screen-state round trip to the device.
	ScreenTimeout time.Duration
	// ActionTimeout bounds one action dispatch round trip to the device.
	ActionTimeout time.Duration
	// PlannerTimeout bounds a single planner call.
	PlannerTimeout time.Duration
	// PlannerRetries is the number of retries after a failed planner call.
	PlannerRetries int
	// PlannerBackoff is the base delay between planner retries.
	PlannerBackoff time.Duration
}

// LivenessConfig holds tunables for the session-liveness monitor.
type LivenessConfig struct {
	// PingInterval is how often a heartbeat expectation is sent.
	PingInterval time.Duration
	// GraceWindow is how long a device may stay silent before it is marked
	// offline.
	GraceWindow time.Duration
}

// Overrides optionally overrides values from environment variables.
//
// A nil pointer means "use the environment/default value".
type Overrides struct {
	Addr         *string
	DatabasePath *string
	MasterSecret *string
	Debug        *bool
	PlannerURL   *string
}

// Load loads server configuration from the environment (and an optional .env
// file in the working directory) and applies any explicit overrides.
func Load(overrides Overrides) (*Config, error) {
	// Best-effort: a missing .env file is not an error.
	_ = godotenv.Load()

	port := 3010
	if portStr := os.Getenv("PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}

	addr := fmt.Sprintf(":%d", port)
	if overrides.Addr != nil {
		addr = *overrides.Addr
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./droidclaw.db"
	}
	if overrides.DatabasePath != nil {
		dbPath = *overrides.DatabasePath
	}

	masterSecret := os.Getenv("DROIDCLAW_MASTER_SECRET")
	if overrides.MasterSecret != nil {
		masterSecret = *overrides.MasterSecret
	}
	if masterSecret == "" {
		return nil, fmt.Errorf("DROIDCLAW_MASTER_SECRET environment variable is required")
	}

	debug := false
	if debugStr := os.Getenv("DEBUG"); debugStr == "true" || debugStr == "1" {
		debug = true
	}
	if overrides.Debug != nil {
		debug = *overrides.Debug
	}

	plannerURL := os.Getenv("PLANNER_URL")
	if overrides.PlannerURL != nil {
		plannerURL = *overrides.PlannerURL
	}

	return &Config{
		Addr:           addr,
		DatabasePath:   dbPath,
		MasterSecret:   masterSecret,
		Debug:          debug,
		AllowedOrigins: []string{"*"},
		PlannerURL:     plannerURL,
		Agent: AgentConfig{
			MaxSteps:       envInt("AGENT_MAX_STEPS", 30),
			ScreenTimeout:  envDuration("AGENT_SCREEN_TIMEOUT", 20*time.Second),
			ActionTimeout:  envDuration("AGENT_ACTION_TIMEOUT", 20*time.Second),
			PlannerTimeout: envDuration("AGENT_PLANNER_TIMEOUT", 60*time.Second),
			PlannerRetries: envInt("AGENT_PLANNER_RETRIES", 2),
			PlannerBackoff: envDuration("AGENT_PLANNER_BACKOFF", 2*time.Second),
		},
		Liveness: LivenessConfig{
			PingInterval: envDuration("LIVENESS_PING_INTERVAL", 15*time.Second),
			GraceWindow:  envDuration("LIVENESS_GRACE_WINDOW", 45*time.Second),
		},
	}, nil
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
