package models

import (
	"context"
	"database/sql"
	"time"
)

// CreateAccountParams are the parameters for CreateAccount.
type CreateAccountParams struct {
	ID   string
	Name string
}

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO accounts (id, name) VALUES (?, ?)`,
		arg.ID, arg.Name)
	return err
}

func (q *Queries) GetAccountByID(ctx context.Context, id string) (Account, error) {
	var a Account
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.CreatedAt)
	return a, err
}

// CreateAPIKeyParams are the parameters for CreateAPIKey.
type CreateAPIKeyParams struct {
	KeyID      string
	AccountID  string
	SecretHash string
	Label      string
}

func (q *Queries) CreateAPIKey(ctx context.Context, arg CreateAPIKeyParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO api_keys (key_id, account_id, secret_hash, label) VALUES (?, ?, ?, ?)`,
		arg.KeyID, arg.AccountID, arg.SecretHash, arg.Label)
	return err
}

// GetAPIKey returns a non-revoked key by its key id.
func (q *Queries) GetAPIKey(ctx context.Context, keyID string) (APIKey, error) {
	var k APIKey
	err := q.db.QueryRowContext(ctx,
		`SELECT key_id, account_id, secret_hash, label, revoked, created_at
		 FROM api_keys WHERE key_id = ? AND revoked = 0`, keyID).
		Scan(&k.KeyID, &k.AccountID, &k.SecretHash, &k.Label, &k.Revoked, &k.CreatedAt)
	return k, err
}

func (q *Queries) RevokeAPIKey(ctx context.Context, keyID string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE api_keys SET revoked = 1 WHERE key_id = ?`, keyID)
	return err
}

// UpsertDeviceParams are the parameters for UpsertDevice.
type UpsertDeviceParams struct {
	ID           string
	AccountID    string
	Model        string
	Manufacturer string
	LastSeenAt   time.Time
}

// UpsertDevice records a device connect, marking it online.
func (q *Queries) UpsertDevice(ctx context.Context, arg UpsertDeviceParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO devices (id, account_id, model, manufacturer, online, last_seen_at)
		 VALUES (?, ?, ?, ?, 1, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   account_id = excluded.account_id,
		   model = CASE WHEN excluded.model != '' THEN excluded.model ELSE devices.model END,
		   manufacturer = CASE WHEN excluded.manufacturer != '' THEN excluded.manufacturer ELSE devices.manufacturer END,
		   online = 1,
		   last_seen_at = excluded.last_seen_at`,
		arg.ID, arg.AccountID, arg.Model, arg.Manufacturer, arg.LastSeenAt)
	return err
}

// MarkDeviceOfflineParams are the parameters for MarkDeviceOffline.
type MarkDeviceOfflineParams struct {
	ID         string
	LastSeenAt time.Time
}

func (q *Queries) MarkDeviceOffline(ctx context.Context, arg MarkDeviceOfflineParams) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE devices SET online = 0, last_seen_at = ? WHERE id = ?`,
		arg.LastSeenAt, arg.ID)
	return err
}

// UpdateDeviceTelemetryParams are the parameters for UpdateDeviceTelemetry.
type UpdateDeviceTelemetryParams struct {
	ID           string
	BatteryLevel int
	IsCharging   bool
	LastSeenAt   time.Time
}

func (q *Queries) UpdateDeviceTelemetry(ctx context.Context, arg UpdateDeviceTelemetryParams) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE devices SET battery_level = ?, is_charging = ?, last_seen_at = ? WHERE id = ?`,
		arg.BatteryLevel, arg.IsCharging, arg.LastSeenAt, arg.ID)
	return err
}

func (q *Queries) ListDevices(ctx context.Context, accountID string) ([]Device, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, account_id, model, manufacturer, online, battery_level, is_charging, last_seen_at, created_at
		 FROM devices WHERE account_id = ? ORDER BY last_seen_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.ID, &d.AccountID, &d.Model, &d.Manufacturer, &d.Online,
			&d.BatteryLevel, &d.IsCharging, &d.LastSeenAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CreateAgentSessionParams are the parameters for CreateAgentSession.
type CreateAgentSessionParams struct {
	ID        string
	DeviceID  string
	AccountID string
	Goal      string
	Status    string
	MaxSteps  int
	StartedAt time.Time
}

func (q *Queries) CreateAgentSession(ctx context.Context, arg CreateAgentSessionParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO agent_sessions (id, device_id, account_id, goal, status, max_steps, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		arg.ID, arg.DeviceID, arg.AccountID, arg.Goal, arg.Status, arg.MaxSteps, arg.StartedAt)
	return err
}

// FinishAgentSessionParams are the parameters for FinishAgentSession.
type FinishAgentSessionParams struct {
	ID          string
	Status      string
	Reason      string
	StepsUsed   int
	CompletedAt time.Time
}

func (q *Queries) FinishAgentSession(ctx context.Context, arg FinishAgentSessionParams) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE agent_sessions SET status = ?, reason = ?, steps_used = ?, completed_at = ? WHERE id = ?`,
		arg.Status, arg.Reason, arg.StepsUsed, arg.CompletedAt, arg.ID)
	return err
}

func (q *Queries) ListAgentSessions(ctx context.Context, accountID string) ([]AgentSession, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, device_id, account_id, goal, status, reason, steps_used, max_steps, started_at, completed_at
		 FROM agent_sessions WHERE account_id = ? ORDER BY started_at DESC LIMIT 200`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AgentSession
	for rows.Next() {
		var s AgentSession
		if err := rows.Scan(&s.ID, &s.DeviceID, &s.AccountID, &s.Goal, &s.Status, &s.Reason,
			&s.StepsUsed, &s.MaxSteps, &s.StartedAt, &s.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *Queries) GetAgentSession(ctx context.Context, id string) (AgentSession, error) {
	var s AgentSession
	err := q.db.QueryRowContext(ctx,
		`SELECT id, device_id, account_id, goal, status, reason, steps_used, max_steps, started_at, completed_at
		 FROM agent_sessions WHERE id = ?`, id).
		Scan(&s.ID, &s.DeviceID, &s.AccountID, &s.Goal, &s.Status, &s.Reason,
			&s.StepsUsed, &s.MaxSteps, &s.StartedAt, &s.CompletedAt)
	return s, err
}

// CreateSessionStepParams are the parameters for CreateSessionStep.
type CreateSessionStepParams struct {
	SessionID  string
	Step       int
	ScreenHash string
	Action     string
	Reasoning  string
	Success    bool
	Error      string
}

func (q *Queries) CreateSessionStep(ctx context.Context, arg CreateSessionStepParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO session_steps (session_id, step, screen_hash, action, reasoning, success, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		arg.SessionID, arg.Step, arg.ScreenHash, arg.Action, arg.Reasoning, arg.Success, arg.Error)
	return err
}

func (q *Queries) ListSessionSteps(ctx context.Context, sessionID string) ([]SessionStep, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT session_id, step, screen_hash, action, reasoning, success, error, created_at
		 FROM session_steps WHERE session_id = ? ORDER BY step ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionStep
	for rows.Next() {
		var s SessionStep
		if err := rows.Scan(&s.SessionID, &s.Step, &s.ScreenHash, &s.Action, &s.Reasoning,
			&s.Success, &s.Error, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ErrNoRows re-exports sql.ErrNoRows so callers can branch without importing
// database/sql.
var ErrNoRows = sql.ErrNoRows
