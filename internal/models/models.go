package models

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is the query execution interface shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// New creates a query layer over the given database handle.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Queries is the hand-written query layer for the persistence collaborator.
type Queries struct {
	db DBTX
}

// Account is a registered user account.
type Account struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// APIKey is a device credential record. Only the secret hash is stored.
type APIKey struct {
	KeyID      string
	AccountID  string
	SecretHash string
	Label      string
	Revoked    bool
	CreatedAt  time.Time
}

// Device is the last-known state of a device that has connected at least once.
type Device struct {
	ID           string
	AccountID    string
	Model        string
	Manufacturer string
	Online       bool
	BatteryLevel int
	IsCharging   bool
	LastSeenAt   time.Time
	CreatedAt    time.Time
}

// AgentSession is a completed or running goal run record.
type AgentSession struct {
	ID          string
	DeviceID    string
	AccountID   string
	Goal        string
	Status      string
	Reason      string
	StepsUsed   int
	MaxSteps    int
	StartedAt   time.Time
	CompletedAt sql.NullTime
}

// SessionStep is one recorded control-loop iteration.
type SessionStep struct {
	SessionID  string
	Step       int
	ScreenHash string
	Action     string
	Reasoning  string
	Success    bool
	Error      string
	CreatedAt  time.Time
}
