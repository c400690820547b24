package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Retain      int           // sqlite only; 0 means DefaultRetain
}

const DefaultRetain = 10000

// Record is one finished execution attempt.
// Keep it compact and schema-stable.
type Record struct {
	ExecutionID uint64            `json:"execution_id"`
	TaskID      string            `json:"task_id"`
	Status      string            `json:"status"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
	TookMS      int64             `json:"took_ms"`
	Forced      bool              `json:"forced"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
