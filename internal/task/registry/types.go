package registry

import (
	"context"
	"fmt"
	"time"

	"warmup/internal/task/scope"
)

// Func is a refresh callback. It runs inside a fresh scope per invocation.
type Func func(ctx context.Context, sc *scope.Scope) error

// Config describes how a task is hydrated and refreshed.
//
// Configs are values: the registry stores and hands out copies, so a Config
// can never change after registration.
type Config struct {
	// TaskID is "Owner.Method" and globally unique.
	TaskID          string
	InitialDelay    time.Duration
	RefreshInterval time.Duration
	Enabled         bool
	// HydrationTier orders warm-up: every task of tier N finishes before tier N+1 starts.
	HydrationTier int
}

type ConfigOption func(*Config)

func WithInitialDelay(d time.Duration) ConfigOption {
	return func(c *Config) { c.InitialDelay = d }
}

func WithEnabled(enabled bool) ConfigOption {
	return func(c *Config) { c.Enabled = enabled }
}

func WithHydrationTier(tier int) ConfigOption {
	return func(c *Config) { c.HydrationTier = tier }
}

// NewConfig builds an enabled, tier-1 config with no initial delay unless
// options say otherwise.
func NewConfig(taskID string, refreshInterval time.Duration, opts ...ConfigOption) (*Config, error) {
	c := &Config{
		TaskID:          taskID,
		RefreshInterval: refreshInterval,
		Enabled:         true,
		HydrationTier:   DefaultHydrationTier,
	}
	for _, o := range opts {
		o(c)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("%w: %s: refresh interval must be > 0", ErrInvalidArgument, c.TaskID)
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("%w: %s: initial delay must be >= 0", ErrInvalidArgument, c.TaskID)
	}
	if c.HydrationTier < 1 {
		return fmt.Errorf("%w: %s: hydration tier must be >= 1", ErrInvalidArgument, c.TaskID)
	}
	return nil
}

// Source records how a task was registered.
type Source int

const (
	SourceExplicit Source = iota
	SourceSettings
)

func (s Source) String() string {
	if s == SourceSettings {
		return "settings"
	}
	return "explicit"
}

// Task binds a callback to its config.
type Task struct {
	cfg    Config
	fn     Func
	source Source
}

func (t *Task) ID() string { return t.cfg.TaskID }
func (t *Task) Config() Config { return t.cfg }
func (t *Task) Source() Source { return t.source }
func (t *Task) Enabled() bool { return t.cfg.Enabled }
func (t *Task) Tier() int { return t.cfg.HydrationTier }

// Status of one execution attempt.
type Status string

const (
	StatusRunning   Status = "Running"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusCancelled Status = "Cancelled"
)

func (s Status) Terminal() bool { return s != StatusRunning }

// MetaForceRefresh is the metadata key set on every entry ("true"/"false").
const MetaForceRefresh = "IsForceRefresh"

// Entry is one execution attempt. Metadata is shared between the running and
// terminal entry of the same attempt and must be treated as read-only.
type Entry struct {
	TaskID      string            `json:"task_id"`
	ExecutionID uint64            `json:"execution_id"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Status      Status            `json:"status"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Duration is CompletedAt - StartedAt, or 0 while running.
func (e Entry) Duration() time.Duration {
	if e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(e.StartedAt)
}

// IsForceRefresh reports the flag recorded when the attempt started.
func (e Entry) IsForceRefresh() bool {
	return e.Metadata[MetaForceRefresh] == "true"
}
