package config

// Config is the on-disk configuration of warmupd.
//
// All durations are strings accepted by ParseDuration ("5m", "00:05:00", "@every 5m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Hydration HydrationConfig `json:"hydration"`
	Readiness ReadinessConfig `json:"readiness"`
	Storage   *StorageConfig  `json:"storage,omitempty"`

	// BackgroundRefresh holds per-task refresh settings keyed Owner -> Method -> option,
	// addressed as "BackgroundRefresh:<Owner>:<Method>". The tree is free-form on purpose:
	// missing or malformed options fall back to defaults at registration time.
	BackgroundRefresh map[string]any `json:"BackgroundRefresh,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// HydrationConfig controls the registry and the shutdown budget.
//
// Defaults (when omitted/zero):
//   - history_size: 1000
//   - shutdown_timeout: "10s"
//   - failure_log_every: "1m" (warn-level refresh failure logs per task)
type HydrationConfig struct {
	HistorySize     int    `json:"history_size,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
	FailureLogEvery string `json:"failure_log_every,omitempty"`
}

// ReadinessConfig selects readiness reporters in addition to the in-memory state.
type ReadinessConfig struct {
	// Systemd sends sd_notify READY=1/STATUS= messages (no-op outside systemd).
	Systemd bool `json:"systemd,omitempty"`
}

// StorageConfig controls the optional execution audit export.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/audit.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	// Retain caps stored rows (sqlite only). 0 means 10000.
	Retain int `json:"retain,omitempty"`
}
