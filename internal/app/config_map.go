package app

import (
	"fmt"
	"strings"
	"time"

	"warmup/internal/config"
	"warmup/internal/storage"
	"warmup/internal/task/registry"
	"warmup/internal/task/scheduler"
	logx "warmup/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

type hydrationSettings struct {
	historySize     int
	shutdownTimeout time.Duration
	failureLogEvery time.Duration
}

func mapHydrationConfig(cfg *config.Config) (hydrationSettings, error) {
	hc := cfg.Hydration
	out := hydrationSettings{historySize: hc.HistorySize}
	if out.historySize == 0 {
		out.historySize = registry.DefaultHistorySize
	}
	var err error
	out.shutdownTimeout, err = config.ParseDurationOrDefault("hydration.shutdown_timeout", hc.ShutdownTimeout, defaultShutdownTimeout)
	if err != nil {
		return out, err
	}
	out.failureLogEvery, err = config.ParseDurationOrDefault("hydration.failure_log_every", hc.FailureLogEvery, scheduler.DefaultFailureLogEvery)
	if err != nil {
		return out, err
	}
	return out, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)
	if sc.Retain < 0 {
		return storage.Config{}, false, fmt.Errorf("storage.retain must be >= 0")
	}

	switch driver {
	case "file", "jsonl":
		if path == "" {
			path = "./data/executions.jsonl"
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy, Retain: sc.Retain}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// validate runs on startup and before a reloaded config is committed.
func validate(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Hydration.HistorySize < 0 {
		return fmt.Errorf("hydration.history_size must be >= 0")
	}
	if _, err := mapHydrationConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}
