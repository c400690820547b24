package registry

import (
	"fmt"
	"strconv"
	"strings"

	"warmup/internal/config"
)

const (
	// SettingsRoot is the top-level settings section for refresh tasks.
	SettingsRoot = "BackgroundRefresh"

	DefaultHydrationTier = 1

	keyInitialDelay    = "initialdelay"
	keyRefreshInterval = "refreshinterval"
	keyEnabled         = "enabled"
	keyHydrationTier   = "hydrationtier"
)

// SettingsPath maps "Owner.Method" to "BackgroundRefresh:Owner:Method".
func SettingsPath(taskID string) (string, error) {
	parts := strings.Split(strings.TrimSpace(taskID), ".")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return "", &ConfigError{TaskID: taskID, Msg: `task id must have the form "Owner.Method"`}
	}
	return SettingsRoot + ":" + strings.TrimSpace(parts[0]) + ":" + strings.TrimSpace(parts[1]), nil
}

// ResolveConfig builds a task config from settings.
//
// RefreshInterval is required. InitialDelay (0), Enabled (true) and
// HydrationTier (1) fall back to defaults when missing or unparsable.
func ResolveConfig(src Settings, taskID string) (*Config, error) {
	path, err := SettingsPath(taskID)
	if err != nil {
		return nil, err
	}
	var (
		raw map[string]string
		ok  bool
	)
	if src != nil {
		raw, ok = src.Section(path)
	}
	if !ok {
		return nil, &ConfigError{TaskID: taskID, Path: path, Msg: "settings section not found"}
	}
	sec := make(map[string]string, len(raw))
	for k, v := range raw {
		sec[strings.ToLower(k)] = strings.TrimSpace(v)
	}

	rawInterval, ok := sec[keyRefreshInterval]
	if !ok || rawInterval == "" {
		return nil, &ConfigError{TaskID: taskID, Path: path, Msg: "RefreshInterval is required"}
	}
	interval, err := config.ParseDuration(rawInterval)
	if err != nil {
		return nil, &ConfigError{TaskID: taskID, Path: path, Msg: "RefreshInterval is invalid", Err: err}
	}
	if interval <= 0 {
		return nil, &ConfigError{TaskID: taskID, Path: path, Msg: "RefreshInterval must be > 0"}
	}

	c := &Config{
		TaskID:          strings.TrimSpace(taskID),
		RefreshInterval: interval,
		Enabled:         true,
		HydrationTier:   DefaultHydrationTier,
	}
	if v := sec[keyInitialDelay]; v != "" {
		if d, err := config.ParseDuration(v); err == nil {
			c.InitialDelay = d
		}
	}
	if v := sec[keyEnabled]; v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Enabled = b
		}
	}
	if v := sec[keyHydrationTier]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			c.HydrationTier = n
		}
	}
	return c, nil
}

// RegisterFromSettings registers fn with the config found under
// "BackgroundRefresh:<Owner>:<Method>". It does not replace a task that was
// registered with an explicit config.
func (r *Registry) RegisterFromSettings(taskID string, fn Func) error {
	if fn == nil {
		return fmt.Errorf("%w: %s: callback is required", ErrInvalidArgument, taskID)
	}
	cfg, err := ResolveConfig(r.settings, taskID)
	if err != nil {
		return err
	}
	return r.register(taskID, fn, cfg, SourceSettings)
}
